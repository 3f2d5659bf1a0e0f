// Package runlog records training runs, per-epoch losses and checkpoint
// events in SQLite.
package runlog

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"embedalign/internal/errs"
)

// Log is a SQLite-backed run journal.
type Log struct {
	db      *sql.DB
	entropy *ulid.MonotonicEntropy
}

// Epoch is one recorded epoch.
type Epoch struct {
	Epoch    int
	Loss     float64
	Steps    int
	Skipped  int
	Seconds  float64
	Improved bool
}

// Open opens (or creates) the journal at path with WAL mode enabled.
func Open(ctx context.Context, path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Log{db: db, entropy: ulid.Monotonic(rand.Reader, 0)}, nil
}

// Close closes the database connection
func (l *Log) Close() error {
	return l.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	config TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	best_loss REAL
);

CREATE TABLE IF NOT EXISTS epochs (
	run_id TEXT NOT NULL,
	epoch INTEGER NOT NULL,
	loss REAL NOT NULL,
	steps INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	seconds REAL NOT NULL,
	improved INTEGER NOT NULL,
	PRIMARY KEY(run_id, epoch),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id TEXT NOT NULL,
	epoch INTEGER NOT NULL,
	loss REAL NOT NULL,
	dir TEXT NOT NULL,
	saved_at TEXT NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// StartRun registers a new run and returns its ULID.
func (l *Log) StartRun(ctx context.Context, configJSON string) (string, error) {
	id := ulid.MustNew(ulid.Now(), l.entropy).String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, config, started_at) VALUES (?, ?, ?)`,
		id, configJSON, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// RecordEpoch stores the summary of one epoch.
func (l *Log) RecordEpoch(ctx context.Context, runID string, e Epoch) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO epochs (run_id, epoch, loss, steps, skipped, seconds, improved)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, epoch) DO UPDATE SET
	loss=excluded.loss,
	steps=excluded.steps,
	skipped=excluded.skipped,
	seconds=excluded.seconds,
	improved=excluded.improved`,
		runID, e.Epoch, e.Loss, e.Steps, e.Skipped, e.Seconds, boolToInt(e.Improved),
	)
	return err
}

// RecordCheckpoint notes that the parameters of epoch were written to dir.
func (l *Log) RecordCheckpoint(ctx context.Context, runID string, epoch int, loss float64, dir string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, epoch, loss, dir, saved_at) VALUES (?, ?, ?, ?, ?)`,
		runID, epoch, loss, dir, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// FinishRun marks the run as done with its best loss.
func (l *Log) FinishRun(ctx context.Context, runID string, bestLoss float64) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, best_loss = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), bestLoss, runID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, errs.ErrNotFound)
	}
	return nil
}

// Epochs returns the epochs of a run in order.
func (l *Log) Epochs(ctx context.Context, runID string) ([]Epoch, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT epoch, loss, steps, skipped, seconds, improved
FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Epoch
	for rows.Next() {
		var e Epoch
		var improved int
		if err := rows.Scan(&e.Epoch, &e.Loss, &e.Steps, &e.Skipped, &e.Seconds, &improved); err != nil {
			return nil, err
		}
		e.Improved = improved != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// BestEpoch returns the epoch with the lowest loss of a run.
func (l *Log) BestEpoch(ctx context.Context, runID string) (Epoch, error) {
	var e Epoch
	var improved int
	err := l.db.QueryRowContext(ctx, `
SELECT epoch, loss, steps, skipped, seconds, improved
FROM epochs WHERE run_id = ? ORDER BY loss ASC, epoch ASC LIMIT 1`, runID,
	).Scan(&e.Epoch, &e.Loss, &e.Steps, &e.Skipped, &e.Seconds, &improved)
	if errors.Is(err, sql.ErrNoRows) {
		return Epoch{}, fmt.Errorf("run %s: %w", runID, errs.ErrNotFound)
	}
	if err != nil {
		return Epoch{}, err
	}
	e.Improved = improved != 0
	return e, nil
}

// Checkpoints returns how many checkpoints a run wrote.
func (l *Log) Checkpoints(ctx context.Context, runID string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
