// Package train runs the embed-align training loop: it builds both
// vocabularies, tokenizes the parallel corpora, and steps the model batch by
// batch while keeping the best parameters on disk.
package train

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"embedalign/config"
	"embedalign/internal/errs"
	"embedalign/model"
	"embedalign/runlog"
	"embedalign/sgram"
	"embedalign/vocab"
)

// EpochStats summarizes one pass over the data.
type EpochStats struct {
	Epoch    int     `json:"epoch"`
	Loss     float64 `json:"loss"`
	Steps    int     `json:"steps"`
	Skipped  int     `json:"skipped"`
	Seconds  float64 `json:"seconds"`
	Improved bool    `json:"improved"`
}

// Result is what Train returns.
type Result struct {
	RunID     string
	BestEpoch int
	BestLoss  float64
	Epochs    []EpochStats
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the progress logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Trainer) { t.log = l }
}

// WithRegisterer registers the training metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(t *Trainer) { t.reg = reg }
}

// WithRunLog records the run, its epochs and checkpoints in rl.
func WithRunLog(rl *runlog.Log) Option {
	return func(t *Trainer) { t.runs = rl }
}

// Trainer owns both vocabularies, the tokenized data, the random source and
// the model.
type Trainer struct {
	cfg    config.Config
	v1, v2 *vocab.Vocabulary
	data1  [][]int
	data2  [][]int

	rng   *rand.Rand
	noise *distmv.Normal
	model *model.EmbedAlign

	log     logrus.FieldLogger
	runs    *runlog.Log
	reg     prometheus.Registerer
	metrics *trainMetrics
}

// New prepares a trainer for the sentence-aligned corpora l1 and l2.
func New(cfg config.Config, l1, l2 [][]string, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(l1) == 0 || len(l2) == 0 {
		return nil, errs.ErrEmptyCorpus
	}
	if len(l1) != len(l2) {
		return nil, fmt.Errorf("%d L1 sentences vs %d L2 sentences: %w", len(l1), len(l2), errs.ErrShapeMismatch)
	}

	t := &Trainer{
		cfg: cfg,
		v1:  buildVocab(l1, cfg.IgnoreLess),
		v2:  buildVocab(l2, cfg.IgnoreLess),
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)),
		log: logrus.New(),
	}
	for _, opt := range opts {
		opt(t)
	}

	metrics, err := newTrainMetrics(t.reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	t.metrics = metrics

	t.data1 = TokenizeData(l1, t.v1, cfg.SentenceLength)
	t.data2 = TokenizeData(l2, t.v2, cfg.SentenceLength)

	m, err := model.New(model.Config{
		BatchSize:      cfg.BatchSize,
		SentenceLength: cfg.SentenceLength,
		VocabL1:        t.v1.FilteredLen(),
		VocabL2:        t.v2.FilteredLen(),
		EmbeddingDim:   cfg.EmbeddingDim,
		HiddenDim:      cfg.HiddenDim,
		DimZ:           cfg.DimZ,
		DecoderHidden:  cfg.DecoderHidden,
		LearnRate:      cfg.LearnRate,
		Pad:            t.v1.FilteredPadID(),
	}, t.rng)
	if err != nil {
		return nil, err
	}
	t.model = m
	t.log.WithFields(logrus.Fields{
		"vocab_l1":    t.v1.Len(),
		"filtered_l1": t.v1.FilteredLen(),
		"vocab_l2":    t.v2.Len(),
		"filtered_l2": t.v2.FilteredLen(),
		"sentences":   len(l1),
	}).Debug("trainer ready")

	eye := mat.NewSymDense(cfg.DimZ, nil)
	for i := 0; i < cfg.DimZ; i++ {
		eye.SetSym(i, i, 1)
	}
	normal, ok := distmv.NewNormal(make([]float64, cfg.DimZ), eye, t.rng)
	if !ok {
		return nil, fmt.Errorf("latent noise covariance is not positive definite: %w", errs.ErrInvalidConfig)
	}
	t.noise = normal
	return t, nil
}

func buildVocab(sentences [][]string, ignoreLess int) *vocab.Vocabulary {
	v := vocab.New()
	v.IgnoreLess = ignoreLess
	v.Add(sentences)
	return v
}

// Vocabularies returns the L1 and L2 vocabularies.
func (t *Trainer) Vocabularies() (*vocab.Vocabulary, *vocab.Vocabulary) {
	return t.v1, t.v2
}

// Data returns the tokenized L1 and L2 rows.
func (t *Trainer) Data() ([][]int, [][]int) {
	return t.data1, t.data2
}

// Model returns the underlying model.
func (t *Trainer) Model() *model.EmbedAlign {
	return t.model
}

// Train runs every epoch, checkpointing into the output directory whenever
// the epoch loss improves, and finally writes the vocabularies and metrics.
func (t *Trainer) Train(ctx context.Context) (Result, error) {
	dir := t.cfg.OutDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Result{}, err
	}

	var res Result
	if t.runs != nil {
		cfgJSON, err := json.Marshal(t.cfg)
		if err != nil {
			return Result{}, err
		}
		res.RunID, err = t.runs.StartRun(ctx, string(cfgJSON))
		if err != nil {
			return Result{}, err
		}
	}

	res.BestLoss = math.Inf(1)
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		stats, err := t.runEpoch(epoch)
		if err != nil {
			return res, err
		}

		if epoch == 0 || stats.Loss < res.BestLoss {
			stats.Improved = true
			res.BestLoss = stats.Loss
			res.BestEpoch = epoch
			if err := t.Checkpoint(dir); err != nil {
				return res, fmt.Errorf("checkpoint epoch %d: %w", epoch, err)
			}
		}
		res.Epochs = append(res.Epochs, stats)

		t.metrics.observe(stats, res.BestLoss)
		t.log.WithField("run_id", res.RunID).Infof("epoch %d: loss=%.4f skipped=%d time=%.2fs",
			epoch, stats.Loss, stats.Skipped, stats.Seconds)
		if err := t.record(ctx, res.RunID, stats, dir); err != nil {
			return res, err
		}
	}

	if t.runs != nil {
		if err := t.runs.FinishRun(ctx, res.RunID, res.BestLoss); err != nil {
			return res, err
		}
	}

	if err := t.v1.Save(dir, "L1"); err != nil {
		return res, err
	}
	if err := t.v2.Save(dir, "L2"); err != nil {
		return res, err
	}
	metrics := Metrics{RunID: res.RunID, BestLoss: res.BestLoss, Epochs: res.Epochs}
	if err := saveJSON(filepath.Join(dir, "metrics.json"), metrics); err != nil {
		return res, fmt.Errorf("save metrics: %w", err)
	}
	return res, nil
}

func (t *Trainer) record(ctx context.Context, runID string, stats EpochStats, dir string) error {
	if t.runs == nil {
		return nil
	}
	err := t.runs.RecordEpoch(ctx, runID, runlog.Epoch{
		Epoch:    stats.Epoch,
		Loss:     stats.Loss,
		Steps:    stats.Steps,
		Skipped:  stats.Skipped,
		Seconds:  stats.Seconds,
		Improved: stats.Improved,
	})
	if err != nil {
		return err
	}
	if stats.Improved {
		return t.runs.RecordCheckpoint(ctx, runID, stats.Epoch, stats.Loss, dir)
	}
	return nil
}

// runEpoch steps every full batch in corpus order. A trailing batch with
// fewer than BatchSize rows is skipped but still counts toward the loss
// denominator. An epoch without a full batch reports a loss of 0.
func (t *Trainer) runEpoch(epoch int) (EpochStats, error) {
	start := time.Now()
	stats := EpochStats{Epoch: epoch}

	b1 := sgram.Batches(t.data1, t.cfg.BatchSize)
	b2 := sgram.Batches(t.data2, t.cfg.BatchSize)

	var total float64
	for i := range b1 {
		if len(b1[i]) != t.cfg.BatchSize || len(b2[i]) != t.cfg.BatchSize {
			stats.Skipped++
			continue
		}
		terms, err := t.model.Step(model.Batch{L1: b1[i], L2: b2[i], Noise: t.drawNoise()})
		if err != nil {
			return stats, fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
		}
		total += terms.Loss
		stats.Steps++
	}

	if updates := stats.Steps + stats.Skipped; updates > 0 {
		stats.Loss = total / float64(updates)
	}
	stats.Seconds = time.Since(start).Seconds()
	return stats, nil
}

// drawNoise samples one standard-normal latent vector per (position, row).
func (t *Trainer) drawNoise() []float64 {
	z := t.cfg.DimZ
	out := make([]float64, t.cfg.SentenceLength*t.cfg.BatchSize*z)
	for i := 0; i < len(out); i += z {
		t.noise.Rand(out[i : i+z])
	}
	return out
}

// Checkpoint writes one gob file per model component into dir.
func (t *Trainer) Checkpoint(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, c := range t.model.Components() {
		if err := model.SaveParams(c.Path(dir), c.Snapshot()); err != nil {
			return fmt.Errorf("save %s: %w", c.Name, err)
		}
	}
	return nil
}

// Restore loads the component files written by Checkpoint.
func (t *Trainer) Restore(dir string) error {
	for _, c := range t.model.Components() {
		p, err := model.LoadParams(c.Path(dir))
		if err != nil {
			return fmt.Errorf("load %s: %w", c.Name, err)
		}
		if err := c.Restore(p); err != nil {
			return fmt.Errorf("restore %s: %w", c.Name, err)
		}
	}
	return nil
}

// Embed encodes L1 sentences and returns, per sentence, the latent mean of
// every token position that holds a word (rows) by DimZ (columns). Words
// past SentenceLength are dropped; an empty sentence gives an empty matrix.
func (t *Trainer) Embed(sentences [][]string) ([]*mat.Dense, error) {
	B, T, Z := t.cfg.BatchSize, t.cfg.SentenceLength, t.cfg.DimZ
	rows := TokenizeData(sentences, t.v1, T)

	padRow := make([]int, T)
	for i := range padRow {
		padRow[i] = t.v1.FilteredPadID()
	}
	targets := make([][]int, B)
	for i := range targets {
		targets[i] = padRow
	}
	noise := make([]float64, T*B*Z)

	out := make([]*mat.Dense, 0, len(sentences))
	for start := 0; start < len(rows); start += B {
		batch := make([][]int, B)
		for b := range batch {
			if start+b < len(rows) {
				batch[b] = rows[start+b]
			} else {
				batch[b] = padRow
			}
		}
		if _, err := t.model.Evaluate(model.Batch{L1: batch, L2: targets, Noise: noise}); err != nil {
			return nil, err
		}
		mean := t.model.Mean()

		for b := 0; b < B && start+b < len(rows); b++ {
			n := len(sentences[start+b])
			if n > T {
				n = T
			}
			if n == 0 {
				out = append(out, &mat.Dense{})
				continue
			}
			data := make([]float64, 0, n*Z)
			for pos := 0; pos < n; pos++ {
				data = append(data, mean[pos][b]...)
			}
			out = append(out, mat.NewDense(n, Z, data))
		}
	}
	return out, nil
}

// Close releases the model.
func (t *Trainer) Close() error {
	return t.model.Close()
}
