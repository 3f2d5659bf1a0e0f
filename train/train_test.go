package train

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"embedalign/config"
	"embedalign/internal/errs"
	"embedalign/runlog"
	"embedalign/vocab"
)

var (
	testL1 = [][]string{
		{"the", "cat", "sat"},
		{"the", "dog", "sat"},
		{"a", "cat", "ran"},
		{"a", "dog", "ran"},
	}
	testL2 = [][]string{
		{"le", "chat", "assis"},
		{"le", "chien", "assis"},
		{"un", "chat", "court"},
		{"un", "chien", "court"},
	}
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Epochs = 2
	cfg.BatchSize = 2
	cfg.DimZ = 2
	cfg.EmbeddingDim = 4
	cfg.HiddenDim = 3
	cfg.DecoderHidden = 4
	cfg.SentenceLength = 4
	cfg.IgnoreLess = 1
	cfg.LearnRate = 0.01
	cfg.Seed = 7
	cfg.OutDir = t.TempDir()
	return cfg
}

func quiet() Option {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return WithLogger(l)
}

func newTestTrainer(t *testing.T, cfg config.Config, l1, l2 [][]string, opts ...Option) *Trainer {
	t.Helper()
	tr, err := New(cfg, l1, l2, append([]Option{quiet()}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func losses(r Result) []float64 {
	out := make([]float64, len(r.Epochs))
	for i, e := range r.Epochs {
		out[i] = e.Loss
	}
	return out
}

func TestTokenizeSentence(t *testing.T) {
	v := vocab.New()
	v.IgnoreLess = 1
	v.Add([][]string{{"a", "a", "b", "c", "c"}})

	tests := []struct {
		name     string
		sentence []string
		length   int
		want     []int
	}{
		{"pads", []string{"a"}, 4, []int{2, 0, 0, 0}},
		{"truncates", []string{"a", "c", "a", "c", "a"}, 3, []int{2, 3, 2}},
		{"rare and unseen are unk", []string{"b", "zzz", "c"}, 3, []int{1, 1, 3}},
		{"empty", nil, 2, []int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenizeSentence(tt.sentence, v, tt.length)
			if len(got) != tt.length {
				t.Fatalf("length %d, want %d", len(got), tt.length)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if v.Has("zzz") {
		t.Error("tokenizing must not add unseen words")
	}
}

func TestTokenizeData(t *testing.T) {
	v := vocab.Build(testL1)
	v.IgnoreLess = 1
	rows := TokenizeData(testL1, v, 5)
	if len(rows) != len(testL1) {
		t.Fatalf("expected %d rows, got %d", len(testL1), len(rows))
	}
	for i, row := range rows {
		if len(row) != 5 {
			t.Errorf("row %d has %d ids", i, len(row))
		}
	}
	// the cat sat / the dog sat
	if rows[0][0] != rows[1][0] || rows[0][2] != rows[1][2] {
		t.Errorf("shared words should share ids: %v %v", rows[0], rows[1])
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	cfg := testConfig(t)

	if _, err := New(cfg, nil, nil, quiet()); !errors.Is(err, errs.ErrEmptyCorpus) {
		t.Errorf("empty corpus: got %v", err)
	}
	if _, err := New(cfg, testL1, testL2[:3], quiet()); !errors.Is(err, errs.ErrShapeMismatch) {
		t.Errorf("unaligned corpora: got %v", err)
	}

	bad := cfg
	bad.BatchSize = 0
	if _, err := New(bad, testL1, testL2, quiet()); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Errorf("bad config: got %v", err)
	}
}

func TestTrainWritesArtifacts(t *testing.T) {
	cfg := testConfig(t)
	tr := newTestTrainer(t, cfg, testL1, testL2)

	res, err := tr.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(res.Epochs) != cfg.Epochs {
		t.Fatalf("expected %d epochs, got %d", cfg.Epochs, len(res.Epochs))
	}
	if !res.Epochs[0].Improved {
		t.Error("first epoch always checkpoints")
	}
	for _, e := range res.Epochs {
		if e.Steps != 2 || e.Skipped != 0 {
			t.Errorf("epoch %d: steps=%d skipped=%d", e.Epoch, e.Steps, e.Skipped)
		}
	}

	files := []string{
		"encoder.gob", "mu_head.gob", "var_head.gob", "decoder_l1.gob", "decoder_l2.gob",
		"L1_w2i.json", "L1_i2w.json", "L1_w2i_f.json", "L1_i2w_f.json",
		"L2_w2i.json", "L2_i2w.json", "L2_w2i_f.json", "L2_i2w_f.json",
		"metrics.json",
	}
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(cfg.OutDir, f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}

	if err := WriteManifest(cfg.OutDir, Manifest{Epochs: cfg.Epochs, BestLoss: res.BestLoss}); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutDir, "manifest.json")); err != nil {
		t.Error(err)
	}
}

func TestSameSeedSameLosses(t *testing.T) {
	a := newTestTrainer(t, testConfig(t), testL1, testL2)
	b := newTestTrainer(t, testConfig(t), testL1, testL2)

	ra, err := a.Train(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rb, err := b.Train(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(losses(ra), losses(rb)) {
		t.Errorf("same seed gave %v and %v", losses(ra), losses(rb))
	}
}

func TestShortFinalBatchSkipped(t *testing.T) {
	// the extra sentence only holds words seen once, so both filtered
	// vocabularies and therefore the model stay the same
	l1 := append(append([][]string{}, testL1...), []string{"zebra"})
	l2 := append(append([][]string{}, testL2...), []string{"zèbre"})

	full := newTestTrainer(t, testConfig(t), testL1, testL2)
	withTail := newTestTrainer(t, testConfig(t), l1, l2)

	rf, err := full.Train(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rt, err := withTail.Train(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range rt.Epochs {
		if e.Skipped != 1 || e.Steps != 2 {
			t.Errorf("epoch %d: steps=%d skipped=%d, want 2/1", e.Epoch, e.Steps, e.Skipped)
		}
	}
	// same two steps, averaged over three batches instead of two
	for i := range rf.Epochs {
		want := rf.Epochs[i].Loss * 2 / 3
		if got := rt.Epochs[i].Loss; math.Abs(got-want) > 1e-12*math.Abs(want) {
			t.Errorf("epoch %d: loss %v, want %v", i, got, want)
		}
	}
}

func TestNoFullBatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 8
	tr := newTestTrainer(t, cfg, testL1, testL2)

	res, err := tr.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(res.Epochs) != cfg.Epochs {
		t.Fatalf("expected %d epochs, got %d", cfg.Epochs, len(res.Epochs))
	}
	for _, e := range res.Epochs {
		if e.Steps != 0 || e.Skipped != 1 || e.Loss != 0 {
			t.Errorf("epoch %d: steps=%d skipped=%d loss=%v", e.Epoch, e.Steps, e.Skipped, e.Loss)
		}
	}
	for _, f := range []string{"encoder.gob", "L1_w2i.json", "L2_i2w_f.json", "metrics.json"} {
		if _, err := os.Stat(filepath.Join(cfg.OutDir, f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}
}

func TestTokenizeIndexesPastTruncation(t *testing.T) {
	sentences := [][]string{{"a", "b", "c"}, {"d", "c"}}
	v := vocab.Build(sentences)
	v.IgnoreLess = 0

	rows := TokenizeData(sentences, v, 2)
	if want := [][]int{{2, 3}, {5, 4}}; !reflect.DeepEqual(rows, want) {
		t.Errorf("rows %v, want %v", rows, want)
	}
	if w, _ := v.FilteredWord(4); w != "c" {
		t.Errorf("filtered id 4 = %q, want c", w)
	}
	if w, _ := v.FilteredWord(5); w != "d" {
		t.Errorf("filtered id 5 = %q, want d", w)
	}
}

func TestCheckpointRestore(t *testing.T) {
	cfg := testConfig(t)
	tr := newTestTrainer(t, cfg, testL1, testL2)
	dir := t.TempDir()

	if err := tr.Checkpoint(dir); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	before, err := tr.Embed(testL1[:1])
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tr.Train(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := tr.Restore(dir); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	after, err := tr.Embed(testL1[:1])
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before[0].RawMatrix().Data, after[0].RawMatrix().Data) {
		t.Error("restored parameters should reproduce the checkpointed embeddings")
	}

	if err := tr.Restore(t.TempDir()); err == nil {
		t.Error("restoring from an empty directory should fail")
	}
}

func TestEmbed(t *testing.T) {
	cfg := testConfig(t)
	tr := newTestTrainer(t, cfg, testL1, testL2)

	sentences := [][]string{
		{"the", "cat"},
		{},
		{"a", "dog", "ran", "the", "cat", "sat"},
	}
	out, err := tr.Embed(sentences)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != len(sentences) {
		t.Fatalf("expected %d matrices, got %d", len(sentences), len(out))
	}

	if r, c := out[0].Dims(); r != 2 || c != cfg.DimZ {
		t.Errorf("sentence 0: dims %dx%d", r, c)
	}
	if !out[1].IsEmpty() {
		t.Error("empty sentence should give an empty matrix")
	}
	if r, _ := out[2].Dims(); r != cfg.SentenceLength {
		t.Errorf("long sentence should be cut to %d rows, got %d", cfg.SentenceLength, r)
	}
}

func TestTrainRecordsRun(t *testing.T) {
	ctx := context.Background()
	rl, err := runlog.Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer rl.Close()

	tr := newTestTrainer(t, testConfig(t), testL1, testL2, WithRunLog(rl))
	res, err := tr.Train(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" {
		t.Fatal("run id not set")
	}

	epochs, err := rl.Epochs(ctx, res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(epochs) != len(res.Epochs) {
		t.Errorf("recorded %d epochs, trained %d", len(epochs), len(res.Epochs))
	}
	best, err := rl.BestEpoch(ctx, res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if best.Loss != res.BestLoss {
		t.Errorf("best loss %v, want %v", best.Loss, res.BestLoss)
	}
}

func TestTrainMetrics(t *testing.T) {
	l1 := append(append([][]string{}, testL1...), []string{"zebra"})
	l2 := append(append([][]string{}, testL2...), []string{"zèbre"})
	reg := prometheus.NewRegistry()

	tr := newTestTrainer(t, testConfig(t), l1, l2, WithRegisterer(reg))
	res, err := tr.Train(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(tr.metrics.epochs); got != 2 {
		t.Errorf("epochs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(tr.metrics.steps); got != 4 {
		t.Errorf("steps = %v, want 4", got)
	}
	if got := testutil.ToFloat64(tr.metrics.skipped); got != 2 {
		t.Errorf("skipped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(tr.metrics.bestLoss); got != res.BestLoss {
		t.Errorf("best loss = %v, want %v", got, res.BestLoss)
	}

	// a second trainer on the same registry collides
	if _, err := New(testConfig(t), testL1, testL2, quiet(), WithRegisterer(reg)); err == nil {
		t.Error("registering twice should fail")
	}
}
