package train

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Metrics is the per-epoch history written to metrics.json.
type Metrics struct {
	RunID    string       `json:"run_id,omitempty"`
	BestLoss float64      `json:"best_loss"`
	Epochs   []EpochStats `json:"epochs"`
}

// Manifest describes one trained model directory.
type Manifest struct {
	RunID          string    `json:"run_id,omitempty"`
	L1Path         string    `json:"l1_path"`
	L1Hash         string    `json:"l1_hash"`
	L2Path         string    `json:"l2_path"`
	L2Hash         string    `json:"l2_hash"`
	Sentences      int       `json:"sentences"`
	VocabL1        int       `json:"vocab_l1"`
	VocabL2        int       `json:"vocab_l2"`
	FilteredL1     int       `json:"filtered_l1"`
	FilteredL2     int       `json:"filtered_l2"`
	Epochs         int       `json:"epochs"`
	BatchSize      int       `json:"batch_size"`
	SentenceLength int       `json:"sentence_length"`
	EmbeddingDim   int       `json:"embedding_dim"`
	HiddenDim      int       `json:"hidden_dim"`
	DimZ           int       `json:"dim_z"`
	DecoderHidden  int       `json:"decoder_hidden"`
	IgnoreLess     int       `json:"ignore_less"`
	LearnRate      float64   `json:"learn_rate"`
	Seed           uint64    `json:"seed"`
	BestLoss       float64   `json:"best_loss"`
	TrainedAt      time.Time `json:"trained_at"`
	BuildVersion   string    `json:"build_version"`
}

// WriteManifest saves m as manifest.json inside dir.
func WriteManifest(dir string, m Manifest) error {
	return saveJSON(filepath.Join(dir, "manifest.json"), m)
}

func saveJSON(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
