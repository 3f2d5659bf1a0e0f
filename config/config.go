// Package config holds the training hyperparameters and loads them from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"embedalign/internal/errs"
)

// Config is the full training configuration.
type Config struct {
	Epochs         int     `yaml:"epochs"`
	BatchSize      int     `yaml:"batch_size"`
	DimZ           int     `yaml:"dim_z"`
	EmbeddingDim   int     `yaml:"embedding_dim"`
	HiddenDim      int     `yaml:"hidden_dim"`
	DecoderHidden  int     `yaml:"decoder_hidden"`
	SentenceLength int     `yaml:"sentence_length"`
	ReadLines      int     `yaml:"read_lines"`
	Window         int     `yaml:"window"`
	Negatives      int     `yaml:"negatives"`
	IgnoreLess     int     `yaml:"ignore_less"`
	LearnRate      float64 `yaml:"learn_rate"`
	Seed           uint64  `yaml:"seed"`
	L1Language     string  `yaml:"l1_language"`
	L2Language     string  `yaml:"l2_language"`
	OutDir         string  `yaml:"out_dir"`
	RunDB          string  `yaml:"run_db"`
}

// Default returns the stock hyperparameters.
func Default() Config {
	return Config{
		Epochs:         30,
		BatchSize:      32,
		DimZ:           32,
		EmbeddingDim:   128,
		HiddenDim:      100,
		DecoderHidden:  250,
		SentenceLength: 64,
		ReadLines:      0,
		Window:         2,
		Negatives:      5,
		IgnoreLess:     3,
		LearnRate:      0.001,
		Seed:           1,
		L1Language:     "english",
		L2Language:     "french",
		OutDir:         ".",
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every size is usable.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"epochs", c.Epochs},
		{"batch_size", c.BatchSize},
		{"dim_z", c.DimZ},
		{"embedding_dim", c.EmbeddingDim},
		{"hidden_dim", c.HiddenDim},
		{"decoder_hidden", c.DecoderHidden},
		{"sentence_length", c.SentenceLength},
		{"window", c.Window},
		{"negatives", c.Negatives},
	}
	for _, p := range positive {
		if p.value < 1 {
			return fmt.Errorf("%w: %s must be positive, got %d", errs.ErrInvalidConfig, p.name, p.value)
		}
	}
	if c.ReadLines < 0 {
		return fmt.Errorf("%w: read_lines must be >= 0, got %d", errs.ErrInvalidConfig, c.ReadLines)
	}
	if c.IgnoreLess < 0 {
		return fmt.Errorf("%w: ignore_less must be >= 0, got %d", errs.ErrInvalidConfig, c.IgnoreLess)
	}
	if c.LearnRate <= 0 {
		return fmt.Errorf("%w: learn_rate must be positive, got %v", errs.ErrInvalidConfig, c.LearnRate)
	}
	return nil
}
