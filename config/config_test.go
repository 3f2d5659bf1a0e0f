package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"embedalign/internal/errs"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.IgnoreLess != 3 || cfg.SentenceLength != 64 || cfg.BatchSize != 32 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	yml := "epochs: 2\nbatch_size: 128\ndim_z: 150\nread_lines: 1000\nrun_db: runs.db\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Epochs != 2 || cfg.BatchSize != 128 || cfg.DimZ != 150 || cfg.ReadLines != 1000 {
		t.Errorf("YAML values not applied: %+v", cfg)
	}
	if cfg.RunDB != "runs.db" {
		t.Errorf("RunDB = %q", cfg.RunDB)
	}
	if cfg.EmbeddingDim != 128 || cfg.HiddenDim != 100 {
		t.Errorf("unset keys should keep defaults: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("batch_size: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("/nonexistent/train.yaml"); err == nil {
		t.Error("missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("epochs: [1, 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative read_lines", func(c *Config) { c.ReadLines = -1 }},
		{"zero window", func(c *Config) { c.Window = 0 }},
		{"negative ignore_less", func(c *Config) { c.IgnoreLess = -2 }},
		{"zero learn rate", func(c *Config) { c.LearnRate = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, errs.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
