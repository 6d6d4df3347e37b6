package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anchorlab/anchorengine/internal/infra/bandit"
	"github.com/anchorlab/anchorengine/internal/infra/sampling"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Search.Delta != 0.1 {
		t.Errorf("Search.Delta = %v, want 0.1", cfg.Search.Delta)
	}
	if cfg.Search.Tau != 1.0 {
		t.Errorf("Search.Tau = %v, want 1.0", cfg.Search.Tau)
	}
	if cfg.Search.BeamSize != 2 {
		t.Errorf("Search.BeamSize = %d, want 2", cfg.Search.BeamSize)
	}
	if cfg.Sampling.Strategy != "parallel" {
		t.Errorf("Sampling.Strategy = %q, want %q", cfg.Sampling.Strategy, "parallel")
	}
	if cfg.API.Port != 8420 {
		t.Errorf("API.Port = %d, want 8420", cfg.API.Port)
	}
	if cfg.Store.Path != "anchorengine.db" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "anchorengine.db")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("LoadConfig on missing file = %+v, want defaults", cfg)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[search]
beam_size = 5
tau = 0.9

[sampling]
strategy = "linear"
workers = 8

[bandit]
variant = "batchsar"

[api]
port = 9000
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Search.BeamSize != 5 {
		t.Errorf("Search.BeamSize = %d, want 5", cfg.Search.BeamSize)
	}
	if cfg.Search.Tau != 0.9 {
		t.Errorf("Search.Tau = %v, want 0.9", cfg.Search.Tau)
	}
	if cfg.Sampling.Strategy != "linear" {
		t.Errorf("Sampling.Strategy = %q, want %q", cfg.Sampling.Strategy, "linear")
	}
	if cfg.Sampling.Workers != 8 {
		t.Errorf("Sampling.Workers = %d, want 8", cfg.Sampling.Workers)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	// Untouched sections keep their defaults.
	if cfg.Search.Delta != 0.1 {
		t.Errorf("Search.Delta = %v, want default 0.1", cfg.Search.Delta)
	}

	if got := cfg.SamplingStrategy(); got != sampling.Linear {
		t.Errorf("SamplingStrategy() = %v, want Linear", got)
	}
	if _, ok := cfg.BanditIdentifier().(bandit.BatchSAR); !ok {
		t.Errorf("BanditIdentifier() = %T, want bandit.BatchSAR", cfg.BanditIdentifier())
	}
}

func TestAnchorConfigMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Search.BeamSize = 3
	cfg.Sampling.Workers = 6

	ac := cfg.AnchorConfig()
	if ac.BeamSize != 3 {
		t.Errorf("AnchorConfig().BeamSize = %d, want 3", ac.BeamSize)
	}
	if ac.Workers != 6 {
		t.Errorf("AnchorConfig().Workers = %d, want 6", ac.Workers)
	}
	if ac.Strategy != sampling.Parallel {
		t.Errorf("AnchorConfig().Strategy = %v, want Parallel", ac.Strategy)
	}
}
