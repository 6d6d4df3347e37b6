// Package config loads anchorengine's TOML configuration file: named
// defaults first, then a TOML decode on top of them, so a partial file
// only overrides the keys it names.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/anchorlab/anchorengine/internal/domain"
	"github.com/anchorlab/anchorengine/internal/infra/aggregator"
	"github.com/anchorlab/anchorengine/internal/infra/anchor"
	"github.com/anchorlab/anchorengine/internal/infra/bandit"
	"github.com/anchorlab/anchorengine/internal/infra/coverage"
	"github.com/anchorlab/anchorengine/internal/infra/sampling"
)

// SearchConfig controls one anchor construction run.
type SearchConfig struct {
	Delta                float64 `toml:"delta"`
	Eps                  float64 `toml:"eps"`
	Tau                  float64 `toml:"tau"`
	TauDiscrepancy       float64 `toml:"tau_discrepancy"`
	BeamSize             int     `toml:"beam_size"`
	MaxAnchorSize        int     `toml:"max_anchor_size"`
	InitSampleCount      int     `toml:"init_sample_count"`
	LazyCoverage         bool    `toml:"lazy_coverage"`
	AllowSuboptimalSteps bool    `toml:"allow_suboptimal_steps"`
	MaxValidationRounds  int     `toml:"max_validation_rounds"`
}

// SamplingConfig controls the sampling service.
type SamplingConfig struct {
	Strategy        string `toml:"strategy"` // "linear" | "parallel" | "balanced_parallel"
	Workers         int    `toml:"workers"`
	CoverageSamples int    `toml:"coverage_samples"`
}

// BanditConfig controls the bandit identifier.
type BanditConfig struct {
	Variant     string  `toml:"variant"` // "klucb" | "batchracing" | "batchsar"
	BatchSize   int     `toml:"batch_size"`
	CapPerArm   int     `toml:"cap_per_arm"`
	BatchBudget int     `toml:"batch_budget"`
	Eps         float64 `toml:"eps"`
}

// AggregatorConfig controls the global aggregator.
type AggregatorConfig struct {
	D              int    `toml:"d"`
	ImportanceMode string `toml:"importance_mode"` // "precision" | "coverage" | "appearance"
	AtomIdentity   string `toml:"atom_identity"`   // "feature" | "feature_value"
	Workers        int    `toml:"workers"`
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StoreConfig controls persistence.
type StoreConfig struct {
	Path string `toml:"path"`
}

// Config is the root configuration document, decoded from a single TOML
// file on top of DefaultConfig's values.
type Config struct {
	Search     SearchConfig     `toml:"search"`
	Sampling   SamplingConfig   `toml:"sampling"`
	Bandit     BanditConfig     `toml:"bandit"`
	Aggregator AggregatorConfig `toml:"aggregator"`
	API        APIConfig        `toml:"api"`
	Store      StoreConfig      `toml:"store"`
}

// DefaultConfig returns the engine's named defaults.
func DefaultConfig() Config {
	return Config{
		Search: SearchConfig{
			Delta:                0.1,
			Eps:                  0.1,
			Tau:                  1.0,
			TauDiscrepancy:       0.05,
			BeamSize:             2,
			MaxAnchorSize:        0,
			InitSampleCount:      1,
			LazyCoverage:         true,
			AllowSuboptimalSteps: true,
			MaxValidationRounds:  10000,
		},
		Sampling: SamplingConfig{
			Strategy:        "parallel",
			Workers:         4,
			CoverageSamples: coverage.DefaultSampleCount,
		},
		Bandit: BanditConfig{
			Variant:     "klucb",
			BatchSize:   1,
			CapPerArm:   1,
			BatchBudget: 100,
			Eps:         0.1,
		},
		Aggregator: AggregatorConfig{
			D:              3,
			ImportanceMode: "appearance",
			AtomIdentity:   "feature",
			Workers:        4,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8420,
		},
		Store: StoreConfig{
			Path: "anchorengine.db",
		},
	}
}

// LoadConfig decodes path over DefaultConfig's values. A missing file is
// not an error — callers that only want defaults may pass an empty path.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// AnchorConfig maps SearchConfig plus the sampling strategy/workers onto
// anchor.Config, the shape the constructor actually takes.
func (c Config) AnchorConfig() anchor.Config {
	return anchor.Config{
		Delta:                c.Search.Delta,
		Eps:                  c.Search.Eps,
		Tau:                  c.Search.Tau,
		TauDiscrepancy:       c.Search.TauDiscrepancy,
		BeamSize:             c.Search.BeamSize,
		MaxAnchorSize:        c.Search.MaxAnchorSize,
		InitSampleCount:      c.Search.InitSampleCount,
		LazyCoverage:         c.Search.LazyCoverage,
		AllowSuboptimalSteps: c.Search.AllowSuboptimalSteps,
		Strategy:             c.SamplingStrategy(),
		Workers:              c.Sampling.Workers,
		MaxValidationRounds:  c.Search.MaxValidationRounds,
	}
}

// SamplingStrategy resolves the configured strategy name, defaulting to
// Parallel for anything unrecognized.
func (c Config) SamplingStrategy() sampling.Strategy {
	switch c.Sampling.Strategy {
	case "linear":
		return sampling.Linear
	case "balanced_parallel":
		return sampling.BalancedParallel
	default:
		return sampling.Parallel
	}
}

// AggregatorConfig maps the Aggregator/Search sections onto
// aggregator.Config.
func (c Config) AggregatorConfig() aggregator.Config {
	return aggregator.Config{
		Anchor:          c.AnchorConfig(),
		CoverageSamples: c.Sampling.CoverageSamples,
		Identity:        c.atomIdentity(),
		Mode:            c.importanceMode(),
		Workers:         c.Aggregator.Workers,
	}
}

func (c Config) atomIdentity() domain.AtomIdentity {
	if c.Aggregator.AtomIdentity == "feature_value" {
		return domain.AtomByFeatureValue
	}
	return domain.AtomByFeature
}

func (c Config) importanceMode() domain.ImportanceMode {
	switch c.Aggregator.ImportanceMode {
	case "precision":
		return domain.FeaturePrecision
	case "coverage":
		return domain.FeatureCoverage
	default:
		return domain.FeatureAppearance
	}
}

// BanditIdentifier builds the configured bandit.Identifier variant.
func (c Config) BanditIdentifier() bandit.Identifier {
	switch c.Bandit.Variant {
	case "batchracing":
		return bandit.BatchRacing{
			Delta:     c.Search.Delta,
			BatchSize: c.Bandit.BatchSize,
			CapPerArm: c.Bandit.CapPerArm,
		}
	case "batchsar":
		return bandit.BatchSAR{
			BatchBudget: c.Bandit.BatchBudget,
			BatchSize:   c.Bandit.BatchSize,
			CapPerArm:   c.Bandit.CapPerArm,
		}
	default:
		return bandit.KLLUCB{
			Delta:     c.Search.Delta,
			Eps:       c.Bandit.Eps,
			BatchSize: c.Bandit.BatchSize,
		}
	}
}
