// Package config defines the single structured options object handed to the
// orchestrator at startup. Core packages receive this struct ready-made;
// only the command layer ever touches configuration files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	hjson "github.com/hjson/hjson-go/v4"
	"gopkg.in/yaml.v2"
)

// Config aggregates every tunable threshold of the pipeline.
type Config struct {
	// Sections lists the 10-K item numbers to extract, e.g. ["1A", "7"].
	Sections []string `yaml:"sections" json:"sections"`

	// Segmentation thresholds.
	FloorWords   int `yaml:"floor_words" json:"floor_words"`
	CeilingWords int `yaml:"ceiling_words" json:"ceiling_words"`
	// TokenBudget, when set, derives CeilingWords from a downstream token
	// budget instead of using CeilingWords directly.
	TokenBudget   int     `yaml:"token_budget" json:"token_budget"`
	TokensPerWord float64 `yaml:"tokens_per_word" json:"tokens_per_word"`
	// MinSegments is the sparse-signal cutoff for non-terminal splitting
	// strategies. Empirically tuned per document family.
	MinSegments int `yaml:"min_segments" json:"min_segments"`

	// FlattenThresholdBytes gates the structural flattener.
	FlattenThresholdBytes int `yaml:"flatten_threshold_bytes" json:"flatten_threshold_bytes"`

	// Batch behavior. Durations are strings ("5m", "10s") so both config
	// formats parse them uniformly.
	Workers            int     `yaml:"workers" json:"workers"`
	MaxAttempts        int     `yaml:"max_attempts" json:"max_attempts"`
	DocumentTimeout    string  `yaml:"document_timeout" json:"document_timeout"`
	RetryBackoff       string  `yaml:"retry_backoff" json:"retry_backoff"`
	MemoryBudgetBytes  int64   `yaml:"memory_budget_bytes" json:"memory_budget_bytes"`
	MemoryFraction     float64 `yaml:"memory_fraction" json:"memory_fraction"`
	ParsedTreeCacheLen int     `yaml:"parsed_tree_cache_len" json:"parsed_tree_cache_len"`

	// Output locations.
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	StatePath string `yaml:"state_path" json:"state_path"`

	// WriteArtifacts enables the intermediate artifact set (node dumps,
	// section markdown, excluded-table markdown). Not required for
	// correctness.
	WriteArtifacts bool `yaml:"write_artifacts" json:"write_artifacts"`
}

// Default returns the tuned defaults for 10-K processing.
func Default() Config {
	return Config{
		Sections:              []string{"1A"},
		FloorWords:            20,
		CeilingWords:          360,
		TokensPerWord:         1.33,
		MinSegments:           3,
		FlattenThresholdBytes: 5 << 20,
		Workers:               4,
		MaxAttempts:           3,
		DocumentTimeout:       "5m",
		RetryBackoff:          "10s",
		MemoryBudgetBytes:     4 << 30,
		MemoryFraction:        0.25,
		ParsedTreeCacheLen:    8,
		OutputDir:             "output",
		StatePath:             "output/run_state.json",
	}
}

// Load reads a YAML or HJSON config file over the defaults. The format is
// chosen by extension (.hjson vs anything else).
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".hjson") {
		if err := hjson.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse hjson config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DocumentTimeoutDuration parses the per-document timeout, defaulting to 5m.
func (c *Config) DocumentTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.DocumentTimeout); err == nil && d > 0 {
		return d
	}
	return 5 * time.Minute
}

// RetryBackoffDuration parses the base retry backoff, defaulting to 10s.
func (c *Config) RetryBackoffDuration() time.Duration {
	if d, err := time.ParseDuration(c.RetryBackoff); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}

// Validate rejects configurations the pipeline cannot honor.
func (c *Config) Validate() error {
	if len(c.Sections) == 0 {
		return fmt.Errorf("config: at least one section id is required")
	}
	if c.FloorWords <= 0 || c.CeilingWords <= c.FloorWords {
		return fmt.Errorf("config: need 0 < floor_words < ceiling_words (got %d, %d)", c.FloorWords, c.CeilingWords)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive")
	}
	if c.MemoryFraction <= 0 || c.MemoryFraction > 1 {
		return fmt.Errorf("config: memory_fraction must be in (0, 1]")
	}
	return nil
}
