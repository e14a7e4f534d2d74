// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package config reads and writes the TOML files describing batches of matchups.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jcodagnone/ocomatch/matching"
	"github.com/pelletier/go-toml/v2"
)

// Matchup describes one run: which lite files to match and where to write
// the match groups. Optional thresholds fall back to the defaults of the
// matching package.
type Matchup struct {
	OutputFile string   `toml:"output_file"`
	ALiteFile  string   `toml:"a_lite_file"`
	BLiteFiles []string `toml:"b_lite_files"`

	Flag0Only    bool `toml:"flag0_only"`
	SelfCrossing bool `toml:"self_crossing"`

	MaxDistanceKm   *float32 `toml:"max_distance_km,omitempty"`
	MaxDeltaSeconds *float64 `toml:"max_delta_seconds,omitempty"`
	MinDeltaSeconds *float64 `toml:"min_delta_seconds,omitempty"`

	// SaveFullMatchesAs, when set, is where the full matches are saved.
	SaveFullMatchesAs string `toml:"save_full_matches_as,omitempty"`
	// ReadFullMatches, when set, replaces matching with a saved snapshot.
	ReadFullMatches string `toml:"read_full_matches,omitempty"`
}

// RunConfig is the content of a batch file.
type RunConfig struct {
	Matchups []Matchup `toml:"matchups"`
}

// Thresholds returns the matching options of m, leaving Parallelism and
// Progress unset.
func (m *Matchup) Thresholds() matching.Options {
	opts := matching.DefaultOptions()
	if m.SelfCrossing {
		opts = opts.SelfCrossing()
	}

	if m.MaxDistanceKm != nil {
		opts.MaxDistanceKm = *m.MaxDistanceKm
	}

	if m.MaxDeltaSeconds != nil {
		opts.MaxDeltaSeconds = *m.MaxDeltaSeconds
	}

	if m.MinDeltaSeconds != nil {
		opts.MinDeltaSeconds = *m.MinDeltaSeconds
	}

	return opts
}

// Validate ensures the matchup can be run.
func (m *Matchup) Validate() error {
	if strings.TrimSpace(m.OutputFile) == "" {
		return errors.New("output_file must be set")
	}

	if m.ReadFullMatches == "" {
		if strings.TrimSpace(m.ALiteFile) == "" {
			return errors.New("a_lite_file must be set unless read_full_matches is")
		}

		if len(m.BLiteFiles) == 0 {
			return errors.New("b_lite_files needs at least one file unless read_full_matches is set")
		}
	}

	opts := m.Thresholds()
	if !(opts.MaxDistanceKm > 0) {
		return fmt.Errorf("max_distance_km must be positive, got %v", opts.MaxDistanceKm)
	}

	if !(opts.MaxDeltaSeconds > 0) {
		return fmt.Errorf("max_delta_seconds must be positive, got %v", opts.MaxDeltaSeconds)
	}

	if opts.MinDeltaSeconds >= opts.MaxDeltaSeconds {
		return fmt.Errorf("min_delta_seconds (%v) must be smaller than max_delta_seconds (%v)",
			opts.MinDeltaSeconds, opts.MaxDeltaSeconds)
	}

	return nil
}

// Validate checks every matchup.
func (c *RunConfig) Validate() error {
	if len(c.Matchups) == 0 {
		return errors.New("no [[matchups]] defined")
	}

	for i := range c.Matchups {
		if err := c.Matchups[i].Validate(); err != nil {
			return fmt.Errorf("matchups[%d]: %w", i, err)
		}
	}

	return nil
}

// Load parses and validates a batch file. Unknown keys are rejected.
func Load(path string) (*RunConfig, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg RunConfig

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			keys := make([]string, 0, len(strict.Errors))
			for _, e := range strict.Errors {
				keys = append(keys, strings.Join(e.Key(), "."))
			}

			return nil, fmt.Errorf("parse config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}

		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *RunConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
