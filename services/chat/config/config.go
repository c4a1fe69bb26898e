// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config provides tuning configuration for the chat history
// subsystem.
//
// The tuning constants trade sweep latency against eviction precision
// and are configuration, not fixed law: deployments may override them
// via a YAML file without touching the algorithms.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize caps config reads to prevent memory issues from
// oversized files.
const MaxConfigFileSize = 1024 * 1024

// HistoryConfig tunes the per-workspace history store.
type HistoryConfig struct {
	// MaxRequestCharacters is the character budget ceiling for one
	// remote request.
	MaxRequestCharacters int `yaml:"max_request_characters"`

	// MaxRequestMessages caps stored messages loaded per request.
	MaxRequestMessages int `yaml:"max_request_messages"`

	// SearchDebounce is the window in which a newer search cancels a
	// still-pending one.
	SearchDebounce time.Duration `yaml:"search_debounce"`

	// AutosaveInterval is how often the open document is flushed to
	// disk, independent of caller activity.
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
}

// MaintenanceConfig tunes the cross-workspace size maintainer.
type MaintenanceConfig struct {
	// MaxTotalBytes is the hard ceiling on summed history document
	// sizes; exceeding it triggers a trim sweep.
	MaxTotalBytes int64 `yaml:"max_total_bytes"`

	// TargetTotalBytes is where a sweep stops evicting. Keeping it below
	// MaxTotalBytes gives hysteresis so the next size check does not
	// immediately re-trigger.
	TargetTotalBytes int64 `yaml:"target_total_bytes"`

	// MaxIterations bounds trim-loop iterations even if size accounting
	// lags reality.
	MaxIterations int `yaml:"max_iterations"`

	// BatchIterations sizes one trim batch; up to BatchIterations/2 tabs
	// are dequeued per batch.
	BatchIterations int `yaml:"batch_iterations"`

	// PairsPerBatch is how many oldest message-pairs are removed per tab
	// per batch. Higher values evict faster but overshoot more before
	// the next size recomputation.
	PairsPerBatch int `yaml:"pairs_per_batch"`

	// MinSweepInterval rate-limits watcher-triggered sweeps.
	MinSweepInterval time.Duration `yaml:"min_sweep_interval"`
}

// Config is the root configuration.
type Config struct {
	History     HistoryConfig     `yaml:"history"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// Default returns production defaults.
func Default() Config {
	return Config{
		History: HistoryConfig{
			MaxRequestCharacters: 600_000,
			MaxRequestMessages:   250,
			SearchDebounce:       300 * time.Millisecond,
			AutosaveInterval:     10 * time.Second,
		},
		Maintenance: MaintenanceConfig{
			MaxTotalBytes:    200 * 1024 * 1024,
			TargetTotalBytes: 150 * 1024 * 1024,
			MaxIterations:    100,
			BatchIterations:  200,
			PairsPerBatch:    5,
			MinSweepInterval: time.Minute,
		},
	}
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	if c.History.MaxRequestCharacters <= 0 {
		return errors.New("history.max_request_characters must be positive")
	}
	if c.History.MaxRequestMessages <= 0 {
		return errors.New("history.max_request_messages must be positive")
	}
	if c.History.AutosaveInterval <= 0 {
		return errors.New("history.autosave_interval must be positive")
	}
	if c.Maintenance.MaxTotalBytes <= 0 {
		return errors.New("maintenance.max_total_bytes must be positive")
	}
	if c.Maintenance.TargetTotalBytes <= 0 || c.Maintenance.TargetTotalBytes > c.Maintenance.MaxTotalBytes {
		return errors.New("maintenance.target_total_bytes must be in (0, max_total_bytes]")
	}
	if c.Maintenance.MaxIterations <= 0 {
		return errors.New("maintenance.max_iterations must be positive")
	}
	if c.Maintenance.BatchIterations < 2 {
		return errors.New("maintenance.batch_iterations must be at least 2")
	}
	if c.Maintenance.PairsPerBatch <= 0 {
		return errors.New("maintenance.pairs_per_batch must be positive")
	}
	return nil
}

// Load reads a YAML config file, applying values over defaults. A
// missing file returns defaults without error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.Size() > MaxConfigFileSize {
		return cfg, fmt.Errorf("config %s exceeds %d bytes", path, MaxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultHistoryDir returns the per-user history directory.
func DefaultHistoryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".aleutian", "assistant", "history")
	}
	return filepath.Join(home, ".aleutian", "assistant", "history")
}
