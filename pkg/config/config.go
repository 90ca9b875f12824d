// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the tensorviz YAML configuration.
//
// Configuration is instance-based: Load returns a Config and callers
// pass it down. There is no global singleton, so two sessions with
// different settings can coexist in one process.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps all validation failures.
var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration that reads YAML strings like "5m" or
// "30s". Bare integers are taken as seconds.
type Duration time.Duration

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration value must be a string or integer seconds: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// SyncConfig tunes the diff codec.
type SyncConfig struct {
	// DiffThreshold is the minimum |delta| that counts as a change.
	DiffThreshold float64 `yaml:"diff_threshold"`

	// MaxSparsity is the changed/total ratio at or below which a diff
	// ships sparse.
	MaxSparsity float64 `yaml:"max_sparsity"`
}

// RetentionConfig tunes store eviction.
type RetentionConfig struct {
	// TensorMaxAge evicts tensors not updated within the window.
	TensorMaxAge Duration `yaml:"tensor_max_age"`

	// MetricMaxAge evicts metric samples older than the window.
	MetricMaxAge Duration `yaml:"metric_max_age"`

	// MetricCapacity bounds samples kept per metric series.
	MetricCapacity int `yaml:"metric_capacity"`

	// BreakpointMaxAge evicts disabled breakpoints idle for the
	// window. Enabled breakpoints are never evicted.
	BreakpointMaxAge Duration `yaml:"breakpoint_max_age"`

	// TensorSweepInterval, MetricSweepInterval, BreakpointSweepInterval
	// set the independent prune tickers. Zero disables a sweep.
	TensorSweepInterval     Duration `yaml:"tensor_sweep_interval"`
	MetricSweepInterval     Duration `yaml:"metric_sweep_interval"`
	BreakpointSweepInterval Duration `yaml:"breakpoint_sweep_interval"`
}

// SessionConfig tunes the transport session.
type SessionConfig struct {
	// Endpoint is the websocket URL of the model process.
	Endpoint string `yaml:"endpoint"`

	// BackoffBase and BackoffCap bound the reconnect delay.
	BackoffBase Duration `yaml:"backoff_base"`
	BackoffCap  Duration `yaml:"backoff_cap"`

	// MaxAttempts bounds consecutive reconnect attempts.
	MaxAttempts int `yaml:"max_attempts"`
}

// Config is the full tensorviz configuration.
type Config struct {
	Sync      SyncConfig      `yaml:"sync"`
	Retention RetentionConfig `yaml:"retention"`
	Session   SessionConfig   `yaml:"session"`

	// LogLevel: debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Sync: SyncConfig{
			DiffThreshold: 0.01,
			MaxSparsity:   0.5,
		},
		Retention: RetentionConfig{
			TensorMaxAge:            Duration(time.Hour),
			MetricMaxAge:            Duration(5 * time.Minute),
			MetricCapacity:          1000,
			BreakpointMaxAge:        Duration(7 * 24 * time.Hour),
			TensorSweepInterval:     Duration(time.Minute),
			MetricSweepInterval:     Duration(time.Minute),
			BreakpointSweepInterval: Duration(time.Hour),
		},
		Session: SessionConfig{
			Endpoint:    "ws://localhost:8765/sync",
			BackoffBase: Duration(time.Second),
			BackoffCap:  Duration(30 * time.Second),
			MaxAttempts: 5,
		},
		LogLevel: "info",
	}
}

// Load reads and validates a config file. A missing file is created
// from defaults so a first run leaves something editable behind.
//
// # Inputs
//   - path: YAML file location.
//
// # Outputs
//   - Config: parsed and validated configuration.
//   - error: read, parse, or validation failure.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if werr := writeDefault(path); werr != nil {
			return Config{}, werr
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config. Fields absent from
// the document keep their defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges. It reports the first problem found,
// wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Session.Endpoint == "" {
		return fmt.Errorf("%w: session.endpoint is required", ErrInvalidConfig)
	}
	if c.Sync.DiffThreshold < 0 {
		return fmt.Errorf("%w: sync.diff_threshold must be >= 0, got %v",
			ErrInvalidConfig, c.Sync.DiffThreshold)
	}
	if c.Sync.MaxSparsity <= 0 || c.Sync.MaxSparsity > 1 {
		return fmt.Errorf("%w: sync.max_sparsity must be in (0, 1], got %v",
			ErrInvalidConfig, c.Sync.MaxSparsity)
	}
	if c.Retention.MetricCapacity <= 0 {
		return fmt.Errorf("%w: retention.metric_capacity must be positive, got %d",
			ErrInvalidConfig, c.Retention.MetricCapacity)
	}
	if c.Retention.TensorMaxAge <= 0 || c.Retention.MetricMaxAge <= 0 || c.Retention.BreakpointMaxAge <= 0 {
		return fmt.Errorf("%w: retention max ages must be positive", ErrInvalidConfig)
	}
	if c.Session.BackoffBase <= 0 || c.Session.BackoffCap < c.Session.BackoffBase {
		return fmt.Errorf("%w: session backoff base must be positive and <= cap",
			ErrInvalidConfig)
	}
	if c.Session.MaxAttempts <= 0 {
		return fmt.Errorf("%w: session.max_attempts must be positive, got %d",
			ErrInvalidConfig, c.Session.MaxAttempts)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level must be one of debug, info, warn, error; got %q",
			ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

func writeDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory %s: %w", dir, err)
		}
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write default config %s: %w", path, err)
	}
	return nil
}
