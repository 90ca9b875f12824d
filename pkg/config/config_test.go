// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.01, cfg.Sync.DiffThreshold)
	assert.Equal(t, 0.5, cfg.Sync.MaxSparsity)
	assert.Equal(t, 5*time.Minute, cfg.Retention.MetricMaxAge.Std())
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.BreakpointMaxAge.Std())
	assert.Equal(t, 5, cfg.Session.MaxAttempts)
}

func TestParse(t *testing.T) {
	t.Run("overrides merge onto defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(`
session:
  endpoint: ws://trainer:9000/sync
  backoff_base: 500ms
retention:
  metric_max_age: 10m
  metric_capacity: 50
log_level: debug
`))
		require.NoError(t, err)
		assert.Equal(t, "ws://trainer:9000/sync", cfg.Session.Endpoint)
		assert.Equal(t, 500*time.Millisecond, cfg.Session.BackoffBase.Std())
		assert.Equal(t, 10*time.Minute, cfg.Retention.MetricMaxAge.Std())
		assert.Equal(t, 50, cfg.Retention.MetricCapacity)
		assert.Equal(t, "debug", cfg.LogLevel)
		// Untouched fields keep defaults.
		assert.Equal(t, 0.5, cfg.Sync.MaxSparsity)
		assert.Equal(t, 30*time.Second, cfg.Session.BackoffCap.Std())
	})

	t.Run("bare integers are seconds", func(t *testing.T) {
		cfg, err := Parse([]byte("retention:\n  tensor_max_age: 120\n"))
		require.NoError(t, err)
		assert.Equal(t, 2*time.Minute, cfg.Retention.TensorMaxAge.Std())
	})

	t.Run("bad duration string rejected", func(t *testing.T) {
		_, err := Parse([]byte("retention:\n  tensor_max_age: soon\n"))
		require.Error(t, err)
	})

	t.Run("bad yaml rejected", func(t *testing.T) {
		_, err := Parse([]byte("{nope"))
		require.Error(t, err)
	})
}

func TestValidate_Rejections(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty endpoint", func(c *Config) { c.Session.Endpoint = "" }},
		{"negative threshold", func(c *Config) { c.Sync.DiffThreshold = -0.1 }},
		{"sparsity zero", func(c *Config) { c.Sync.MaxSparsity = 0 }},
		{"sparsity above one", func(c *Config) { c.Sync.MaxSparsity = 1.5 }},
		{"metric capacity zero", func(c *Config) { c.Retention.MetricCapacity = 0 }},
		{"tensor max age zero", func(c *Config) { c.Retention.TensorMaxAge = 0 }},
		{"cap below base", func(c *Config) {
			c.Session.BackoffBase = Duration(time.Minute)
			c.Session.BackoffCap = Duration(time.Second)
		}},
		{"max attempts zero", func(c *Config) { c.Session.MaxAttempts = 0 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file is created from defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tensorviz.yaml")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)

		// The file now exists and round-trips.
		_, statErr := os.Stat(path)
		require.NoError(t, statErr)
		again, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, again)
	})

	t.Run("existing file wins over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tensorviz.yaml")
		require.NoError(t, os.WriteFile(path,
			[]byte("session:\n  endpoint: ws://other:1234/sync\n"), 0644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "ws://other:1234/sync", cfg.Session.Endpoint)
	})

	t.Run("invalid file surfaces validation error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tensorviz.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
