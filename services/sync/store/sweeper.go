// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMetricRetention is the age horizon for metric samples.
const DefaultMetricRetention = 5 * time.Minute

// DefaultTensorRetention is the age horizon for tensor entities.
const DefaultTensorRetention = 10 * time.Minute

// SweeperConfig sets the per-store eviction intervals and age horizons.
// Zero intervals disable the corresponding sweep.
type SweeperConfig struct {
	TensorInterval     time.Duration
	MetricInterval     time.Duration
	BreakpointInterval time.Duration

	TensorMaxAge     time.Duration
	MetricMaxAge     time.Duration
	BreakpointMaxAge time.Duration
}

// DefaultSweeperConfig returns the standard sweep cadence: tensors and
// metrics every minute, breakpoints hourly.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		TensorInterval:     time.Minute,
		MetricInterval:     time.Minute,
		BreakpointInterval: time.Hour,
		TensorMaxAge:       DefaultTensorRetention,
		MetricMaxAge:       DefaultMetricRetention,
		BreakpointMaxAge:   DefaultBreakpointMaxAge,
	}
}

// Sweeper runs the periodic age-based eviction passes over all three
// stores. Each store ticks on its own independent interval; a pass over
// one store never blocks the others beyond the duration of its prune.
type Sweeper struct {
	cfg         SweeperConfig
	tensors     *TensorStore
	metrics     *MetricStore
	breakpoints *BreakpointStore
}

// NewSweeper wires the sweeper to the stores it prunes. Any store may be
// nil to exclude it.
func NewSweeper(cfg SweeperConfig, tensors *TensorStore, metrics *MetricStore, breakpoints *BreakpointStore) *Sweeper {
	return &Sweeper{cfg: cfg, tensors: tensors, metrics: metrics, breakpoints: breakpoints}
}

// Run blocks until ctx is cancelled, pruning on each store's interval.
func (sw *Sweeper) Run(ctx context.Context) error {
	tensorC := tickerChan(ctx, sw.cfg.TensorInterval)
	metricC := tickerChan(ctx, sw.cfg.MetricInterval)
	breakpointC := tickerChan(ctx, sw.cfg.BreakpointInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tensorC:
			if sw.tensors != nil {
				if n := sw.tensors.Prune(sw.cfg.TensorMaxAge); n > 0 {
					slog.Debug("tensor sweep evicted entities", "count", n)
				}
			}
		case <-metricC:
			if sw.metrics != nil {
				if n := sw.metrics.Prune(sw.cfg.MetricMaxAge); n > 0 {
					slog.Debug("metric sweep evicted samples", "count", n)
				}
			}
		case <-breakpointC:
			if sw.breakpoints != nil {
				if n := sw.breakpoints.Prune(sw.cfg.BreakpointMaxAge); n > 0 {
					slog.Debug("breakpoint sweep evicted entities", "count", n)
				}
			}
		}
	}
}

// tickerChan returns a ticking channel, or a never-firing one for a
// non-positive interval. The ticker stops when ctx is cancelled.
func tickerChan(ctx context.Context, interval time.Duration) <-chan time.Time {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	go func() {
		<-ctx.Done()
		t.Stop()
	}()
	return t.C
}
