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
	"sort"
	"sync"
	"time"
)

// DefaultMetricCapacity is the per-series ring buffer size.
const DefaultMetricCapacity = 1000

// Sample is one scalar observation of a named metric.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// metricSeries is the capped history of one metric plus running metadata.
type metricSeries struct {
	samples    *ringBuffer[Sample]
	min, max   float64
	lastUpdate time.Time
}

// MetricStore owns scalar metric histories keyed by metric name.
//
// Recording an unseen name implicitly registers it. Each series is a
// fixed-capacity ring buffer; the age sweep additionally drops samples
// older than the retention horizon and forgets series that empty out.
//
// # Thread Safety
//
// Safe for concurrent use; see the package comment.
type MetricStore struct {
	mu       sync.RWMutex
	series   map[string]*metricSeries
	capacity int
	now      func() time.Time
}

// NewMetricStore creates a metric store with the given per-series
// capacity. Non-positive capacity falls back to DefaultMetricCapacity.
func NewMetricStore(capacity int) *MetricStore {
	if capacity <= 0 {
		capacity = DefaultMetricCapacity
	}
	return &MetricStore{
		series:   make(map[string]*metricSeries),
		capacity: capacity,
		now:      time.Now,
	}
}

// Record appends a sample, registering the metric name if unseen.
// When the series is at capacity the oldest sample is dropped.
func (s *MetricStore) Record(name string, value float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.series[name]
	if !ok {
		ser = &metricSeries{
			samples: newRingBuffer[Sample](s.capacity),
			min:     value,
			max:     value,
		}
		s.series[name] = ser
	}
	ser.samples.Push(Sample{Timestamp: ts, Value: value})
	if value < ser.min {
		ser.min = value
	}
	if value > ser.max {
		ser.max = value
	}
	ser.lastUpdate = s.now()
}

// Series returns the sample history oldest-first, nil for unknown names.
func (s *MetricStore) Series(name string) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, ok := s.series[name]
	if !ok {
		return nil
	}
	return ser.samples.Slice()
}

// Latest returns the most recent sample of a metric.
func (s *MetricStore) Latest(name string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, ok := s.series[name]
	if !ok {
		return Sample{}, false
	}
	return ser.samples.Newest()
}

// Range returns samples within [from, to], oldest-first.
func (s *MetricStore) Range(name string, from, to time.Time) []Sample {
	all := s.Series(name)
	var out []Sample
	for _, sm := range all {
		if !sm.Timestamp.Before(from) && !sm.Timestamp.After(to) {
			out = append(out, sm)
		}
	}
	return out
}

// MinMax returns the running minimum and maximum ever recorded for the
// metric, including values whose samples have since been evicted.
func (s *MetricStore) MinMax(name string) (min, max float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, found := s.series[name]
	if !found {
		return 0, 0, false
	}
	return ser.min, ser.max, true
}

// Names returns the registered metric names, sorted.
func (s *MetricStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prune drops samples whose age has reached maxAge and forgets series
// that end up empty. A sample exactly at the horizon is evicted.
// Returns the number of samples dropped.
func (s *MetricStore) Prune(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	dropped := 0
	for name, ser := range s.series {
		dropped += ser.samples.TrimWhile(func(sm Sample) bool {
			return now.Sub(sm.Timestamp) >= maxAge
		})
		if ser.samples.Len() == 0 && now.Sub(ser.lastUpdate) >= maxAge {
			delete(s.series, name)
		}
	}
	if dropped > 0 {
		evictionsTotal.WithLabelValues("metric").Add(float64(dropped))
	}
	return dropped
}
