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
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/tensorviz/services/sync/diff"
	"github.com/AleutianAI/tensorviz/services/sync/stats"
)

// Tensor is a versioned snapshot of a named tensor on the observed process.
//
// Version starts at 1 on the first full load and increments only on a
// later full resend. Diffs are continuations of the same logical version;
// they bump LastUpdated but not Version. Version 0 marks a metadata-only
// entity seen through a light update before any full load arrived.
type Tensor struct {
	Name        string
	Buffer      []float32
	Shape       []int
	Dtype       string
	Device      string
	Version     int
	LastUpdated time.Time

	// Sparsity is the changed-element ratio of the most recent sparse
	// diff, 0 until one has been applied.
	Sparsity float64

	// Stats is refreshed on every buffer mutation and by light updates.
	Stats stats.Summary
}

// LightUpdate carries the optional fields of a stat-only refresh.
// Nil fields leave the entity's current value in place.
type LightUpdate struct {
	Shape  []int
	Dtype  string
	Device string
	Stats  *stats.Summary
}

// TensorStore owns the mapping from tensor name to versioned entity.
//
// # Thread Safety
//
// Safe for concurrent use. Dispatch is the single writer for updates, but
// the eviction sweep runs on its own timer, so the map is mutex-guarded.
type TensorStore struct {
	mu       sync.RWMutex
	entities map[string]*Tensor
	kernel   stats.Kernel
	now      func() time.Time
}

// NewTensorStore creates an empty tensor store. The kernel recomputes
// buffer statistics after every mutation.
func NewTensorStore(kernel stats.Kernel) *TensorStore {
	if kernel == nil {
		kernel = stats.Select()
	}
	return &TensorStore{
		entities: make(map[string]*Tensor),
		kernel:   kernel,
		now:      time.Now,
	}
}

// UpsertFull replaces the entity wholesale from a full snapshot.
//
// # Description
//
// First observation of a key creates the entity at version 1; a full
// resend of an existing key replaces buffer, shape, and dtype and
// increments the version. The buffer and shape are copied, so the caller
// keeps ownership of its slices.
//
// # Outputs
//
//   - error: ErrLengthMismatch when len(buf) != product(shape); the
//     store is unchanged.
func (s *TensorStore) UpsertFull(name string, buf []float32, shape []int, dtype string) error {
	if len(buf) != diff.NumElements(shape) {
		return fmt.Errorf("%w: %q has %d elements for shape %v",
			ErrLengthMismatch, name, len(buf), shape)
	}

	bufCopy := make([]float32, len(buf))
	copy(bufCopy, buf)
	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)

	s.mu.Lock()
	defer s.mu.Unlock()

	version := 1
	device := ""
	if prev, ok := s.entities[name]; ok && prev.Version > 0 {
		version = prev.Version + 1
		device = prev.Device
	}
	s.entities[name] = &Tensor{
		Name:        name,
		Buffer:      bufCopy,
		Shape:       shapeCopy,
		Dtype:       dtype,
		Device:      device,
		Version:     version,
		LastUpdated: s.now(),
		Stats:       s.kernel.Compute(bufCopy),
	}
	fullLoadsTotal.Inc()
	return nil
}

// ApplyDiff validates and applies a diff to the named entity's buffer.
//
// The diff is checked against the entity's current shape before anything
// is mutated; on any validation failure the entity retains its last valid
// state and the error is returned for the caller to report. Application is
// all-or-nothing per diff.
func (s *TensorStore) ApplyDiff(name string, d *diff.Diff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[name]
	if !ok || e.Version == 0 {
		diffAppliesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: tensor %q", ErrNotFound, name)
	}
	if err := diff.Validate(d, e.Shape); err != nil {
		diffAppliesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("diff for %q: %w", name, err)
	}
	if err := diff.Apply(e.Buffer, d); err != nil {
		diffAppliesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("diff for %q: %w", name, err)
	}

	if d != nil && d.Kind == diff.KindSparse {
		e.Sparsity = float64(len(d.Indices)) / float64(len(e.Buffer))
	}
	e.LastUpdated = s.now()
	e.Stats = s.kernel.Compute(e.Buffer)
	diffAppliesTotal.WithLabelValues("applied").Inc()
	return nil
}

// ApplyLight refreshes metadata from a stat-only update.
//
// An unknown key creates a metadata-only entity at version 0 (no buffer);
// such entities reject diffs until a full load arrives.
func (s *TensorStore) ApplyLight(name string, upd LightUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[name]
	if !ok {
		e = &Tensor{Name: name}
		s.entities[name] = e
	}
	if upd.Shape != nil {
		e.Shape = append([]int(nil), upd.Shape...)
	}
	if upd.Dtype != "" {
		e.Dtype = upd.Dtype
	}
	if upd.Device != "" {
		e.Device = upd.Device
	}
	if upd.Stats != nil {
		e.Stats = *upd.Stats
	}
	e.LastUpdated = s.now()
}

// Get returns the live entity. Callers must treat it as read-only; use
// Snapshot for a copy that survives later in-place diff application.
func (s *TensorStore) Get(name string) (*Tensor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[name]
	return e, ok
}

// Snapshot returns a deep copy of the entity, isolating the reader from
// in-place mutation by later diffs.
func (s *TensorStore) Snapshot(name string) (*Tensor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[name]
	if !ok {
		return nil, false
	}
	cp := *e
	cp.Buffer = append([]float32(nil), e.Buffer...)
	cp.Shape = append([]int(nil), e.Shape...)
	return &cp, true
}

// Names returns all known tensor names in unspecified order.
func (s *TensorStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entities))
	for name := range s.entities {
		names = append(names, name)
	}
	return names
}

// Len returns the number of entities.
func (s *TensorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Prune evicts entities not updated for maxAge or longer and returns the
// eviction count.
func (s *TensorStore) Prune(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for name, e := range s.entities {
		if now.Sub(e.LastUpdated) >= maxAge {
			delete(s.entities, name)
			evicted++
		}
	}
	if evicted > 0 {
		evictionsTotal.WithLabelValues("tensor").Add(float64(evicted))
	}
	return evicted
}
