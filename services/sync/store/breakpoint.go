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
)

// DefaultBreakpointMaxAge is how long a disabled breakpoint survives
// without a hit before the sweep evicts it.
const DefaultBreakpointMaxAge = 7 * 24 * time.Hour

// Capture is the tensor snapshot attached to a breakpoint hit.
type Capture struct {
	Data  []float32 `json:"data"`
	Shape []int     `json:"shape"`
	Dtype string    `json:"dtype"`
}

// Breakpoint is a conditional watch on a model layer.
//
// The condition is an opaque expression evaluated by the observed
// process; this store only validates its syntax through the injected
// checker and tracks hit bookkeeping.
type Breakpoint struct {
	Layer       string
	Condition   string
	Enabled     bool
	HitCount    int
	CreatedAt   time.Time
	LastHit     time.Time
	LastCapture *Capture
}

// ConditionChecker validates breakpoint condition syntax. Implemented by
// the condition package; the store never evaluates expressions itself.
type ConditionChecker interface {
	Check(condition string) error
}

// BreakpointStore owns breakpoints keyed by layer identifier.
//
// Lifecycle: created by explicit client action; hit bookkeeping mutated
// only by inbound breakpoint_hit events while enabled; disabled entities
// past the max age are evicted by the sweep; enabled entities never are.
type BreakpointStore struct {
	mu       sync.RWMutex
	entities map[string]*Breakpoint
	checker  ConditionChecker
	now      func() time.Time
}

// NewBreakpointStore creates an empty breakpoint store. The checker
// gates Create and SetCondition; a nil checker accepts everything.
func NewBreakpointStore(checker ConditionChecker) *BreakpointStore {
	return &BreakpointStore{
		entities: make(map[string]*Breakpoint),
		checker:  checker,
		now:      time.Now,
	}
}

// Create registers a breakpoint on the layer, enabled, with zeroed hit
// bookkeeping. An existing breakpoint on the same layer is replaced.
// The condition must pass syntax validation; on failure nothing is
// created. An empty condition means "always break" and is always valid.
func (s *BreakpointStore) Create(layer, condition string) error {
	if err := s.checkCondition(condition); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[layer] = &Breakpoint{
		Layer:     layer,
		Condition: condition,
		Enabled:   true,
		CreatedAt: s.now(),
	}
	return nil
}

// SetCondition replaces the condition of an existing breakpoint. On a
// syntax error the prior condition stays in effect and the error is
// returned.
func (s *BreakpointStore) SetCondition(layer, condition string) error {
	if err := s.checkCondition(condition); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[layer]
	if !ok {
		return fmt.Errorf("%w: breakpoint %q", ErrNotFound, layer)
	}
	e.Condition = condition
	return nil
}

// Toggle flips the enabled flag and returns the new state.
func (s *BreakpointStore) Toggle(layer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[layer]
	if !ok {
		return false, fmt.Errorf("%w: breakpoint %q", ErrNotFound, layer)
	}
	e.Enabled = !e.Enabled
	return e.Enabled, nil
}

// Remove deletes the breakpoint.
func (s *BreakpointStore) Remove(layer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[layer]; !ok {
		return fmt.Errorf("%w: breakpoint %q", ErrNotFound, layer)
	}
	delete(s.entities, layer)
	return nil
}

// RecordHit applies an inbound hit event: increments the counter, bumps
// LastHit, and keeps the captured snapshot. Hits on disabled breakpoints
// are dropped with ErrBreakpointDisabled so the caller can log them.
func (s *BreakpointStore) RecordHit(layer string, capture *Capture) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[layer]
	if !ok {
		return fmt.Errorf("%w: breakpoint %q", ErrNotFound, layer)
	}
	if !e.Enabled {
		return fmt.Errorf("%w: %q", ErrBreakpointDisabled, layer)
	}

	e.HitCount++
	e.LastHit = s.now()
	e.LastCapture = capture
	breakpointHitsTotal.Inc()
	return nil
}

// Get returns the live entity; treat it as read-only.
func (s *BreakpointStore) Get(layer string) (*Breakpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[layer]
	return e, ok
}

// Snapshot returns a deep copy of the breakpoint.
func (s *BreakpointStore) Snapshot(layer string) (*Breakpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[layer]
	if !ok {
		return nil, false
	}
	cp := *e
	if e.LastCapture != nil {
		c := *e.LastCapture
		c.Data = append([]float32(nil), e.LastCapture.Data...)
		c.Shape = append([]int(nil), e.LastCapture.Shape...)
		cp.LastCapture = &c
	}
	return &cp, true
}

// List returns copies of all breakpoints in unspecified order.
func (s *BreakpointStore) List() []Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Breakpoint, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, *e)
	}
	return out
}

// Prune evicts disabled breakpoints whose age has reached maxAge. Age is
// measured from the last hit, or from creation if never hit. Enabled
// breakpoints are never evicted regardless of age.
func (s *BreakpointStore) Prune(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for layer, e := range s.entities {
		if e.Enabled {
			continue
		}
		ref := e.CreatedAt
		if !e.LastHit.IsZero() {
			ref = e.LastHit
		}
		if now.Sub(ref) >= maxAge {
			delete(s.entities, layer)
			evicted++
		}
	}
	if evicted > 0 {
		evictionsTotal.WithLabelValues("breakpoint").Add(float64(evicted))
	}
	return evicted
}

func (s *BreakpointStore) checkCondition(condition string) error {
	if condition == "" || s.checker == nil {
		return nil
	}
	if err := s.checker.Check(condition); err != nil {
		return fmt.Errorf("%w: %v", ErrConditionRejected, err)
	}
	return nil
}
