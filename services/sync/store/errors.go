// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store owns the client-side caches of observed model state.
//
// Three independent stores exist: tensors, metrics, and breakpoints. Each
// exclusively owns its key-to-entity mapping; all cross-component effects
// arrive through the transport session's dispatch, one frame at a time.
// Eviction sweeps run on their own timers, so every store guards its map
// with a mutex even though dispatch itself is sequential.
//
// Apply failures are returned, never thrown further: a rejected diff
// leaves the entity in its last valid state and the session keeps running.
package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when the key has no entity.
	ErrNotFound = errors.New("entity not found")

	// ErrLengthMismatch is returned when a full buffer's length does not
	// equal the element count of its shape.
	ErrLengthMismatch = errors.New("buffer length does not match shape")

	// ErrConditionRejected is returned when a breakpoint condition fails
	// syntactic validation. The prior condition stays in effect.
	ErrConditionRejected = errors.New("breakpoint condition rejected")

	// ErrBreakpointDisabled is returned when a hit event arrives for a
	// disabled breakpoint. The hit is dropped.
	ErrBreakpointDisabled = errors.New("breakpoint is disabled")
)
