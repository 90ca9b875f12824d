// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff implements the differential codec for tensor snapshots.
//
// The codec produces one of three diff kinds between two snapshots of the
// same shape:
//
//   - no_change: every element moved by less than the detection threshold
//   - sparse: a list of changed flat indices and their delta values
//   - dense: a full replacement buffer
//
// Sparse values are deltas (new - old), not absolutes. Applying a sparse
// diff is additive and therefore NOT idempotent: the transport must deliver
// each diff exactly once and in generation order.
//
// # Thread Safety
//
// All functions are pure except Apply, which mutates the buffer passed to
// it. The package holds no state; callers synchronize their own buffers.
package diff

import "errors"

// Sentinel errors for diff validation and application.
var (
	// ErrShapeMismatch is returned when a diff was produced against a
	// shape that disagrees with the buffer it is being applied to, or
	// when the two snapshots handed to Compute have different lengths.
	ErrShapeMismatch = errors.New("diff shape mismatch")

	// ErrIndexOutOfRange is returned when a sparse index is negative or
	// not less than the element count of the target shape.
	ErrIndexOutOfRange = errors.New("sparse index out of range")

	// ErrLengthMismatch is returned when the indices and values arrays
	// of a sparse diff have different lengths.
	ErrLengthMismatch = errors.New("sparse indices/values length mismatch")

	// ErrInvalidKind is returned for a diff whose kind is not one of
	// no_change, sparse, or dense.
	ErrInvalidKind = errors.New("invalid diff kind")

	// ErrNilDiff is returned when a nil diff is validated.
	ErrNilDiff = errors.New("nil diff")
)
