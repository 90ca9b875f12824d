// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind discriminates the diff variants carried on the wire.
type Kind string

const (
	// KindNoChange marks a diff where no element moved past the threshold.
	KindNoChange Kind = "no_change"

	// KindSparse marks a diff carrying changed flat indices and deltas.
	KindSparse Kind = "sparse"

	// KindDense marks a full replacement buffer.
	KindDense Kind = "dense"
)

// UnmarshalJSON accepts "full" as a wire alias for the dense kind.
// Older producers spell dense replacement diffs as {"type":"full"}.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "full" {
		s = string(KindDense)
	}
	*k = Kind(s)
	return nil
}

// Diff is a compact description of how a buffer changed between two
// snapshots of the same shape.
//
// For KindSparse, Indices and Values have equal length and Values holds
// deltas. For KindDense, Data holds the full replacement buffer. For
// KindNoChange all payload fields are empty.
type Diff struct {
	Kind    Kind      `json:"type"`
	Indices []int     `json:"indices,omitempty"`
	Values  []float32 `json:"values,omitempty"`
	Data    []float32 `json:"data,omitempty"`
}

// Options tunes change detection and encoding selection.
type Options struct {
	// Threshold is the minimum absolute per-element delta that counts
	// as a change. Deltas at or below it are ignored.
	Threshold float64

	// MaxSparsity is the largest changed/total ratio still encoded
	// sparsely. The boundary is inclusive: a ratio exactly equal to
	// MaxSparsity is encoded sparse.
	MaxSparsity float64
}

// DefaultOptions returns the standard codec tuning.
func DefaultOptions() Options {
	return Options{
		Threshold:   0.01,
		MaxSparsity: 0.5,
	}
}

// NumElements returns the element count of a shape. The product of an
// empty shape is 1: a rank-0 tensor holds exactly one element.
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Compute builds a diff that transforms old into new.
//
// # Description
//
// Both snapshots must already have the shape's element count; producing a
// diff across a shape change is a full-resend concern, not a codec one.
// Returns (nil, nil) when no element's absolute delta exceeds
// opts.Threshold, meaning no frame needs to be sent at all.
//
// # Inputs
//
//   - old, new: dense snapshots, both of length NumElements(shape).
//   - shape: the shared shape of both snapshots.
//   - opts: detection threshold and sparsity cutoff.
//
// # Outputs
//
//   - *Diff: sparse when changed/total <= opts.MaxSparsity, dense
//     otherwise, nil when nothing changed meaningfully.
//   - error: ErrShapeMismatch when either snapshot disagrees with shape.
func Compute(old, new []float32, shape []int, opts Options) (*Diff, error) {
	n := NumElements(shape)
	if len(old) != n || len(new) != n {
		return nil, fmt.Errorf("%w: shape wants %d elements, old has %d, new has %d",
			ErrShapeMismatch, n, len(old), len(new))
	}

	changed := 0
	for i := 0; i < n; i++ {
		if math.Abs(float64(new[i])-float64(old[i])) > opts.Threshold {
			changed++
		}
	}
	if changed == 0 {
		return nil, nil
	}

	if float64(changed)/float64(n) <= opts.MaxSparsity {
		d := &Diff{
			Kind:    KindSparse,
			Indices: make([]int, 0, changed),
			Values:  make([]float32, 0, changed),
		}
		for i := 0; i < n; i++ {
			if math.Abs(float64(new[i])-float64(old[i])) > opts.Threshold {
				d.Indices = append(d.Indices, i)
				d.Values = append(d.Values, new[i]-old[i])
			}
		}
		return d, nil
	}

	data := make([]float32, n)
	copy(data, new)
	return &Diff{Kind: KindDense, Data: data}, nil
}

// Validate checks a diff against the shape of its target buffer.
//
// Fails closed: any diff that does not pass Validate must not be applied.
// Checks per kind:
//
//   - sparse: indices and values same length, every index in [0, n)
//   - dense: payload length equals NumElements(shape)
//   - no_change: always valid
func Validate(d *Diff, shape []int) error {
	if d == nil {
		return ErrNilDiff
	}
	n := NumElements(shape)

	switch d.Kind {
	case KindNoChange:
		return nil
	case KindSparse:
		if len(d.Indices) != len(d.Values) {
			return fmt.Errorf("%w: %d indices vs %d values",
				ErrLengthMismatch, len(d.Indices), len(d.Values))
		}
		for _, idx := range d.Indices {
			if idx < 0 || idx >= n {
				return fmt.Errorf("%w: index %d, %d elements", ErrIndexOutOfRange, idx, n)
			}
		}
		return nil
	case KindDense:
		if len(d.Data) != n {
			return fmt.Errorf("%w: dense payload has %d elements, shape wants %d",
				ErrShapeMismatch, len(d.Data), n)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, d.Kind)
	}
}

// Apply mutates buf in place according to the diff.
//
// # Description
//
// The diff is validated against the buffer length before any element is
// touched, so application is all-or-nothing. Sparse application adds each
// delta to its element; applying the same sparse diff twice doubles the
// deltas. A nil diff and a no_change diff are both no-ops.
//
// # Inputs
//
//   - buf: the live entity buffer. Mutated on success.
//   - d: the diff to apply.
//
// # Outputs
//
//   - error: a validation error; buf is untouched when non-nil.
func Apply(buf []float32, d *Diff) error {
	if d == nil {
		return nil
	}
	if err := Validate(d, []int{len(buf)}); err != nil {
		return err
	}

	switch d.Kind {
	case KindNoChange:
	case KindSparse:
		for i, idx := range d.Indices {
			buf[idx] += d.Values[i]
		}
	case KindDense:
		copy(buf, d.Data)
	}
	return nil
}

// EstimateSize returns the approximate wire size of a diff in bytes,
// used for bandwidth accounting. Indices are counted at 8 bytes and
// values at 4, plus a small fixed envelope overhead.
func EstimateSize(d *Diff) int {
	const overhead = 8
	if d == nil {
		return 0
	}
	switch d.Kind {
	case KindSparse:
		return len(d.Indices)*8 + len(d.Values)*4 + overhead
	case KindDense:
		return len(d.Data)*4 + overhead
	default:
		return overhead
	}
}
