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
	"errors"
	"math"
	"testing"
)

func TestCompute(t *testing.T) {
	opts := DefaultOptions()

	t.Run("returns nil when every delta is within threshold", func(t *testing.T) {
		old := []float32{1.0, 2.0, 3.0}
		new := []float32{1.005, 2.0, 2.995}

		d, err := Compute(old, new, []int{3}, opts)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if d != nil {
			t.Errorf("expected nil diff, got kind %q", d.Kind)
		}
	})

	t.Run("encodes sparse at or below max sparsity", func(t *testing.T) {
		old := []float32{0, 0, 0, 0}
		new := []float32{1, 0, 2, 0} // 2 of 4 changed, ratio exactly 0.5

		d, err := Compute(old, new, []int{4}, opts)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if d == nil || d.Kind != KindSparse {
			t.Fatalf("expected sparse diff at boundary ratio, got %+v", d)
		}
		if len(d.Indices) != 2 || d.Indices[0] != 0 || d.Indices[1] != 2 {
			t.Errorf("indices = %v, want [0 2]", d.Indices)
		}
		if d.Values[0] != 1 || d.Values[1] != 2 {
			t.Errorf("values = %v, want deltas [1 2]", d.Values)
		}
	})

	t.Run("encodes dense above max sparsity", func(t *testing.T) {
		old := []float32{0, 0, 0, 0}
		new := []float32{1, 2, 3, 0}

		d, err := Compute(old, new, []int{4}, opts)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if d == nil || d.Kind != KindDense {
			t.Fatalf("expected dense diff, got %+v", d)
		}
		if len(d.Data) != 4 || d.Data[2] != 3 {
			t.Errorf("dense payload = %v, want copy of new", d.Data)
		}
	})

	t.Run("sparse values are deltas not absolutes", func(t *testing.T) {
		old := []float32{10, 0, 0, 0}
		new := []float32{13, 0, 0, 0}

		d, err := Compute(old, new, []int{4}, opts)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if d.Values[0] != 3 {
			t.Errorf("value = %v, want delta 3", d.Values[0])
		}
	})

	t.Run("rejects length disagreement with shape", func(t *testing.T) {
		_, err := Compute([]float32{1, 2}, []float32{1, 2, 3}, []int{3}, opts)
		if !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("err = %v, want ErrShapeMismatch", err)
		}
	})

	t.Run("scalar shape has one element", func(t *testing.T) {
		// A changed rank-0 tensor has ratio 1.0, past any sparsity
		// cutoff, so scalars always ship dense.
		d, err := Compute([]float32{5}, []float32{7}, nil, opts)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if d == nil || d.Kind != KindDense || len(d.Data) != 1 || d.Data[0] != 7 {
			t.Errorf("diff = %+v, want dense payload [7]", d)
		}
	})
}

func TestApplyRoundTrip(t *testing.T) {
	opts := DefaultOptions()

	cases := []struct {
		name string
		old  []float32
		new  []float32
	}{
		{"sparse path", []float32{1, 2, 3, 4, 5, 6, 7, 8}, []float32{1, 2, 3.5, 4, 5, 6, 7, 9}},
		{"dense path", []float32{0, 0, 0, 0}, []float32{4, 3, 2, 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Compute(tc.old, tc.new, []int{len(tc.old)}, opts)
			if err != nil {
				t.Fatalf("Compute failed: %v", err)
			}

			buf := make([]float32, len(tc.old))
			copy(buf, tc.old)
			if err := Apply(buf, d); err != nil {
				t.Fatalf("Apply failed: %v", err)
			}

			for i := range buf {
				if math.Abs(float64(buf[i])-float64(tc.new[i])) > 1e-6 {
					t.Errorf("buf[%d] = %v, want %v", i, buf[i], tc.new[i])
				}
			}
		})
	}
}

// Sparse application is additive, so a replayed diff corrupts state.
// The transport's exactly-once ordering exists because of this.
func TestApplySparseNotIdempotent(t *testing.T) {
	buf := []float32{10, 20, 30}
	d := &Diff{Kind: KindSparse, Indices: []int{1}, Values: []float32{5}}

	if err := Apply(buf, d); err != nil {
		t.Fatalf("first Apply failed: %v", err)
	}
	once := buf[1]

	if err := Apply(buf, d); err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}

	if buf[1] == once {
		t.Error("double apply produced the same state as single apply; sparse diffs must be additive")
	}
	if buf[1] != 30 {
		t.Errorf("buf[1] = %v after double apply, want doubled delta 30", buf[1])
	}
}

func TestApplyOrderSensitivity(t *testing.T) {
	// Two successive diffs on the same index only reconstruct the right
	// state when applied in generation order against the intermediate
	// state each was computed from.
	opts := Options{Threshold: 0.0, MaxSparsity: 1.0}

	a := []float32{1, 0}
	b := []float32{3, 0}
	c := []float32{2, 0}

	d1, err := Compute(a, b, []int{2}, opts)
	if err != nil {
		t.Fatalf("Compute d1: %v", err)
	}
	d2, err := Compute(b, c, []int{2}, opts)
	if err != nil {
		t.Fatalf("Compute d2: %v", err)
	}

	inOrder := []float32{1, 0}
	if err := Apply(inOrder, d1); err != nil {
		t.Fatal(err)
	}
	if err := Apply(inOrder, d2); err != nil {
		t.Fatal(err)
	}
	if inOrder[0] != c[0] {
		t.Fatalf("in-order apply = %v, want %v", inOrder[0], c[0])
	}

	// Replaying only the second diff without the first diverges.
	outOfOrder := []float32{1, 0}
	if err := Apply(outOfOrder, d2); err != nil {
		t.Fatal(err)
	}
	if outOfOrder[0] == c[0] {
		t.Error("out-of-order apply converged; deltas must be order-sensitive")
	}
}

func TestValidate(t *testing.T) {
	t.Run("nil diff", func(t *testing.T) {
		if err := Validate(nil, []int{1}); !errors.Is(err, ErrNilDiff) {
			t.Errorf("err = %v, want ErrNilDiff", err)
		}
	})

	t.Run("sparse index out of range", func(t *testing.T) {
		d := &Diff{Kind: KindSparse, Indices: []int{4}, Values: []float32{1}}
		if err := Validate(d, []int{2, 2}); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("err = %v, want ErrIndexOutOfRange", err)
		}
	})

	t.Run("sparse negative index", func(t *testing.T) {
		d := &Diff{Kind: KindSparse, Indices: []int{-1}, Values: []float32{1}}
		if err := Validate(d, []int{4}); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("err = %v, want ErrIndexOutOfRange", err)
		}
	})

	t.Run("sparse length mismatch", func(t *testing.T) {
		d := &Diff{Kind: KindSparse, Indices: []int{0, 1}, Values: []float32{1}}
		if err := Validate(d, []int{4}); !errors.Is(err, ErrLengthMismatch) {
			t.Errorf("err = %v, want ErrLengthMismatch", err)
		}
	})

	t.Run("dense wrong payload length", func(t *testing.T) {
		d := &Diff{Kind: KindDense, Data: []float32{1, 2, 3}}
		if err := Validate(d, []int{2, 2}); !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("err = %v, want ErrShapeMismatch", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		d := &Diff{Kind: Kind("delta")}
		if err := Validate(d, []int{1}); !errors.Is(err, ErrInvalidKind) {
			t.Errorf("err = %v, want ErrInvalidKind", err)
		}
	})

	t.Run("no_change always valid", func(t *testing.T) {
		if err := Validate(&Diff{Kind: KindNoChange}, nil); err != nil {
			t.Errorf("no_change should validate: %v", err)
		}
	})
}

func TestApplyLeavesBufferOnValidationFailure(t *testing.T) {
	buf := []float32{1, 2, 3}
	d := &Diff{Kind: KindSparse, Indices: []int{0, 5}, Values: []float32{9, 9}}

	if err := Apply(buf, d); err == nil {
		t.Fatal("expected validation error")
	}
	if buf[0] != 1 {
		t.Errorf("buf = %v; partial application is forbidden", buf)
	}
}

func TestKindDecodesFullAlias(t *testing.T) {
	var d Diff
	if err := json.Unmarshal([]byte(`{"type":"full","data":[1,2]}`), &d); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if d.Kind != KindDense {
		t.Errorf("kind = %q, want dense", d.Kind)
	}
}

func TestEstimateSize(t *testing.T) {
	sparse := &Diff{Kind: KindSparse, Indices: []int{1, 2}, Values: []float32{1, 1}}
	dense := &Diff{Kind: KindDense, Data: make([]float32, 100)}

	if got := EstimateSize(sparse); got != 2*8+2*4+8 {
		t.Errorf("sparse size = %d", got)
	}
	if got := EstimateSize(dense); got != 100*4+8 {
		t.Errorf("dense size = %d", got)
	}
	if got := EstimateSize(nil); got != 0 {
		t.Errorf("nil size = %d", got)
	}
}
