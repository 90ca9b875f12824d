// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package condition validates breakpoint condition syntax.
//
// Conditions are opaque boolean expressions evaluated by the observed
// process, not by this client. The checker only answers "would this
// expression compile against the allowed symbols and yield a boolean" —
// it never executes anything. The allow-list is the tensor statistics
// surface: tensor.Max(), tensor.Min(), tensor.Mean(), tensor.Std(),
// tensor.Norm(), tensor.HasNaN(), tensor.HasInf().
package condition

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// TensorSymbols is the restricted symbol surface a condition may touch.
// The method set mirrors the evaluator on the observed process; the
// bodies here are never called, they only type the compile environment.
type TensorSymbols struct{}

// Max returns the largest element.
func (TensorSymbols) Max() float64 { return 0 }

// Min returns the smallest element.
func (TensorSymbols) Min() float64 { return 0 }

// Mean returns the arithmetic mean.
func (TensorSymbols) Mean() float64 { return 0 }

// Std returns the standard deviation.
func (TensorSymbols) Std() float64 { return 0 }

// Norm returns the L2 norm.
func (TensorSymbols) Norm() float64 { return 0 }

// HasNaN reports whether any element is NaN.
func (TensorSymbols) HasNaN() bool { return false }

// HasInf reports whether any element is infinite.
func (TensorSymbols) HasInf() bool { return false }

type env struct {
	Tensor TensorSymbols `expr:"tensor"`
}

// Checker validates condition expressions. Safe for concurrent use; it
// holds only immutable compile options.
type Checker struct {
	opts []expr.Option
}

// New creates a condition checker with the restricted environment.
func New() *Checker {
	return &Checker{
		opts: []expr.Option{
			expr.Env(env{}),
			expr.AsBool(),
		},
	}
}

// Check compiles the expression against the allow-list and requires a
// boolean result. A nil return means the condition is syntactically
// valid; it says nothing about whether it will ever fire.
func (c *Checker) Check(condition string) error {
	if _, err := expr.Compile(condition, c.opts...); err != nil {
		return fmt.Errorf("invalid condition %q: %w", condition, err)
	}
	return nil
}
