// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats computes summary statistics over tensor buffers.
//
// Two interchangeable kernels exist behind the Kernel interface: a plain
// scalar loop and a four-accumulator blocked loop that the compiler can
// vectorize on wide SIMD hardware. Select probes the CPU once at startup
// and picks one; every caller must behave identically regardless of which
// kernel is in use (modulo float rounding).
package stats

import (
	"math"

	"github.com/klauspost/cpuid/v2"
)

// Summary holds the basic statistics of a buffer.
type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Norm float64 `json:"norm"`
}

// Kernel computes a Summary from a flat buffer.
type Kernel interface {
	// Compute returns the summary of buf. An empty buffer yields a
	// zero Summary.
	Compute(buf []float32) Summary

	// Name identifies the implementation, for logging.
	Name() string
}

// Select returns the best kernel for the current hardware.
//
// The blocked kernel only pays off when the compiler can keep four
// accumulators in vector registers, so it is gated on AVX2.
func Select() Kernel {
	if cpuid.CPU.Supports(cpuid.AVX2) {
		return blockedKernel{}
	}
	return scalarKernel{}
}

// scalarKernel is the straightforward single-accumulator loop.
type scalarKernel struct{}

func (scalarKernel) Name() string { return "scalar" }

func (scalarKernel) Compute(buf []float32) Summary {
	if len(buf) == 0 {
		return Summary{}
	}

	var sum, sumSq float64
	min := float64(buf[0])
	max := float64(buf[0])
	for _, v := range buf {
		f := float64(v)
		sum += f
		sumSq += f * f
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}
	return finish(sum, sumSq, min, max, len(buf))
}

// blockedKernel runs four independent accumulator chains so the loop has
// no cross-iteration dependency, then reduces them.
type blockedKernel struct{}

func (blockedKernel) Name() string { return "blocked" }

func (blockedKernel) Compute(buf []float32) Summary {
	n := len(buf)
	if n == 0 {
		return Summary{}
	}

	var s0, s1, s2, s3 float64
	var q0, q1, q2, q3 float64
	min := float64(buf[0])
	max := float64(buf[0])

	i := 0
	for ; i+4 <= n; i += 4 {
		a, b, c, d := float64(buf[i]), float64(buf[i+1]), float64(buf[i+2]), float64(buf[i+3])
		s0 += a
		s1 += b
		s2 += c
		s3 += d
		q0 += a * a
		q1 += b * b
		q2 += c * c
		q3 += d * d
		min = math.Min(min, math.Min(math.Min(a, b), math.Min(c, d)))
		max = math.Max(max, math.Max(math.Max(a, b), math.Max(c, d)))
	}
	for ; i < n; i++ {
		f := float64(buf[i])
		s0 += f
		q0 += f * f
		min = math.Min(min, f)
		max = math.Max(max, f)
	}

	return finish(s0+s1+s2+s3, q0+q1+q2+q3, min, max, n)
}

func finish(sum, sumSq, min, max float64, n int) Summary {
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0 // float cancellation
	}
	return Summary{
		Mean: mean,
		Std:  math.Sqrt(variance),
		Min:  min,
		Max:  max,
		Norm: math.Sqrt(sumSq),
	}
}
