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

// ringBuffer is a fixed-size circular buffer. When full, Push overwrites
// the oldest item. It backs one metric series each: bounded memory with
// O(1) append, and the age sweep trims from the oldest end.
//
// NOT safe for concurrent use; the owning store synchronizes.
type ringBuffer[T any] struct {
	data  []T
	head  int // next write position
	tail  int // oldest element position
	count int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringBuffer[T]{data: make([]T, capacity)}
}

// Push appends an item, overwriting the oldest when full.
func (r *ringBuffer[T]) Push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % len(r.data)
	if r.count == len(r.data) {
		r.tail = (r.tail + 1) % len(r.data)
	} else {
		r.count++
	}
}

// Newest returns the most recently pushed item.
func (r *ringBuffer[T]) Newest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	idx := r.head - 1
	if idx < 0 {
		idx = len(r.data) - 1
	}
	return r.data[idx], true
}

// Slice returns all items from oldest to newest as a fresh copy.
func (r *ringBuffer[T]) Slice() []T {
	if r.count == 0 {
		return nil
	}
	result := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		result[i] = r.data[(r.tail+i)%len(r.data)]
	}
	return result
}

// TrimWhile drops items from the oldest end while pred holds, returning
// the number dropped. Iteration stops at the first item that fails pred,
// which is correct for age trimming because items are pushed in time order.
func (r *ringBuffer[T]) TrimWhile(pred func(item T) bool) int {
	dropped := 0
	var zero T
	for r.count > 0 && pred(r.data[r.tail]) {
		r.data[r.tail] = zero
		r.tail = (r.tail + 1) % len(r.data)
		r.count--
		dropped++
	}
	return dropped
}

func (r *ringBuffer[T]) Len() int { return r.count }

func (r *ringBuffer[T]) Cap() int { return len(r.data) }
