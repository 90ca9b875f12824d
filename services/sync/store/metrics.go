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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for store mutations and eviction sweeps.
var (
	evictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tensorviz_store_evictions_total",
		Help: "Entities evicted by the age sweep, by store",
	}, []string{"store"})

	diffAppliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tensorviz_tensor_diff_applies_total",
		Help: "Tensor diff applications by result",
	}, []string{"result"})

	fullLoadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tensorviz_tensor_full_loads_total",
		Help: "Full tensor loads (first observation or resend)",
	})

	breakpointHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tensorviz_breakpoint_hits_total",
		Help: "Breakpoint hit events recorded",
	})
)
