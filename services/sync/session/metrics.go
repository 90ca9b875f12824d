// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the transport session.
var (
	framesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tensorviz_session_frames_received_total",
		Help: "Frames read from the websocket",
	})

	framesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tensorviz_session_frames_dropped_total",
		Help: "Inbound frames dropped before dispatch, by reason",
	}, []string{"reason"})

	framesDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tensorviz_session_frames_dispatched_total",
		Help: "Frames dispatched to subscribers, by message type",
	}, []string{"type"})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tensorviz_session_reconnects_total",
		Help: "Reconnect attempts scheduled after a connection loss",
	})

	queueFlushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tensorviz_session_queue_flushed_total",
		Help: "Queued outbound frames flushed after a connection opened",
	})
)
