// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observer routes validated session messages into the entity
// stores. It is the only component that touches both sides: the stores
// never see raw frames, and the session never sees a store type.
//
// Apply failures (stale diff, unknown tensor, schema-passing but
// semantically invalid payloads) are logged and dropped; the stream
// keeps its prior valid state per entity.
package observer

import (
	"time"

	"github.com/AleutianAI/tensorviz/pkg/logging"
	"github.com/AleutianAI/tensorviz/services/sync/protocol"
	"github.com/AleutianAI/tensorviz/services/sync/session"
	"github.com/AleutianAI/tensorviz/services/sync/store"
)

// Stores bundles the three entity stores the observer feeds.
type Stores struct {
	Tensors     *store.TensorStore
	Metrics     *store.MetricStore
	Breakpoints *store.BreakpointStore
}

// Observer dispatches inbound messages to their stores.
type Observer struct {
	stores Stores
	logger *logging.Logger
}

// New creates an observer over the given stores.
func New(stores Stores, logger *logging.Logger) *Observer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Observer{stores: stores, logger: logger}
}

// Bind subscribes the observer to every inbound message type on the
// session and returns a function that removes all subscriptions.
// Handlers run on the session's read goroutine, preserving wire order.
func (o *Observer) Bind(s *session.Session) func() {
	unsubs := []func(){
		s.Subscribe(protocol.TypeTensorFull, o.handleTensorFull),
		s.Subscribe(protocol.TypeTensorDiff, o.handleTensorDiff),
		s.Subscribe(protocol.TypeTensorUpdate, o.handleTensorUpdate),
		s.Subscribe(protocol.TypeMetricUpdate, o.handleMetricUpdate),
		s.Subscribe(protocol.TypeBreakpointHit, o.handleBreakpointHit),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (o *Observer) handleTensorFull(_ protocol.MessageType, msg any) {
	p, ok := msg.(*protocol.TensorFull)
	if !ok {
		return
	}
	if err := o.stores.Tensors.UpsertFull(p.Name, p.Data, p.Shape, p.Dtype); err != nil {
		o.logger.Warn("tensor full load rejected",
			"tensor", p.Name, "error", err.Error())
		return
	}
	if p.Device != "" {
		o.stores.Tensors.ApplyLight(p.Name, store.LightUpdate{Device: p.Device})
	}
}

func (o *Observer) handleTensorDiff(_ protocol.MessageType, msg any) {
	p, ok := msg.(*protocol.TensorDiff)
	if !ok {
		return
	}
	if err := o.stores.Tensors.ApplyDiff(p.Name, p.Diff); err != nil {
		o.logger.Warn("tensor diff rejected",
			"tensor", p.Name, "error", err.Error())
	}
}

func (o *Observer) handleTensorUpdate(_ protocol.MessageType, msg any) {
	p, ok := msg.(*protocol.TensorUpdate)
	if !ok {
		return
	}
	o.stores.Tensors.ApplyLight(p.Name, store.LightUpdate{
		Shape:  p.Shape,
		Dtype:  p.Dtype,
		Device: p.Device,
		Stats:  p.Stats,
	})
}

func (o *Observer) handleMetricUpdate(_ protocol.MessageType, msg any) {
	p, ok := msg.(*protocol.MetricUpdate)
	if !ok || p.Value == nil || p.Timestamp == nil {
		return
	}
	ts := time.UnixMilli(int64(*p.Timestamp))
	o.stores.Metrics.Record(p.Name, *p.Value, ts)
}

func (o *Observer) handleBreakpointHit(_ protocol.MessageType, msg any) {
	p, ok := msg.(*protocol.BreakpointHit)
	if !ok || p.TensorData == nil {
		return
	}
	capture := &store.Capture{
		Data:  p.TensorData.Data,
		Shape: p.TensorData.Shape,
		Dtype: p.TensorData.Dtype,
	}
	if err := o.stores.Breakpoints.RecordHit(p.Name, capture); err != nil {
		o.logger.Warn("breakpoint hit dropped",
			"breakpoint", p.Name, "error", err.Error())
	}
}
