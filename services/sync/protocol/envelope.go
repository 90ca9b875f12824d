// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package protocol defines the wire envelopes exchanged with the observed
// model process and the schema gate that every inbound frame must pass
// before any store sees it.
//
// Envelopes are discriminated by the "type" field. The set of message
// types is a closed enum; the validator's dispatch covers each member
// explicitly, so an unknown type is a rejection, not a fallthrough.
package protocol

import (
	"github.com/AleutianAI/tensorviz/services/sync/diff"
	"github.com/AleutianAI/tensorviz/services/sync/stats"
)

// MessageType discriminates envelope variants.
type MessageType string

// Inbound message types.
const (
	TypeTensorFull    MessageType = "tensor_full"
	TypeTensorDiff    MessageType = "tensor_diff"
	TypeTensorUpdate  MessageType = "tensor_update"
	TypeMetricUpdate  MessageType = "metric_update"
	TypeBreakpointHit MessageType = "breakpoint_hit"
)

// TypeBreakpointUpdate is the outbound breakpoint control message.
const TypeBreakpointUpdate MessageType = "breakpoint_update"

// Breakpoint update actions.
const (
	ActionUpdate  = "update"
	ActionDisable = "disable"
	ActionRemove  = "remove"
)

// TensorPayload is a full tensor snapshot embedded in a frame.
type TensorPayload struct {
	Data  []float32 `json:"data" validate:"required"`
	Shape []int     `json:"shape" validate:"required"`
	Dtype string    `json:"dtype,omitempty"`
}

// TensorFull announces the first (or a resent) full snapshot of a tensor.
type TensorFull struct {
	Name   string    `json:"name" validate:"required"`
	Data   []float32 `json:"data" validate:"required"`
	Shape  []int     `json:"shape" validate:"required"`
	Dtype  string    `json:"dtype" validate:"required"`
	Device string    `json:"device,omitempty"`
}

// TensorDiff carries a diff against the tensor's current snapshot.
type TensorDiff struct {
	Name string     `json:"name" validate:"required"`
	Diff *diff.Diff `json:"diff" validate:"required"`
}

// TensorUpdate is a light, stat-only refresh; everything but the name
// is optional.
type TensorUpdate struct {
	Name   string         `json:"name" validate:"required"`
	Shape  []int          `json:"shape,omitempty"`
	Dtype  string         `json:"dtype,omitempty"`
	Device string         `json:"device,omitempty"`
	Stats  *stats.Summary `json:"stats,omitempty"`
}

// MetricUpdate is one scalar metric observation.
//
// Value and Timestamp are pointers so that a present-but-zero value is
// distinguishable from a missing field; zero is a legitimate metric
// value. Timestamp is unix milliseconds.
type MetricUpdate struct {
	Name      string   `json:"name" validate:"required"`
	Value     *float64 `json:"value" validate:"required"`
	Timestamp *float64 `json:"timestamp" validate:"required"`
}

// BreakpointHit reports that a breakpoint condition fired on the
// observed process, with the captured tensor attached.
type BreakpointHit struct {
	Name       string         `json:"name" validate:"required"`
	TensorData *TensorPayload `json:"tensorData" validate:"required"`
}

// BreakpointUpdate is the outbound control message for breakpoints.
// Condition must be present unless the action is remove, where it is
// null by contract.
type BreakpointUpdate struct {
	Type      MessageType `json:"type"`
	Action    string      `json:"action" validate:"required,oneof=update disable remove"`
	LayerID   string      `json:"layerId" validate:"required"`
	Condition *string     `json:"condition" validate:"required_unless=Action remove"`
}

// NewBreakpointUpdate builds an outbound breakpoint control message with
// the type field already stamped.
func NewBreakpointUpdate(action, layerID string, condition *string) BreakpointUpdate {
	return BreakpointUpdate{
		Type:      TypeBreakpointUpdate,
		Action:    action,
		LayerID:   layerID,
		Condition: condition,
	}
}
