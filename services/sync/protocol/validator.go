// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors for frame validation.
var (
	// ErrMalformedFrame is returned when a frame is not valid JSON or
	// its payload cannot be decoded into the declared type's shape.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownType is returned for a type outside the closed enum.
	ErrUnknownType = errors.New("unknown message type")

	// ErrSchema is returned when a required field for the declared
	// type is missing.
	ErrSchema = errors.New("schema validation failed")
)

// Validator is the schema gate in front of the stores. Given a raw frame
// it decodes the envelope, dispatches on the declared type, and confirms
// every required field for that type is present. Rejection is non-fatal:
// the session logs and discards the frame.
//
// Safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates the frame validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Decode parses and validates a raw inbound frame.
//
// # Outputs
//
//   - MessageType: the declared type, valid even on schema failure once
//     the header parsed.
//   - any: one of *TensorFull, *TensorDiff, *TensorUpdate,
//     *MetricUpdate, *BreakpointHit; nil on any error.
//   - error: ErrMalformedFrame, ErrUnknownType, or ErrSchema.
func (v *Validator) Decode(frame []byte) (MessageType, any, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var msg any
	switch head.Type {
	case TypeTensorFull:
		msg = &TensorFull{}
	case TypeTensorDiff:
		msg = &TensorDiff{}
	case TypeTensorUpdate:
		msg = &TensorUpdate{}
	case TypeMetricUpdate:
		msg = &MetricUpdate{}
	case TypeBreakpointHit:
		msg = &BreakpointHit{}
	default:
		return head.Type, nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}

	if err := json.Unmarshal(frame, msg); err != nil {
		return head.Type, nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := v.validate.Struct(msg); err != nil {
		return head.Type, nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return head.Type, msg, nil
}

// ValidateOutbound checks an outbound message against its schema before
// it is queued or written.
func (v *Validator) ValidateOutbound(msg any) error {
	if err := v.validate.Struct(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
