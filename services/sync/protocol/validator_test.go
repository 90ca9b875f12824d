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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tensorviz/services/sync/diff"
)

func TestValidatorDecodeAccepts(t *testing.T) {
	v := NewValidator()

	t.Run("tensor_full with scalar shape", func(t *testing.T) {
		typ, msg, err := v.Decode([]byte(
			`{"type":"tensor_full","name":"attention_input","data":[5],"shape":[],"dtype":"int64"}`))
		require.NoError(t, err)
		require.Equal(t, TypeTensorFull, typ)

		full := msg.(*TensorFull)
		assert.Equal(t, "attention_input", full.Name)
		assert.Equal(t, []float32{5}, full.Data)
		assert.Empty(t, full.Shape)
		assert.Equal(t, "int64", full.Dtype)
	})

	t.Run("tensor_diff with no_change diff", func(t *testing.T) {
		typ, msg, err := v.Decode([]byte(
			`{"type":"tensor_diff","name":"attention_input","diff":{"type":"no_change"}}`))
		require.NoError(t, err)
		require.Equal(t, TypeTensorDiff, typ)
		assert.Equal(t, diff.KindNoChange, msg.(*TensorDiff).Diff.Kind)
	})

	t.Run("tensor_diff with full alias decodes dense", func(t *testing.T) {
		_, msg, err := v.Decode([]byte(
			`{"type":"tensor_diff","name":"w","diff":{"type":"full","data":[1,2]}}`))
		require.NoError(t, err)
		assert.Equal(t, diff.KindDense, msg.(*TensorDiff).Diff.Kind)
	})

	t.Run("metric_update with zero value", func(t *testing.T) {
		_, msg, err := v.Decode([]byte(
			`{"type":"metric_update","name":"loss","value":0,"timestamp":1700000000000}`))
		require.NoError(t, err, "zero is a legitimate metric value")
		assert.Equal(t, 0.0, *msg.(*MetricUpdate).Value)
	})

	t.Run("tensor_update with only a name", func(t *testing.T) {
		_, msg, err := v.Decode([]byte(`{"type":"tensor_update","name":"w"}`))
		require.NoError(t, err)
		assert.Nil(t, msg.(*TensorUpdate).Stats)
	})

	t.Run("breakpoint_hit with tensor data", func(t *testing.T) {
		_, msg, err := v.Decode([]byte(
			`{"type":"breakpoint_hit","name":"layer4.attn","tensorData":{"data":[1],"shape":[1]}}`))
		require.NoError(t, err)
		assert.Equal(t, "layer4.attn", msg.(*BreakpointHit).Name)
	})
}

func TestValidatorDecodeRejects(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"not json", `{{{`, ErrMalformedFrame},
		{"unknown type", `{"type":"tensor_teleport","name":"w"}`, ErrUnknownType},
		{"tensor_full missing dtype", `{"type":"tensor_full","name":"w","data":[1],"shape":[1]}`, ErrSchema},
		{"tensor_full missing shape", `{"type":"tensor_full","name":"w","data":[1],"dtype":"float32"}`, ErrSchema},
		{"tensor_diff missing diff", `{"type":"tensor_diff","name":"w"}`, ErrSchema},
		{"metric_update missing timestamp", `{"type":"metric_update","name":"loss","value":0.5}`, ErrSchema},
		{"metric_update missing value", `{"type":"metric_update","name":"loss","timestamp":1700000000000}`, ErrSchema},
		{"breakpoint_hit missing tensorData", `{"type":"breakpoint_hit","name":"layer"}`, ErrSchema},
		{"tensor_update missing name", `{"type":"tensor_update"}`, ErrSchema},
		{"payload type mismatch", `{"type":"tensor_full","name":"w","data":"oops","shape":[1],"dtype":"f32"}`, ErrMalformedFrame},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, msg, err := v.Decode([]byte(tc.frame))
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, msg)
		})
	}
}

func TestValidateOutbound(t *testing.T) {
	v := NewValidator()

	t.Run("remove allows null condition", func(t *testing.T) {
		msg := NewBreakpointUpdate(ActionRemove, "layer4.attn", nil)
		assert.NoError(t, v.ValidateOutbound(msg))
	})

	t.Run("update requires a condition", func(t *testing.T) {
		msg := NewBreakpointUpdate(ActionUpdate, "layer4.attn", nil)
		assert.ErrorIs(t, v.ValidateOutbound(msg), ErrSchema)
	})

	t.Run("unknown action rejected", func(t *testing.T) {
		cond := "tensor.Max() > 1.0"
		msg := NewBreakpointUpdate("explode", "layer4.attn", &cond)
		assert.ErrorIs(t, v.ValidateOutbound(msg), ErrSchema)
	})

	t.Run("valid update accepted", func(t *testing.T) {
		cond := "tensor.Max() > 1.0"
		msg := NewBreakpointUpdate(ActionUpdate, "layer4.attn", &cond)
		assert.NoError(t, v.ValidateOutbound(msg))
	})
}
