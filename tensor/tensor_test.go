// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/born-ml/convsearch/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRawTensorAPI verifies the RawTensor alias exposes the expected API.
func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32)
	require.NoError(t, err)

	assert.True(t, raw.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, tensor.Float32, raw.DType())
	assert.Equal(t, 6, raw.NumElements())
	assert.Equal(t, 6*4, raw.ByteSize())

	clone := raw.Clone()
	clone.SetFloat64(0, 1)
	assert.Equal(t, 0.0, raw.Float64At(0), "clone must not share the buffer")
	assert.False(t, raw.Equal(clone))
}

func TestFromFloat32_Float16(t *testing.T) {
	x, err := tensor.FromFloat32(tensor.Shape{2, 2}, tensor.Float16, []float32{1, 2, 3, 0.5})
	require.NoError(t, err)
	assert.Equal(t, 8, x.ByteSize())
	assert.Equal(t, []float32{1, 2, 3, 0.5}, x.Widen())
}

func TestNewUniform_Seeded(t *testing.T) {
	a, err := tensor.NewUniform(tensor.Shape{4, 4}, tensor.Float32, 7)
	require.NoError(t, err)
	b, err := tensor.NewUniform(tensor.Shape{4, 4}, tensor.Float32, 7)
	require.NoError(t, err)
	c, err := tensor.NewUniform(tensor.Shape{4, 4}, tensor.Float32, 8)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestParseDataType(t *testing.T) {
	dt, err := tensor.ParseDataType("float16")
	require.NoError(t, err)
	assert.Equal(t, tensor.Float16, dt)

	_, err = tensor.ParseDataType("int8")
	assert.ErrorIs(t, err, tensor.ErrUnsupportedDType)
}
