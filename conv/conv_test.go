// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conv_test

import (
	"context"
	"testing"

	"github.com/born-ml/convsearch/conv"
	"github.com/born-ml/convsearch/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRun(t *testing.T) {
	w := conv.Square(1, 16, 32, 14, 3, 1, 1)
	s, err := conv.ParseSchedule("Schedule(vec_h=7, vec_w=14, vec_c=8, ic_bn=16, oc_bn=16, reg_n=7, unroll=true, unroll_kw=false, ba=2, bc=2, layout_out=NCHW)")
	require.NoError(t, err)

	k, err := conv.Compile(w, s)
	require.NoError(t, err)

	data, err := tensor.NewUniform(w.DataShape(), tensor.Float32, 1)
	require.NoError(t, err)
	kernel, err := tensor.NewUniform(w.KernelShape(), tensor.Float32, 2)
	require.NoError(t, err)

	out, err := k.Run(context.Background(), data, kernel)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 32, 14, 14}, out.Shape())

	want, err := conv.ReferenceConvolve(w, data, kernel)
	require.NoError(t, err)
	_, err = conv.Verify(out, want, conv.DefaultTolerance())
	assert.NoError(t, err)
}

func TestCompile_Incompatible(t *testing.T) {
	w, err := conv.Preset("resnet18-stage1")
	require.NoError(t, err)
	s := conv.DefaultSchedule(w)
	s.ICBlock = 3

	_, err = conv.CompileWith(w, s, conv.ParallelConfig{NumWorkers: 1})
	assert.ErrorIs(t, err, conv.ErrIncompatible)
}

func TestPresetNames(t *testing.T) {
	for _, name := range conv.PresetNames() {
		w, err := conv.Preset(name)
		require.NoError(t, err, name)
		assert.NoError(t, w.Validate(), name)
	}
	_, err := conv.Preset("resnet18-stem")
	assert.ErrorIs(t, err, conv.ErrInvalidWorkload)
}
