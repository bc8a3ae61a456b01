// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conv

import (
	"github.com/born-ml/convsearch/internal/conv"
	"github.com/born-ml/convsearch/internal/oracle"
	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/workload"
	"github.com/born-ml/convsearch/tensor"
)

// Type aliases for public API

// Workload describes one convolution: batch, channels, spatial size, kernel,
// padding, stride and element type.
type Workload = workload.Descriptor

// Schedule is one choice of tiling parameters.
type Schedule = schedule.Params

// CompiledKernel is a workload bound to a validated schedule.
type CompiledKernel = conv.CompiledKernel

// ParallelConfig controls how many goroutines each stage uses.
type ParallelConfig = parallel.Config

// Tolerance bounds the per-element error of Verify.
type Tolerance = oracle.Tolerance

// Comparison summarizes a Verify call.
type Comparison = oracle.Comparison

// Errors.
var (
	ErrInvalidWorkload   = workload.ErrInvalid
	ErrIncompatible      = schedule.ErrIncompatible
	ErrNumericalMismatch = oracle.ErrNumericalMismatch
)

// Square returns the square-input, square-kernel workload with the same
// stride and padding on both axes.
func Square(batch, inChannels, outChannels, inSize, kernel, stride, pad int) Workload {
	return workload.Square(batch, inChannels, outChannels, inSize, kernel, stride, pad)
}

// Preset returns a named ResNet workload.
func Preset(name string) (Workload, error) {
	return workload.Preset(name)
}

// PresetNames lists the named workloads.
func PresetNames() []string {
	return workload.PresetNames()
}

// ParseSchedule reads the schedule form written in search reports.
func ParseSchedule(s string) (Schedule, error) {
	return schedule.Parse(s)
}

// DefaultSchedule returns the untuned heuristic schedule for w.
func DefaultSchedule(w Workload) Schedule {
	return schedule.Default(w)
}

// Compile binds w and s using every CPU.
func Compile(w Workload, s Schedule) (*CompiledKernel, error) {
	return conv.Compile(w, s, parallel.DefaultConfig())
}

// CompileWith binds w and s with an explicit parallel configuration.
func CompileWith(w Workload, s Schedule, cfg ParallelConfig) (*CompiledKernel, error) {
	return conv.Compile(w, s, cfg)
}

// ReferenceConvolve is the unblocked reference convolution.
func ReferenceConvolve(w Workload, data, kernel *tensor.RawTensor) (*tensor.RawTensor, error) {
	return oracle.ReferenceConvolve(w, data, kernel)
}

// DefaultTolerance returns the tolerance Verify uses for float32 outputs.
func DefaultTolerance() Tolerance {
	return oracle.DefaultTolerance()
}

// Verify compares a kernel output, NCHW or channel-blocked, with a reference
// output. It fails with ErrNumericalMismatch when any element is out of tolerance.
func Verify(got, want *tensor.RawTensor, tol Tolerance) (Comparison, error) {
	return oracle.Verify(got, want, tol)
}
