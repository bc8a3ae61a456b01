// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/convsearch/internal/tensor"
)

// Type aliases for public API

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float16 DataType = tensor.Float16
)

// Shape represents the dimensions of a tensor.
// Example: Shape{1, 64, 56, 56} is a batch-1, 64-channel 56x56 NCHW tensor.
type Shape = tensor.Shape

// ShapeError reports a tensor whose shape disagrees with what a call expects.
type ShapeError = tensor.ShapeError

// Errors.
var (
	ErrShapeMismatch    = tensor.ErrShapeMismatch
	ErrUnsupportedDType = tensor.ErrUnsupportedDType
)

// ParseDataType parses "float32" or "float16".
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// Creation functions

// NewRaw creates a zero-filled raw tensor.
//
// Example:
//
//	raw, err := tensor.NewRaw(tensor.Shape{1, 3, 8, 8}, tensor.Float32)
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromFloat32 creates a tensor from float32 values, rounding them to dtype.
//
// Example:
//
//	x, err := tensor.FromFloat32(tensor.Shape{2, 3}, tensor.Float32, []float32{1, 2, 3, 4, 5, 6})
func FromFloat32(shape Shape, dtype DataType, values []float32) (*RawTensor, error) {
	return tensor.FromFloat32(shape, dtype, values)
}

// NewUniform creates a tensor of values drawn uniformly from [0, 1). The same
// seed always yields the same tensor.
//
// Example:
//
//	data, err := tensor.NewUniform(tensor.Shape{1, 64, 56, 56}, tensor.Float32, 42)
func NewUniform(shape Shape, dtype DataType, seed uint64) (*RawTensor, error) {
	return tensor.NewUniform(shape, dtype, seed)
}
