// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/convsearch/internal/tensor"
)

// RawTensor is the low-level tensor representation.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType(), Strides()
//   - Typed views via AsFloat32() and AsFloat16()
//   - Element access in float64 via Float64At() and SetFloat64()
//   - Deep copies via Clone(), exact comparison via Equal()
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32)
//	data := raw.AsFloat32() // Shares the tensor's buffer
//	clone := raw.Clone()    // Independent copy
type RawTensor = tensor.RawTensor
