// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public raw tensor type consumed and produced by
// compiled convolution kernels.
//
// # Overview
//
// A RawTensor is a dense, row-major buffer with a Shape and a DataType.
// Convolution inputs are NCHW data [N, C_in, H, W] and a kernel
// [C_out, C_in, K_h, K_w]; outputs are NCHW or channel-blocked NCHW<k>c
// [N, C_out/k, H_out, W_out, k].
//
// Supported data types are Float32 and Float16. Float16 tensors are stored as
// IEEE 754 half precision and widened to float32 for arithmetic.
//
// # Basic Usage
//
//	import "github.com/born-ml/convsearch/tensor"
//
//	func main() {
//	    data, _ := tensor.NewUniform(tensor.Shape{1, 64, 56, 56}, tensor.Float32, 1)
//	    fmt.Println(data.Shape(), data.DType(), data.ByteSize())
//
//	    x, _ := tensor.FromFloat32(tensor.Shape{2, 2}, tensor.Float16, []float32{1, 2, 3, 4})
//	    fmt.Println(x.Widen()) // [1 2 3 4]
//	}
package tensor
