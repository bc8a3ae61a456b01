package tensor

import (
	"bytes"
	"fmt"
	"unsafe"

	"github.com/x448/float16"
)

// RawTensor is the low-level tensor representation: a dense row-major buffer
// tagged with its shape and element type.
//
// Packed tensors are RawTensors whose shape carries the chunk/block split,
// e.g. [N, C/bn, H, W, bn].
type RawTensor struct {
	data   []byte   // Backing buffer
	shape  Shape    // Tensor dimensions
	stride []int    // Memory strides (row-major)
	dtype  DataType // Runtime type information
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is zero-initialized.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	switch dtype {
	case Float32, Float16, Float64:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDType, int(dtype))
	}

	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
	}, nil
}

// FromFloat32 copies values into a new tensor of the given dtype, narrowing if needed.
func FromFloat32(shape Shape, dtype DataType, values []float32) (*RawTensor, error) {
	t, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(values) != t.NumElements() {
		return nil, &ShapeError{What: "source", Got: Shape{len(values)}, Want: Shape{t.NumElements()}}
	}
	for i, v := range values {
		t.SetFloat64(i, float64(v))
	}
	return t, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return len(r.data)
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat16 interprets the data as []float16.Float16.
// Panics if the tensor's dtype is not Float16.
func (r *RawTensor) AsFloat16() []float16.Float16 {
	if r.dtype != Float16 {
		panic(fmt.Sprintf("tensor dtype is %s, not float16", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float16.Float16)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Float64At returns element i (flat index) widened to float64.
func (r *RawTensor) Float64At(i int) float64 {
	switch r.dtype {
	case Float32:
		return float64(r.AsFloat32()[i])
	case Float16:
		return float64(r.AsFloat16()[i].Float32())
	case Float64:
		return r.AsFloat64()[i]
	default:
		panic(fmt.Sprintf("unsupported dtype %s", r.dtype))
	}
}

// SetFloat64 stores v at flat index i, rounding to the tensor's dtype.
func (r *RawTensor) SetFloat64(i int, v float64) {
	switch r.dtype {
	case Float32:
		r.AsFloat32()[i] = float32(v)
	case Float16:
		r.AsFloat16()[i] = float16.Fromfloat32(float32(v))
	case Float64:
		r.AsFloat64()[i] = v
	default:
		panic(fmt.Sprintf("unsupported dtype %s", r.dtype))
	}
}

// Widen returns the elements as a freshly allocated []float32.
// Float64 tensors are rounded.
func (r *RawTensor) Widen() []float32 {
	out := make([]float32, r.NumElements())
	switch r.dtype {
	case Float32:
		copy(out, r.AsFloat32())
	case Float16:
		for i, v := range r.AsFloat16() {
			out[i] = v.Float32()
		}
	default:
		for i, v := range r.AsFloat64() {
			out[i] = float32(v)
		}
	}
	return out
}

// Clone creates a deep copy of the RawTensor.
func (r *RawTensor) Clone() *RawTensor {
	return &RawTensor{
		data:   bytes.Clone(r.data),
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
	}
}

// Equal reports whether both tensors have the same shape, dtype and bytes.
func (r *RawTensor) Equal(other *RawTensor) bool {
	return r.dtype == other.dtype && r.shape.Equal(other.shape) && bytes.Equal(r.data, other.data)
}
