// Package workload describes one 2-D convolution instance in NCHW layout.
package workload

import (
	"errors"
	"fmt"

	"github.com/born-ml/convsearch/internal/tensor"
)

// ErrInvalid is returned for descriptors whose shape parameters do not form a
// valid convolution.
var ErrInvalid = errors.New("invalid workload")

// Descriptor is the immutable shape record of a convolution:
// data [Batch, InChannels, InHeight, InWidth] convolved with
// kernel [OutChannels, InChannels, KernelH, KernelW].
type Descriptor struct {
	Batch       int             `yaml:"batch"`
	InChannels  int             `yaml:"in_channels"`
	OutChannels int             `yaml:"out_channels"`
	InHeight    int             `yaml:"in_height"`
	InWidth     int             `yaml:"in_width"`
	KernelH     int             `yaml:"kernel_h"`
	KernelW     int             `yaml:"kernel_w"`
	PadH        int             `yaml:"pad_h"`
	PadW        int             `yaml:"pad_w"`
	StrideH     int             `yaml:"stride_h"`
	StrideW     int             `yaml:"stride_w"`
	DType       tensor.DataType `yaml:"dtype"`
}

// Square builds the common square case: in_size x in_size input, kernel x kernel
// filter, the same stride and padding on both axes.
func Square(batch, inChannels, outChannels, inSize, kernel, stride, pad int) Descriptor {
	return Descriptor{
		Batch:       batch,
		InChannels:  inChannels,
		OutChannels: outChannels,
		InHeight:    inSize,
		InWidth:     inSize,
		KernelH:     kernel,
		KernelW:     kernel,
		PadH:        pad,
		PadW:        pad,
		StrideH:     stride,
		StrideW:     stride,
		DType:       tensor.Float32,
	}
}

// Validate checks that every dimension is positive and that the output size
// divides evenly on both spatial axes.
func (d Descriptor) Validate() error {
	dims := []struct {
		name string
		v    int
	}{
		{"batch", d.Batch},
		{"in_channels", d.InChannels},
		{"out_channels", d.OutChannels},
		{"in_height", d.InHeight},
		{"in_width", d.InWidth},
		{"kernel_h", d.KernelH},
		{"kernel_w", d.KernelW},
		{"stride_h", d.StrideH},
		{"stride_w", d.StrideW},
	}
	for _, dim := range dims {
		if dim.v <= 0 {
			return fmt.Errorf("%w: %s=%d (must be > 0)", ErrInvalid, dim.name, dim.v)
		}
	}
	if d.PadH < 0 || d.PadW < 0 {
		return fmt.Errorf("%w: negative padding (%d, %d)", ErrInvalid, d.PadH, d.PadW)
	}
	if d.PaddedHeight() < d.KernelH || d.PaddedWidth() < d.KernelW {
		return fmt.Errorf("%w: kernel %dx%d larger than padded input %dx%d",
			ErrInvalid, d.KernelH, d.KernelW, d.PaddedHeight(), d.PaddedWidth())
	}
	if (d.PaddedHeight()-d.KernelH)%d.StrideH != 0 {
		return fmt.Errorf("%w: (in_height + 2*pad_h - kernel_h) = %d not divisible by stride_h=%d",
			ErrInvalid, d.PaddedHeight()-d.KernelH, d.StrideH)
	}
	if (d.PaddedWidth()-d.KernelW)%d.StrideW != 0 {
		return fmt.Errorf("%w: (in_width + 2*pad_w - kernel_w) = %d not divisible by stride_w=%d",
			ErrInvalid, d.PaddedWidth()-d.KernelW, d.StrideW)
	}
	switch d.DType {
	case tensor.Float32, tensor.Float16:
	default:
		return fmt.Errorf("%w: %w: %s", ErrInvalid, tensor.ErrUnsupportedDType, d.DType)
	}
	return nil
}

// PaddedHeight is in_height + 2*pad_h.
func (d Descriptor) PaddedHeight() int { return d.InHeight + 2*d.PadH }

// PaddedWidth is in_width + 2*pad_w.
func (d Descriptor) PaddedWidth() int { return d.InWidth + 2*d.PadW }

// OutHeight returns (in_height + 2*pad_h - kernel_h) / stride_h + 1.
func (d Descriptor) OutHeight() int {
	return (d.PaddedHeight()-d.KernelH)/d.StrideH + 1
}

// OutWidth returns (in_width + 2*pad_w - kernel_w) / stride_w + 1.
func (d Descriptor) OutWidth() int {
	return (d.PaddedWidth()-d.KernelW)/d.StrideW + 1
}

// HasPadding reports whether a zero-padded intermediate is needed.
// Either nonzero pad triggers padding.
func (d Descriptor) HasPadding() bool {
	return d.PadH != 0 || d.PadW != 0
}

// DataShape is the raw input shape [N, C_in, H, W].
func (d Descriptor) DataShape() tensor.Shape {
	return tensor.Shape{d.Batch, d.InChannels, d.InHeight, d.InWidth}
}

// PaddedDataShape is [N, C_in, H + 2*pad_h, W + 2*pad_w].
func (d Descriptor) PaddedDataShape() tensor.Shape {
	return tensor.Shape{d.Batch, d.InChannels, d.PaddedHeight(), d.PaddedWidth()}
}

// KernelShape is the raw kernel shape [C_out, C_in, K_h, K_w].
func (d Descriptor) KernelShape() tensor.Shape {
	return tensor.Shape{d.OutChannels, d.InChannels, d.KernelH, d.KernelW}
}

// OutputShape is the unpacked output shape [N, C_out, H_out, W_out].
func (d Descriptor) OutputShape() tensor.Shape {
	return tensor.Shape{d.Batch, d.OutChannels, d.OutHeight(), d.OutWidth()}
}

// MACs returns the number of multiply-accumulates of one forward pass.
func (d Descriptor) MACs() int64 {
	return int64(d.Batch) * int64(d.OutChannels) * int64(d.OutHeight()) * int64(d.OutWidth()) *
		int64(d.InChannels) * int64(d.KernelH) * int64(d.KernelW)
}

// String renders the descriptor in a compact, greppable form.
func (d Descriptor) String() string {
	return fmt.Sprintf("Workload(n=%d, ci=%d, co=%d, h=%d, w=%d, kh=%d, kw=%d, ph=%d, pw=%d, sh=%d, sw=%d, %s)",
		d.Batch, d.InChannels, d.OutChannels, d.InHeight, d.InWidth,
		d.KernelH, d.KernelW, d.PadH, d.PadW, d.StrideH, d.StrideW, d.DType)
}
