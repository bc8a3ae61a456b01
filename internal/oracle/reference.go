// Package oracle provides the unblocked reference convolution every candidate
// schedule is checked against, and the tolerance comparison used to check it.
package oracle

import (
	"fmt"

	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
)

// ReferenceConvolve computes the convolution directly on the raw NCHW data and
// [C_out, C_in, K_h, K_w] kernel: no packing, no tiling, zero padding handled by
// bounds checks. Sums are accumulated in float64 and rounded once to w.DType.
func ReferenceConvolve(w workload.Descriptor, data, kernel *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := tensor.CheckShape("data", data.Shape(), w.DataShape()); err != nil {
		return nil, err
	}
	if err := tensor.CheckShape("kernel", kernel.Shape(), w.KernelShape()); err != nil {
		return nil, err
	}

	out, err := tensor.NewRaw(w.OutputShape(), w.DType)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}

	N, CIn, H, W := w.Batch, w.InChannels, w.InHeight, w.InWidth
	COut, KH, KW := w.OutChannels, w.KernelH, w.KernelW
	HOut, WOut := w.OutHeight(), w.OutWidth()
	inputData, kernelData := data.Widen(), kernel.Widen()

	for n := 0; n < N; n++ {
		for oc := 0; oc < COut; oc++ {
			for oh := 0; oh < HOut; oh++ {
				for ow := 0; ow < WOut; ow++ {
					hStart := oh*w.StrideH - w.PadH
					wStart := ow*w.StrideW - w.PadW

					sum := 0.0
					for c := 0; c < CIn; c++ {
						for kh := 0; kh < KH; kh++ {
							h := hStart + kh
							if h < 0 || h >= H {
								continue
							}
							for kw := 0; kw < KW; kw++ {
								x := wStart + kw
								if x < 0 || x >= W {
									continue
								}
								inputIdx := ((n*CIn+c)*H+h)*W + x
								kernelIdx := ((oc*CIn+c)*KH+kh)*KW + kw
								sum += float64(inputData[inputIdx]) * float64(kernelData[kernelIdx])
							}
						}
					}
					out.SetFloat64(((n*COut+oc)*HOut+oh)*WOut+ow, sum)
				}
			}
		}
	}
	return out, nil
}
