package layout

import (
	"context"
	"fmt"

	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
)

// PackedKernelShape is [C_out/oc_bn, C_in/ic_bn, K_h, K_w, ic_bn, oc_bn], or
// [C_out/vec_c, C_in, K_h, K_w, vec_c] under the spatial template.
func PackedKernelShape(w workload.Descriptor, s schedule.Params) tensor.Shape {
	if s.Spatial() {
		return spatialKernelShape(w, s)
	}
	return tensor.Shape{w.OutChannels / s.OCBlock, w.InChannels / s.ICBlock, w.KernelH, w.KernelW, s.ICBlock, s.OCBlock}
}

type kernelGeom struct {
	cin, kh, kw    int
	icbn, ocbn     int
	icChunks       int
	ocChunks       int
	innerPerOChunk int // elements of one oc_chunk slab
}

func newKernelGeom(w workload.Descriptor, s schedule.Params) kernelGeom {
	g := kernelGeom{
		cin:      w.InChannels,
		kh:       w.KernelH,
		kw:       w.KernelW,
		icbn:     s.ICBlock,
		ocbn:     s.OCBlock,
		icChunks: w.InChannels / s.ICBlock,
		ocChunks: w.OutChannels / s.OCBlock,
	}
	g.innerPerOChunk = g.icChunks * g.kh * g.kw * g.icbn * g.ocbn
	return g
}

// rawIndex is the flat offset of (oc, ic, y, x) in the [C_out, C_in, K_h, K_w] kernel.
func (g kernelGeom) rawIndex(oc, ic, y, x int) int {
	return ((oc*g.cin+ic)*g.kh+y)*g.kw + x
}

// PackKernel repacks [C_out, C_in, K_h, K_w] into
// [C_out/oc_bn, C_in/ic_bn, K_h, K_w, ic_bn, oc_bn]. The output-channel chunk
// axis is split into s.BatchSplitC static chunks.
func PackKernel(ctx context.Context, w workload.Descriptor, s schedule.Params, raw *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	s = s.Normalize()
	if err := s.Validate(w); err != nil {
		return nil, err
	}
	if s.Spatial() {
		return packSpatialKernel(ctx, w, s, raw, cfg)
	}
	if err := tensor.CheckShape("kernel", raw.Shape(), w.KernelShape()); err != nil {
		return nil, err
	}
	if err := checkDType("kernel", w, raw); err != nil {
		return nil, err
	}
	packed, err := tensor.NewRaw(PackedKernelShape(w, s), w.DType)
	if err != nil {
		return nil, fmt.Errorf("pack kernel: %w", err)
	}

	g := newKernelGeom(w, s)
	err = parallel.ForChunks(ctx, g.ocChunks, s.BatchSplitC, cfg, func(ctx context.Context, r parallel.Range) error {
		switch w.DType {
		case tensor.Float32:
			return packKernelChunks(ctx, packed.AsFloat32(), raw.AsFloat32(), g, r)
		default:
			return packKernelChunks(ctx, packed.AsFloat16(), raw.AsFloat16(), g, r)
		}
	})
	if err != nil {
		return nil, err
	}
	return packed, nil
}

func packKernelChunks[T tensor.Element](ctx context.Context, dst, src []T, g kernelGeom, r parallel.Range) error {
	for occ := r.Start; occ < r.End; occ++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		i := occ * g.innerPerOChunk
		for icc := 0; icc < g.icChunks; icc++ {
			for y := 0; y < g.kh; y++ {
				for x := 0; x < g.kw; x++ {
					for icb := 0; icb < g.icbn; icb++ {
						ic := icc*g.icbn + icb
						for ocb := 0; ocb < g.ocbn; ocb++ {
							dst[i] = src[g.rawIndex(occ*g.ocbn+ocb, ic, y, x)]
							i++
						}
					}
				}
			}
		}
	}
	return nil
}

// UnpackKernel inverts PackKernel.
func UnpackKernel(ctx context.Context, w workload.Descriptor, s schedule.Params, packed *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	s = s.Normalize()
	if s.Spatial() {
		return unpackSpatialKernel(ctx, w, s, packed, cfg)
	}
	if err := tensor.CheckShape("packed kernel", packed.Shape(), PackedKernelShape(w, s)); err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(w.KernelShape(), packed.DType())
	if err != nil {
		return nil, fmt.Errorf("unpack kernel: %w", err)
	}

	g := newKernelGeom(w, s)
	err = parallel.ForChunks(ctx, g.ocChunks, s.BatchSplitC, cfg, func(ctx context.Context, r parallel.Range) error {
		for occ := r.Start; occ < r.End; occ++ {
			i := occ * g.innerPerOChunk
			for icc := 0; icc < g.icChunks; icc++ {
				for y := 0; y < g.kh; y++ {
					for x := 0; x < g.kw; x++ {
						for icb := 0; icb < g.icbn; icb++ {
							for ocb := 0; ocb < g.ocbn; ocb++ {
								copyElem(out, packed, g.rawIndex(occ*g.ocbn+ocb, icc*g.icbn+icb, y, x), i)
								i++
							}
						}
					}
				}
			}
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
