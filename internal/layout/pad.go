// Package layout implements the layout transform stage: zero padding, packing
// data and kernels into channel-blocked layouts, and the inverse unpacking.
// Every function here is pure data movement.
package layout

import (
	"context"
	"fmt"

	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
)

// Pad returns src zero-padded by (pad_h, pad_w) on both sides of the spatial
// axes. src is either NCHW [N, C, H, W] or channel-blocked [N, C/k, H, W, k].
// When the workload has no padding src itself is returned, with no copy.
// Padding is applied when either pad is nonzero.
func Pad(ctx context.Context, w workload.Descriptor, src *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	if !w.HasPadding() {
		return src, nil
	}
	shape := src.Shape()
	if len(shape) != 4 && len(shape) != 5 {
		return nil, fmt.Errorf("pad: %w: expected 4D or 5D tensor, got %dD", tensor.ErrShapeMismatch, len(shape))
	}
	inner := 1
	if len(shape) == 5 {
		inner = shape[4]
	}
	planes, h, wd := shape[0]*shape[1], shape[2], shape[3]
	th, tw := h+2*w.PadH, wd+2*w.PadW

	padded := shape.Clone()
	padded[2], padded[3] = th, tw
	dst, err := tensor.NewRaw(padded, src.DType())
	if err != nil {
		return nil, fmt.Errorf("pad: %w", err)
	}

	g := padGeom{h: h, w: wd, th: th, tw: tw, padH: w.PadH, padW: w.PadW, inner: inner}
	err = parallel.ForChunks(ctx, planes, cfg.Workers(), cfg, func(ctx context.Context, r parallel.Range) error {
		switch src.DType() {
		case tensor.Float32:
			return padPlanes(ctx, dst.AsFloat32(), src.AsFloat32(), g, r)
		case tensor.Float16:
			return padPlanes(ctx, dst.AsFloat16(), src.AsFloat16(), g, r)
		default:
			return fmt.Errorf("pad: %w: %s", tensor.ErrUnsupportedDType, src.DType())
		}
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}

type padGeom struct {
	h, w, th, tw int
	padH, padW   int
	inner        int
}

// padPlanes copies planes [r.Start, r.End) row by row; the border stays zero.
func padPlanes[T tensor.Element](ctx context.Context, dst, src []T, g padGeom, r parallel.Range) error {
	rowLen := g.w * g.inner
	for p := r.Start; p < r.End; p++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		srcPlane := src[p*g.h*rowLen:]
		dstPlane := dst[p*g.th*g.tw*g.inner:]
		for y := 0; y < g.h; y++ {
			off := ((y+g.padH)*g.tw + g.padW) * g.inner
			copy(dstPlane[off:off+rowLen], srcPlane[y*rowLen:(y+1)*rowLen])
		}
	}
	return nil
}
