package layout

import (
	"context"
	"fmt"

	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/tensor"
)

// Reblock converts a channel-blocked [N, C/a, H, W, a] tensor into
// [N, C/b, H, W, b], or into plain [N, C, H, W] when b is 0. The fused
// (n, dst_chunk) axis is split into chunks static chunks.
func Reblock(ctx context.Context, src *tensor.RawTensor, b, chunks int, cfg parallel.Config) (*tensor.RawTensor, error) {
	shape := src.Shape()
	if len(shape) != 5 {
		return nil, fmt.Errorf("reblock: %w: expected 5D source, got %v", tensor.ErrShapeMismatch, shape)
	}
	n, a, h, w := shape[0], shape[4], shape[2], shape[3]
	c := shape[1] * a

	var dstShape tensor.Shape
	dstBlock := b
	if b == 0 {
		dstShape = tensor.Shape{n, c, h, w}
		dstBlock = 1
	} else {
		if c%b != 0 {
			return nil, fmt.Errorf("reblock: %w: block %d does not divide %d channels", tensor.ErrShapeMismatch, b, c)
		}
		dstShape = tensor.Shape{n, c / b, h, w, b}
	}
	dst, err := tensor.NewRaw(dstShape, src.DType())
	if err != nil {
		return nil, fmt.Errorf("reblock: %w", err)
	}

	g := reblockGeom{c: c, hw: h * w, a: a, b: dstBlock}
	planes := n * (c / dstBlock)
	err = parallel.ForChunks(ctx, planes, chunks, cfg, func(ctx context.Context, r parallel.Range) error {
		switch src.DType() {
		case tensor.Float32:
			return reblockPlanes(ctx, dst.AsFloat32(), src.AsFloat32(), g, r)
		case tensor.Float16:
			return reblockPlanes(ctx, dst.AsFloat16(), src.AsFloat16(), g, r)
		default:
			return fmt.Errorf("reblock: %w: %s", tensor.ErrUnsupportedDType, src.DType())
		}
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}

type reblockGeom struct {
	c, hw int
	a, b  int
}

// reblockPlanes fills destination planes [r.Start, r.End) of the fused
// (n, dst_chunk) axis. Each plane holds hw*b contiguous elements; plain NCHW
// is the b == 1 case.
func reblockPlanes[T tensor.Element](ctx context.Context, dst, src []T, g reblockGeom, r parallel.Range) error {
	dstChunks := g.c / g.b
	for p := r.Start; p < r.End; p++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, chunk := p/dstChunks, p%dstChunks
		out := dst[p*g.hw*g.b : (p+1)*g.hw*g.b]
		for pos := 0; pos < g.hw; pos++ {
			for cb := 0; cb < g.b; cb++ {
				ch := chunk*g.b + cb
				si := ((n*(g.c/g.a)+ch/g.a)*g.hw+pos)*g.a + ch%g.a
				out[pos*g.b+cb] = src[si]
			}
		}
	}
	return nil
}
