package layout

import (
	"context"
	"fmt"

	"github.com/born-ml/convsearch/internal/loopnest"
	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
)

// WindowHeight is the padded-input rows one vec_h output-row tile reads:
// (vec_h-1)*stride_h + kernel_h.
func WindowHeight(w workload.Descriptor, s schedule.Params) int {
	return (s.VecH-1)*w.StrideH + w.KernelH
}

// WindowWidth is the padded-input columns one vec_w output-column tile reads.
func WindowWidth(w workload.Descriptor, s schedule.Params) int {
	return (s.VecW-1)*w.StrideW + w.KernelW
}

// spatialDataShape is [N, H_out/vec_h, W_out/vec_w, C_in, window_h, window_w].
func spatialDataShape(w workload.Descriptor, s schedule.Params) tensor.Shape {
	return tensor.Shape{w.Batch, w.OutHeight() / s.VecH, w.OutWidth() / s.VecW, w.InChannels, WindowHeight(w, s), WindowWidth(w, s)}
}

// spatialKernelShape is [C_out/vec_c, C_in, K_h, K_w, vec_c].
func spatialKernelShape(w workload.Descriptor, s schedule.Params) tensor.Shape {
	return tensor.Shape{w.OutChannels / s.VecC, w.InChannels, w.KernelH, w.KernelW, s.VecC}
}

type windowGeom struct {
	cin            int
	th, tw         int
	tilesH, tilesW int
	wh, ww         int
	stepH, stepW   int // Window origin stride: vec_h*stride_h, vec_w*stride_w
}

func newWindowGeom(w workload.Descriptor, s schedule.Params) windowGeom {
	return windowGeom{
		cin:    w.InChannels,
		th:     w.PaddedHeight(),
		tw:     w.PaddedWidth(),
		tilesH: w.OutHeight() / s.VecH,
		tilesW: w.OutWidth() / s.VecW,
		wh:     WindowHeight(w, s),
		ww:     WindowWidth(w, s),
		stepH:  s.VecH * w.StrideH,
		stepW:  s.VecW * w.StrideW,
	}
}

// packSpatialData gathers the padded NCHW input into one window per output
// tile. Windows of neighbouring tiles overlap by kernel-1 rows and columns.
// The fused (n, tile_h) axis is split into s.BatchSplitH static chunks.
func packSpatialData(ctx context.Context, w workload.Descriptor, s schedule.Params, raw *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	if err := tensor.CheckShape("data", raw.Shape(), w.DataShape()); err != nil {
		return nil, err
	}
	if err := checkDType("data", w, raw); err != nil {
		return nil, err
	}
	padded, err := Pad(ctx, w, raw, cfg)
	if err != nil {
		return nil, err
	}
	packed, err := tensor.NewRaw(spatialDataShape(w, s), w.DType)
	if err != nil {
		return nil, fmt.Errorf("pack data: %w", err)
	}

	g := newWindowGeom(w, s)
	err = parallel.ForChunks(ctx, w.Batch*g.tilesH, s.BatchSplitH, cfg, func(ctx context.Context, r parallel.Range) error {
		switch w.DType {
		case tensor.Float32:
			return packWindowRows(ctx, packed.AsFloat32(), padded.AsFloat32(), g, r)
		default:
			return packWindowRows(ctx, packed.AsFloat16(), padded.AsFloat16(), g, r)
		}
	})
	if err != nil {
		return nil, err
	}
	return packed, nil
}

// packWindowRows fills every window of tile rows [r.Start, r.End) of the
// fused (n, tile_h) axis.
func packWindowRows[T tensor.Element](ctx context.Context, dst, src []T, g windowGeom, r parallel.Range) error {
	window := g.wh * g.ww
	for row := r.Start; row < r.End; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, th := row/g.tilesH, row%g.tilesH
		for tw := 0; tw < g.tilesW; tw++ {
			for c := 0; c < g.cin; c++ {
				out := dst[((row*g.tilesW+tw)*g.cin+c)*window:]
				plane := src[(n*g.cin+c)*g.th*g.tw:]
				for y := 0; y < g.wh; y++ {
					off := (th*g.stepH+y)*g.tw + tw*g.stepW
					copy(out[y*g.ww:(y+1)*g.ww], plane[off:off+g.ww])
				}
			}
		}
	}
	return nil
}

// unpackSpatialData recovers the unpadded NCHW input from its windows. Each
// element is read from the first window holding it. With a kernel shorter
// than its stride some input rows or columns are never packed, so the input
// cannot be recovered.
func unpackSpatialData(ctx context.Context, w workload.Descriptor, s schedule.Params, packed *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	if err := tensor.CheckShape("packed data", packed.Shape(), spatialDataShape(w, s)); err != nil {
		return nil, err
	}
	g := newWindowGeom(w, s)
	if w.KernelH < w.StrideH || w.KernelW < w.StrideW {
		return nil, fmt.Errorf("%w: windows skip input rows when the kernel is shorter than its stride", schedule.ErrIncompatible)
	}
	out, err := tensor.NewRaw(w.DataShape(), packed.DType())
	if err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}

	window := g.wh * g.ww
	planes := w.Batch * w.InChannels
	err = parallel.ForChunks(ctx, planes, s.BatchSplitH, cfg, func(ctx context.Context, r parallel.Range) error {
		for p := r.Start; p < r.End; p++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, c := p/w.InChannels, p%w.InChannels
			for y := 0; y < w.InHeight; y++ {
				py := y + w.PadH
				th := min(py/g.stepH, g.tilesH-1)
				for x := 0; x < w.InWidth; x++ {
					px := x + w.PadW
					tw := min(px/g.stepW, g.tilesW-1)
					src := (((n*g.tilesH+th)*g.tilesW+tw)*g.cin+c)*window + (py-th*g.stepH)*g.ww + px - tw*g.stepW
					copyElem(out, packed, (p*w.InHeight+y)*w.InWidth+x, src)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// packSpatialKernel repacks [C_out, C_in, K_h, K_w] into
// [C_out/vec_c, C_in, K_h, K_w, vec_c]. The channel-group axis is split into
// s.BatchSplitC static chunks.
func packSpatialKernel(ctx context.Context, w workload.Descriptor, s schedule.Params, raw *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	if err := tensor.CheckShape("kernel", raw.Shape(), w.KernelShape()); err != nil {
		return nil, err
	}
	if err := checkDType("kernel", w, raw); err != nil {
		return nil, err
	}
	packed, err := tensor.NewRaw(spatialKernelShape(w, s), w.DType)
	if err != nil {
		return nil, fmt.Errorf("pack kernel: %w", err)
	}

	taps := w.InChannels * w.KernelH * w.KernelW
	vc := s.VecC
	err = parallel.ForChunks(ctx, w.OutChannels/vc, s.BatchSplitC, cfg, func(ctx context.Context, r parallel.Range) error {
		for co := r.Start; co < r.End; co++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for t := 0; t < taps; t++ {
				for v := 0; v < vc; v++ {
					copyElem(packed, raw, (co*taps+t)*vc+v, (co*vc+v)*taps+t)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return packed, nil
}

// unpackSpatialKernel inverts packSpatialKernel.
func unpackSpatialKernel(ctx context.Context, w workload.Descriptor, s schedule.Params, packed *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	if err := tensor.CheckShape("packed kernel", packed.Shape(), spatialKernelShape(w, s)); err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(w.KernelShape(), packed.DType())
	if err != nil {
		return nil, fmt.Errorf("unpack kernel: %w", err)
	}

	taps := w.InChannels * w.KernelH * w.KernelW
	vc := s.VecC
	err = parallel.ForChunks(ctx, w.OutChannels/vc, s.BatchSplitC, cfg, func(ctx context.Context, r parallel.Range) error {
		for co := r.Start; co < r.End; co++ {
			for t := 0; t < taps; t++ {
				for v := 0; v < vc; v++ {
					copyElem(out, packed, (co*vc+v)*taps+t, (co*taps+t)*vc+v)
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

func spatialDataPlan(w workload.Descriptor, s schedule.Params) loopnest.Plan {
	return loopnest.Plan{
		Stage: "data_vec",
		Axes: []loopnest.Axis{
			{Name: "n.tile_h", Extent: w.Batch * (w.OutHeight() / s.VecH), Kind: loopnest.Parallel, Chunks: s.BatchSplitH},
			{Name: "tile_w", Extent: w.OutWidth() / s.VecW},
			{Name: "ci", Extent: w.InChannels},
			{Name: "vh", Extent: WindowHeight(w, s)},
			{Name: "vw", Extent: WindowWidth(w, s)},
		},
		Body: "data_vec[n, tile_h, tile_w, ci, vh, vw] = data_pad[n, ci, tile_h*vec_h*stride_h + vh, tile_w*vec_w*stride_w + vw]",
	}
}

func spatialKernelPlan(w workload.Descriptor, s schedule.Params) loopnest.Plan {
	return loopnest.Plan{
		Stage: "kernel_vec",
		Axes: []loopnest.Axis{
			{Name: "co", Extent: w.OutChannels / s.VecC, Kind: loopnest.Parallel, Chunks: s.BatchSplitC},
			{Name: "ci", Extent: w.InChannels},
			{Name: "kh", Extent: w.KernelH},
			{Name: "kw", Extent: w.KernelW},
			{Name: "vc", Extent: s.VecC},
		},
		Body: "kernel_vec[co, ci, kh, kw, vc] = kernel[co*vec_c + vc, ci, kh, kw]",
	}
}
