package conv

import (
	"context"
	"fmt"

	"github.com/born-ml/convsearch/internal/layout"
	"github.com/born-ml/convsearch/internal/loopnest"
	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
)

// spatialOutputShape is [N, C_out/vec_c, H_out/vec_h, W_out/vec_w, vec_h, vec_w, vec_c].
func spatialOutputShape(w workload.Descriptor, s schedule.Params) tensor.Shape {
	return tensor.Shape{w.Batch, w.OutChannels / s.VecC, w.OutHeight() / s.VecH, w.OutWidth() / s.VecW, s.VecH, s.VecW, s.VecC}
}

// spatialGeom resolves the spatial-pack loop nest.
type spatialGeom struct {
	batch          int
	cin, coChunks  int
	tilesH, tilesW int
	vh, vw, vc     int
	kh, kw         int
	sh, sw         int
	ww, window     int
	unrollInner    bool
}

func newSpatialGeom(w workload.Descriptor, s schedule.Params) spatialGeom {
	wh, ww := layout.WindowHeight(w, s), layout.WindowWidth(w, s)
	return spatialGeom{
		batch:       w.Batch,
		cin:         w.InChannels,
		coChunks:    w.OutChannels / s.VecC,
		tilesH:      w.OutHeight() / s.VecH,
		tilesW:      w.OutWidth() / s.VecW,
		vh:          s.VecH,
		vw:          s.VecW,
		vc:          s.VecC,
		kh:          w.KernelH,
		kw:          w.KernelW,
		sh:          w.StrideH,
		sw:          w.StrideW,
		ww:          ww,
		window:      wh * ww,
		unrollInner: s.UnrollInner,
	}
}

// tasks is the extent of the fused parallel axis (n, co, tile_h).
func (g spatialGeom) tasks() int {
	return g.batch * g.coChunks * g.tilesH
}

// accLen is one full vec_h x vec_w x vec_c output tile.
func (g spatialGeom) accLen() int {
	return g.vh * g.vw * g.vc
}

// runTask computes every output tile of one (n, co, tile_h) row of tiles.
func (g spatialGeom) runTask(acc, data, kernel, out []float32, task int) {
	th := task % g.tilesH
	co := (task / g.tilesH) % g.coChunks
	n := task / (g.tilesH * g.coChunks)
	rowLen := g.vw * g.vc
	taps := g.kh * g.kw * g.vc

	for tw := 0; tw < g.tilesW; tw++ {
		clear(acc)
		win := ((n*g.tilesH+th)*g.tilesW + tw) * g.cin * g.window
		for ci := 0; ci < g.cin; ci++ {
			wbase := win + ci*g.window
			kbase := (co*g.cin + ci) * taps
			for kh := 0; kh < g.kh; kh++ {
				for vh := 0; vh < g.vh; vh++ {
					row := wbase + (vh*g.sh+kh)*g.ww
					accRow := acc[vh*rowLen : (vh+1)*rowLen]
					for kw := 0; kw < g.kw; kw++ {
						kvec := kernel[kbase+(kh*g.kw+kw)*g.vc:][:g.vc]
						g.accumulateRow(accRow, data, kvec, row+kw)
					}
				}
			}
		}
		tile := ((n*g.coChunks+co)*g.tilesH+th)*g.tilesW + tw
		copy(out[tile*len(acc):(tile+1)*len(acc)], acc)
	}
}

// accumulateRow adds window[di + vw*stride_w] * kvec into each of the vec_w
// accumulator columns of one tile row.
func (g spatialGeom) accumulateRow(accRow, data, kvec []float32, di int) {
	vw := 0
	if g.unrollInner {
		for ; vw+2 <= g.vw; vw += 2 {
			d0, d1 := data[di+vw*g.sw], data[di+(vw+1)*g.sw]
			a0 := accRow[vw*g.vc : (vw+1)*g.vc]
			a1 := accRow[(vw+1)*g.vc : (vw+2)*g.vc]
			for j, k := range kvec {
				a0[j] += d0 * k
				a1[j] += d1 * k
			}
		}
	}
	for ; vw < g.vw; vw++ {
		axpyLanes(accRow[vw*g.vc:(vw+1)*g.vc], kvec, data[di+vw*g.sw], g.vc)
	}
}

// unpackSpatialOutput gathers the tiled output into NCHW:
// out[n, c, h, w] = conv[n, c/vec_c, h/vec_h, w/vec_w, h%vec_h, w%vec_w, c%vec_c].
func unpackSpatialOutput(ctx context.Context, w workload.Descriptor, s schedule.Params, tiled *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	out, err := tensor.NewRaw(w.OutputShape(), tiled.DType())
	if err != nil {
		return nil, fmt.Errorf("unpack output: %w", err)
	}
	oh, ow := w.OutHeight(), w.OutWidth()
	tilesH, tilesW := oh/s.VecH, ow/s.VecW
	vh, vw, vc := s.VecH, s.VecW, s.VecC

	planes := w.Batch * w.OutChannels
	err = parallel.ForChunks(ctx, planes, cfg.Workers(), cfg, func(ctx context.Context, r parallel.Range) error {
		for p := r.Start; p < r.End; p++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, c := p/w.OutChannels, p%w.OutChannels
			chunk := n*(w.OutChannels/vc) + c/vc
			for h := 0; h < oh; h++ {
				for x := 0; x < ow; x++ {
					tile := (chunk*tilesH+h/vh)*tilesW + x/vw
					src := ((tile*vh+h%vh)*vw+x%vw)*vc + c%vc
					copyElem(out, tiled, (p*oh+h)*ow+x, src)
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

// copyElem copies one element between same-dtype tensors without conversion.
func copyElem(dst, src *tensor.RawTensor, di, si int) {
	size := src.DType().Size()
	copy(dst.Data()[di*size:(di+1)*size], src.Data()[si*size:(si+1)*size])
}

func spatialPlan(w workload.Descriptor, s schedule.Params, workers int) loopnest.Plan {
	inner := loopnest.Serial
	if s.UnrollInner {
		inner = loopnest.Unrolled
	}
	return loopnest.Plan{
		Stage: "conv",
		Axes: []loopnest.Axis{
			{Name: "n.co.tile_h", Extent: w.Batch * (w.OutChannels / s.VecC) * (w.OutHeight() / s.VecH), Kind: loopnest.Parallel, Chunks: max(workers, 1)},
			{Name: "tile_w", Extent: w.OutWidth() / s.VecW},
			{Name: "ci", Extent: w.InChannels, Reduce: true},
			{Name: "kh", Extent: w.KernelH, Reduce: true},
			{Name: "vh", Extent: s.VecH},
			{Name: "kw", Extent: w.KernelW, Reduce: true},
			{Name: "vw", Extent: s.VecW, Kind: inner},
			{Name: "vc", Extent: s.VecC, Kind: loopnest.Vectorized},
		},
		Body: "acc[vh, vw, vc] += data_vec[n, tile_h, tile_w, ci, vh*sh+kh, vw*sw+kw] * kernel_vec[co, ci, kh, kw, vc]",
	}
}

func spatialUnpackPlan(w workload.Descriptor, s schedule.Params, workers int) loopnest.Plan {
	return loopnest.Plan{
		Stage: "output_unpack",
		Axes: []loopnest.Axis{
			{Name: "n.c", Extent: w.Batch * w.OutChannels, Kind: loopnest.Parallel, Chunks: max(workers, 1)},
			{Name: "h", Extent: w.OutHeight()},
			{Name: "w", Extent: w.OutWidth()},
		},
		Body: "output[n, c, h, w] = conv[n, c/vec_c, h/vec_h, w/vec_w, h%vec_h, w%vec_w, c%vec_c]",
	}
}
