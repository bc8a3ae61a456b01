// Package conv implements the blocked, register-tiled convolution compute
// stage over packed tensors, the output unpacking stage, and Compile, which
// binds a workload and schedule into a runnable kernel.
package conv

import (
	"context"
	"fmt"

	"github.com/born-ml/convsearch/internal/layout"
	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
	"github.com/x448/float16"
)

// BlockedOutputShape is [N, C_out/oc_bn, H_out, W_out, oc_bn], or
// [N, C_out/vec_c, H_out/vec_h, W_out/vec_w, vec_h, vec_w, vec_c] under the
// spatial template.
func BlockedOutputShape(w workload.Descriptor, s schedule.Params) tensor.Shape {
	if s.Spatial() {
		return spatialOutputShape(w, s)
	}
	return tensor.Shape{w.Batch, w.OutChannels / s.OCBlock, w.OutHeight(), w.OutWidth(), s.OCBlock}
}

// Convolve computes the channel-blocked output [N, C_out/oc_bn, H_out, W_out, oc_bn]:
//
//	out[n, oc, oh, ow] = sum over (ic, kh, kw) of
//	  data[n, ic/ic_bn, oh*stride_h+kh, ow*stride_w+kw, ic%ic_bn] *
//	  kernel[oc/oc_bn, ic/ic_bn, kh, kw, ic%ic_bn, oc%oc_bn]
//
// Accumulation is always float32; float16 inputs are widened on load and the
// result is rounded once on store. Every output element is reduced by a single
// worker in a fixed order, so repeated runs give identical results.
//
// A spatial schedule reduces each vec_h x vec_w x vec_c output tile from its
// input window instead, in the order ci, kh, vh, kw, vw, vc.
//
// It fails with schedule.ErrIncompatible before computing anything when s does
// not fit w or when the packed tensors do not have the shapes s implies.
func Convolve(ctx context.Context, w workload.Descriptor, s schedule.Params, data, kernel *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	s = s.Normalize()
	if err := s.Validate(w); err != nil {
		return nil, err
	}
	if err := tensor.CheckShape("packed data", data.Shape(), layout.PackedDataShape(w, s)); err != nil {
		return nil, fmt.Errorf("%w: %w", schedule.ErrIncompatible, err)
	}
	if err := tensor.CheckShape("packed kernel", kernel.Shape(), layout.PackedKernelShape(w, s)); err != nil {
		return nil, fmt.Errorf("%w: %w", schedule.ErrIncompatible, err)
	}
	if data.DType() != w.DType || kernel.DType() != w.DType {
		return nil, fmt.Errorf("%w: packed tensors are %s/%s, workload is %s",
			tensor.ErrUnsupportedDType, data.DType(), kernel.DType(), w.DType)
	}

	out, err := tensor.NewRaw(BlockedOutputShape(w, s), w.DType)
	if err != nil {
		return nil, fmt.Errorf("convolve: %w", err)
	}

	var g tiler = newGeom(w, s)
	if s.Spatial() {
		g = newSpatialGeom(w, s)
	}
	var dataF32, kernelF32, outF32 []float32
	switch w.DType {
	case tensor.Float32:
		dataF32, kernelF32, outF32 = data.AsFloat32(), kernel.AsFloat32(), out.AsFloat32()
	default:
		dataF32, kernelF32 = data.Widen(), kernel.Widen()
		outF32 = make([]float32, out.NumElements())
	}

	err = parallel.ForChunks(ctx, g.tasks(), cfg.Workers(), cfg, func(ctx context.Context, r parallel.Range) error {
		// One register-tile accumulator per worker, reused for every tile it computes.
		acc := make([]float32, g.accLen())
		for task := r.Start; task < r.End; task++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			g.runTask(acc, dataF32, kernelF32, outF32, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if w.DType == tensor.Float16 {
		dst := out.AsFloat16()
		for i, v := range outF32 {
			dst[i] = float16.Fromfloat32(v)
		}
	}
	return out, nil
}

// tiler is one compute template: a fused parallel task axis over which each
// task fills its output tiles through a worker-owned accumulator.
type tiler interface {
	tasks() int
	accLen() int
	runTask(acc, data, kernel, out []float32, task int)
}

// geom holds every extent the blocked loop nest needs, resolved once per call.
type geom struct {
	batch          int
	icChunks, icbn int
	ocChunks, ocbn int
	th, tw         int
	kh, kw         int
	sh, sw         int
	oh, ow         int
	vecH, vecW     int
	vecC, regN     int
	unrollInner    bool
	unrollKW       bool
}

func newGeom(w workload.Descriptor, s schedule.Params) geom {
	return geom{
		batch:       w.Batch,
		icChunks:    w.InChannels / s.ICBlock,
		icbn:        s.ICBlock,
		ocChunks:    w.OutChannels / s.OCBlock,
		ocbn:        s.OCBlock,
		th:          w.PaddedHeight(),
		tw:          w.PaddedWidth(),
		kh:          w.KernelH,
		kw:          w.KernelW,
		sh:          w.StrideH,
		sw:          w.StrideW,
		oh:          w.OutHeight(),
		ow:          w.OutWidth(),
		vecH:        s.VecH,
		vecW:        s.VecW,
		vecC:        s.VecC,
		regN:        s.RegisterTileWidth,
		unrollInner: s.UnrollInner,
		unrollKW:    s.UnrollKW,
	}
}

// tasks is the extent of the fused parallel axis (n, oc_chunk, oh_tile).
func (g geom) tasks() int {
	return g.batch * g.ocChunks * (g.oh / g.vecH)
}

// accLen is the register tile: reg_n columns of oc_bn lanes.
func (g geom) accLen() int {
	return g.regN * g.ocbn
}

// runTask computes vec_h output rows of one output-channel chunk.
func (g geom) runTask(acc, data, kernel, out []float32, task int) {
	rowTiles := g.oh / g.vecH
	tile := task % rowTiles
	occ := (task / rowTiles) % g.ocChunks
	n := task / (rowTiles * g.ocChunks)

	for oh := tile * g.vecH; oh < (tile+1)*g.vecH; oh++ {
		outRow := out[(((n*g.ocChunks+occ)*g.oh+oh)*g.ow)*g.ocbn:]
		for strip := 0; strip < g.ow; strip += g.vecW {
			for ow0 := strip; ow0 < strip+g.vecW; ow0 += g.regN {
				g.reduceTile(acc, data, kernel, n, occ, oh, ow0)
				copy(outRow[ow0*g.ocbn:(ow0+g.regN)*g.ocbn], acc)
			}
		}
	}
}

// reduceTile accumulates the reg_n x oc_bn register tile starting at column ow0.
// Reduction order: ic_chunk, kh, then kw and ic_block (kw outside ic_block when
// kw is unrolled, inside otherwise), then the tile's columns and lanes.
func (g geom) reduceTile(acc, data, kernel []float32, n, occ, oh, ow0 int) {
	clear(acc)
	kwStride := g.icbn * g.ocbn
	for icc := 0; icc < g.icChunks; icc++ {
		dataBase := (n*g.icChunks + icc) * g.th * g.tw * g.icbn
		kernBase := (occ*g.icChunks + icc) * g.kh * g.kw * kwStride
		for kh := 0; kh < g.kh; kh++ {
			rowBase := dataBase + (oh*g.sh+kh)*g.tw*g.icbn
			kRow := kernBase + kh*g.kw*kwStride
			if g.unrollKW {
				for kw := 0; kw < g.kw; kw++ {
					for icb := 0; icb < g.icbn; icb++ {
						g.accumulate(acc, data, kernel[kRow+kw*kwStride+icb*g.ocbn:], rowBase, ow0, kw, icb)
					}
				}
				continue
			}
			for icb := 0; icb < g.icbn; icb++ {
				for kw := 0; kw < g.kw; kw++ {
					g.accumulate(acc, data, kernel[kRow+kw*kwStride+icb*g.ocbn:], rowBase, ow0, kw, icb)
				}
			}
		}
	}
}

// accumulate adds data[.., ow*stride_w+kw, icb] * kvec[0:oc_bn] into each of
// the tile's reg_n accumulator rows.
func (g geom) accumulate(acc, data, kvec []float32, rowBase, ow0, kw, icb int) {
	kvec = kvec[:g.ocbn]
	step := g.sw * g.icbn
	di := rowBase + ((ow0*g.sw)+kw)*g.icbn + icb

	owb := 0
	if g.unrollInner {
		for ; owb+4 <= g.regN; owb += 4 {
			d0, d1, d2, d3 := data[di], data[di+step], data[di+2*step], data[di+3*step]
			a0 := acc[owb*g.ocbn : (owb+1)*g.ocbn]
			a1 := acc[(owb+1)*g.ocbn : (owb+2)*g.ocbn]
			a2 := acc[(owb+2)*g.ocbn : (owb+3)*g.ocbn]
			a3 := acc[(owb+3)*g.ocbn : (owb+4)*g.ocbn]
			for j, k := range kvec {
				a0[j] += d0 * k
				a1[j] += d1 * k
				a2[j] += d2 * k
				a3[j] += d3 * k
			}
			di += 4 * step
		}
	}
	for ; owb < g.regN; owb++ {
		axpyLanes(acc[owb*g.ocbn:(owb+1)*g.ocbn], kvec, data[di], g.vecC)
		di += step
	}
}

// axpyLanes computes dst += a*x, vec_c lanes per step. len(dst) is a multiple of lanes.
func axpyLanes(dst, x []float32, a float32, lanes int) {
	x = x[:len(dst)]
	for j := 0; j < len(dst); j += lanes {
		d := dst[j : j+lanes]
		v := x[j : j+lanes]
		for l := range d {
			d[l] += a * v[l]
		}
	}
}
