package conv

import (
	"github.com/born-ml/convsearch/internal/loopnest"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/workload"
)

// Plan describes the compute stage's loop nest for (w, s): the fused parallel
// (n, oc_chunk, oh_tile) axis, the row/column tiling, and the reduction order.
// It describes the nest Convolve runs; the extents are the ones newGeom
// resolves for the same (w, s).
func Plan(w workload.Descriptor, s schedule.Params, workers int) loopnest.Plan {
	s = s.Normalize()
	if s.Spatial() {
		return spatialPlan(w, s, workers)
	}

	inner := loopnest.Serial
	if s.UnrollInner {
		inner = loopnest.Unrolled
	}
	kw := loopnest.Axis{Name: "kw", Extent: w.KernelW, Reduce: true}
	if s.UnrollKW {
		kw.Kind = loopnest.Unrolled
	}

	axes := []loopnest.Axis{
		{Name: "n.oc_chunk.oh_tile", Extent: w.Batch * (w.OutChannels / s.OCBlock) * (w.OutHeight() / s.VecH), Kind: loopnest.Parallel, Chunks: max(workers, 1)},
		{Name: "oh_inner", Extent: s.VecH},
		{Name: "ow_strip", Extent: w.OutWidth() / s.VecW},
		{Name: "ow_chunk", Extent: s.VecW / s.RegisterTileWidth},
		{Name: "ic_chunk", Extent: w.InChannels / s.ICBlock, Reduce: true},
		{Name: "kh", Extent: w.KernelH, Reduce: true},
	}
	icb := loopnest.Axis{Name: "ic_block", Extent: s.ICBlock, Reduce: true}
	if s.UnrollKW {
		axes = append(axes, kw, icb)
	} else {
		axes = append(axes, icb, kw)
	}
	axes = append(axes,
		loopnest.Axis{Name: "ow_block", Extent: s.RegisterTileWidth, Kind: inner},
		loopnest.Axis{Name: "oc_block", Extent: s.OCBlock, Kind: loopnest.Vectorized},
	)

	return loopnest.Plan{
		Stage: "conv",
		Axes:  axes,
		Body:  "acc[ow_block, oc_block] += data_vec[n, ic_chunk, oh*sh+kh, ow*sw+kw, ic_block] * kernel_vec[oc_chunk, ic_chunk, kh, kw, ic_block, oc_block]",
	}
}

// UnpackPlan describes the output unpacking stage, or reports false when the
// blocked output is returned unchanged.
func UnpackPlan(w workload.Descriptor, s schedule.Params, workers int) (loopnest.Plan, bool) {
	s = s.Normalize()
	if s.Spatial() {
		return spatialUnpackPlan(w, s, workers), true
	}
	k, err := s.OutputBlock()
	if err != nil || k == s.OCBlock {
		return loopnest.Plan{}, false
	}
	block := max(k, 1)
	return loopnest.Plan{
		Stage: "output_unpack",
		Axes: []loopnest.Axis{
			{Name: "n.c_chunk", Extent: w.Batch * (w.OutChannels / block), Kind: loopnest.Parallel, Chunks: max(workers, 1)},
			{Name: "h.w", Extent: w.OutHeight() * w.OutWidth()},
			{Name: "c_block", Extent: block},
		},
		Body: "output[n, c, h, w] = conv[n, c/oc_bn, h, w, c%oc_bn]",
	}, true
}
