package layout

import (
	"github.com/born-ml/convsearch/internal/loopnest"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/workload"
)

// DataPlans describes the data-side stages: the padding stage (only when the
// workload pads) followed by the packing gather.
func DataPlans(w workload.Descriptor, s schedule.Params, workers int) []loopnest.Plan {
	s = s.Normalize()
	var plans []loopnest.Plan
	if w.HasPadding() {
		plans = append(plans, loopnest.Plan{
			Stage: "data_pad",
			Axes: []loopnest.Axis{
				{Name: "n.c", Extent: w.Batch * w.InChannels, Kind: loopnest.Parallel, Chunks: max(workers, 1)},
				{Name: "h", Extent: w.InHeight},
				{Name: "w", Extent: w.InWidth},
			},
			Body: "data_pad[n, c, h+pad_h, w+pad_w] = data[n, c, h, w]",
		})
	}
	if s.Spatial() {
		return append(plans, spatialDataPlan(w, s))
	}
	plans = append(plans, loopnest.Plan{
		Stage: "data_vec",
		Axes: []loopnest.Axis{
			{Name: "n.ic_chunk.h", Extent: w.Batch * (w.InChannels / s.ICBlock) * w.PaddedHeight(), Kind: loopnest.Parallel, Chunks: s.BatchSplitH},
			{Name: "w", Extent: w.PaddedWidth()},
			{Name: "ic_block", Extent: s.ICBlock},
		},
		Body: "data_vec[n, ic_chunk, h, w, ic_block] = data_pad[n, ic_chunk*ic_bn + ic_block, h, w]",
	})
	return plans
}

// KernelPlan describes the kernel packing gather.
func KernelPlan(w workload.Descriptor, s schedule.Params) loopnest.Plan {
	s = s.Normalize()
	if s.Spatial() {
		return spatialKernelPlan(w, s)
	}
	return loopnest.Plan{
		Stage: "kernel_vec",
		Axes: []loopnest.Axis{
			{Name: "oc_chunk", Extent: w.OutChannels / s.OCBlock, Kind: loopnest.Parallel, Chunks: s.BatchSplitC},
			{Name: "ic_chunk", Extent: w.InChannels / s.ICBlock},
			{Name: "kh", Extent: w.KernelH},
			{Name: "kw", Extent: w.KernelW},
			{Name: "ic_block", Extent: s.ICBlock},
			{Name: "oc_block", Extent: s.OCBlock},
		},
		Body: "kernel_vec[oc_chunk, ic_chunk, kh, kw, ic_block, oc_block] = kernel[oc_chunk*oc_bn + oc_block, ic_chunk*ic_bn + ic_block, kh, kw]",
	}
}
