package conv

import (
	"context"

	"github.com/born-ml/convsearch/internal/layout"
	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
)

// UnpackOutput converts the blocked convolution output to the schedule's
// output layout: NCHW [N, C_out, H_out, W_out], or NCHW<k>c. When k equals
// oc_bn the blocked tensor already has that layout and is returned as is. A
// spatial output is always unpacked to NCHW.
func UnpackOutput(ctx context.Context, w workload.Descriptor, s schedule.Params, blocked *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	s = s.Normalize()
	if err := tensor.CheckShape("blocked output", blocked.Shape(), BlockedOutputShape(w, s)); err != nil {
		return nil, err
	}
	if s.Spatial() {
		return unpackSpatialOutput(ctx, w, s, blocked, cfg)
	}
	k, err := s.OutputBlock()
	if err != nil {
		return nil, err
	}
	if k == s.OCBlock {
		return blocked, nil
	}
	return layout.Reblock(ctx, blocked, k, cfg.Workers(), cfg)
}

// OutputShape is the shape UnpackOutput produces under s.
func OutputShape(w workload.Descriptor, s schedule.Params) (tensor.Shape, error) {
	k, err := s.Normalize().OutputBlock()
	if err != nil {
		return nil, err
	}
	if k == 0 {
		return w.OutputShape(), nil
	}
	return tensor.Shape{w.Batch, w.OutChannels / k, w.OutHeight(), w.OutWidth(), k}, nil
}
