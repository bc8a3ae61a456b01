package conv

import (
	"context"

	"github.com/born-ml/convsearch/internal/layout"
	"github.com/born-ml/convsearch/internal/loopnest"
	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
)

// CompiledKernel is a workload bound to a validated schedule, with the loop
// nests of every stage resolved. It holds no tensors and is safe for
// concurrent use.
type CompiledKernel struct {
	workload workload.Descriptor
	schedule schedule.Params
	cfg      parallel.Config
	plans    []loopnest.Plan
}

// Compile validates s against w and builds the stage plans. It fails with
// schedule.ErrIncompatible for schedules the workload cannot use.
func Compile(w workload.Descriptor, s schedule.Params, cfg parallel.Config) (*CompiledKernel, error) {
	s = s.Normalize()
	if err := s.Validate(w); err != nil {
		return nil, err
	}

	workers := cfg.Workers()
	plans := layout.DataPlans(w, s, workers)
	plans = append(plans, layout.KernelPlan(w, s), Plan(w, s, workers))
	if p, ok := UnpackPlan(w, s, workers); ok {
		plans = append(plans, p)
	}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	return &CompiledKernel{workload: w, schedule: s, cfg: cfg, plans: plans}, nil
}

// Workload returns the compiled workload.
func (k *CompiledKernel) Workload() workload.Descriptor { return k.workload }

// Schedule returns the normalized schedule.
func (k *CompiledKernel) Schedule() schedule.Params { return k.schedule }

// Plans returns the loop nests of every stage, in execution order.
func (k *CompiledKernel) Plans() []loopnest.Plan {
	return append([]loopnest.Plan(nil), k.plans...)
}

// PackData runs the data layout transform.
func (k *CompiledKernel) PackData(ctx context.Context, data *tensor.RawTensor) (*tensor.RawTensor, error) {
	return layout.PackData(ctx, k.workload, k.schedule, data, k.cfg)
}

// PackKernel runs the kernel layout transform.
func (k *CompiledKernel) PackKernel(ctx context.Context, kernel *tensor.RawTensor) (*tensor.RawTensor, error) {
	return layout.PackKernel(ctx, k.workload, k.schedule, kernel, k.cfg)
}

// Convolve runs the compute stage on packed tensors.
func (k *CompiledKernel) Convolve(ctx context.Context, data, kernel *tensor.RawTensor) (*tensor.RawTensor, error) {
	return Convolve(ctx, k.workload, k.schedule, data, kernel, k.cfg)
}

// Unpack converts the blocked output to the schedule's output layout.
func (k *CompiledKernel) Unpack(ctx context.Context, blocked *tensor.RawTensor) (*tensor.RawTensor, error) {
	return UnpackOutput(ctx, k.workload, k.schedule, blocked, k.cfg)
}

// Run executes every stage in order on raw NCHW data and a raw
// [C_out, C_in, K_h, K_w] kernel. Each stage completes before the next starts.
func (k *CompiledKernel) Run(ctx context.Context, data, kernel *tensor.RawTensor) (*tensor.RawTensor, error) {
	packedData, err := k.PackData(ctx, data)
	if err != nil {
		return nil, err
	}
	packedKernel, err := k.PackKernel(ctx, kernel)
	if err != nil {
		return nil, err
	}
	blocked, err := k.Convolve(ctx, packedData, packedKernel)
	if err != nil {
		return nil, err
	}
	return k.Unpack(ctx, blocked)
}
