// Package search drives the random schedule search: generate a candidate,
// validate it against the workload, pack and convolve with timing, verify
// against the reference output, and report the fastest verified candidate of
// every batch.
//
// Every trial ends in a Result or a *TrialError. Trial failures are logged and
// counted; only cancellation, the trial budget, or a report write error end
// Run.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/born-ml/convsearch/internal/conv"
	"github.com/born-ml/convsearch/internal/oracle"
	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/report"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// maxDuplicateRun stops a pruned search once this many consecutive
// candidates were already tried.
const maxDuplicateRun = 1000

// Options configures a Driver.
type Options struct {
	BatchSize    int              // Verified candidates per report line.
	MaxTrials    int              // Candidates to generate; 0 means until cancelled.
	TrialTimeout time.Duration    // Per-trial deadline; 0 disables it.
	Repeats      Repeats          // Timing repeats per stage.
	Tolerance    oracle.Tolerance // Verification tolerance.
	Seed         uint64           // Seed of the fixed random input.
	Prune        bool             // Skip candidates already tried in this run.
	Parallel     parallel.Config  // Worker configuration for every stage.
}

// DefaultOptions returns batches of 50, no budget, no timeout, and the
// default repeats and tolerance.
func DefaultOptions() Options {
	return Options{
		BatchSize: DefaultBatchSize,
		Repeats:   DefaultRepeats(),
		Tolerance: oracle.DefaultTolerance(),
		Seed:      1,
		Parallel:  parallel.DefaultConfig(),
	}
}

// Summary counts what a Run did.
type Summary struct {
	Trials     int
	Recorded   int
	Flushes    int
	Duplicates int
	Failures   map[Kind]int
	Best       Result
	HasBest    bool
}

// Failed returns the total number of failed trials.
func (s Summary) Failed() int {
	n := 0
	for _, c := range s.Failures {
		n += c
	}
	return n
}

// Driver owns one search over one workload. It is not safe for concurrent use.
type Driver struct {
	workload workload.Descriptor
	sampler  schedule.Sampler
	opts     Options
	batch    *Batch

	data, kernel, reference *tensor.RawTensor

	now func() time.Time
}

// NewDriver prepares a search: it generates the fixed-seed input and kernel
// and computes the reference output once. writer may be nil.
func NewDriver(w workload.Descriptor, sampler schedule.Sampler, writer *report.Writer, opts Options) (*Driver, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if sampler == nil {
		return nil, errors.New("search: nil sampler")
	}
	data, err := tensor.NewUniform(w.DataShape(), w.DType, opts.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "search: input")
	}
	kernel, err := tensor.NewUniform(w.KernelShape(), w.DType, opts.Seed+1)
	if err != nil {
		return nil, errors.Wrap(err, "search: kernel")
	}
	reference, err := oracle.ReferenceConvolve(w, data, kernel)
	if err != nil {
		return nil, errors.Wrap(err, "search: reference")
	}

	return &Driver{
		workload:  w,
		sampler:   sampler,
		opts:      opts,
		batch:     NewBatch(opts.BatchSize, writer),
		data:      data,
		kernel:    kernel,
		reference: reference,
		now:       time.Now,
	}, nil
}

// Workload returns the workload being searched.
func (d *Driver) Workload() workload.Descriptor { return d.workload }

// Batch returns the driver's pending batch.
func (d *Driver) Batch() *Batch { return d.batch }

// Trial runs the full pipeline for one candidate. Failures are returned as a
// *TrialError; a panic anywhere in the pipeline becomes a CompileFailure.
func (d *Driver) Trial(ctx context.Context, s schedule.Params) (res Result, err error) {
	s = s.Normalize()
	defer func() {
		if v := recover(); v != nil {
			res = Result{}
			err = &TrialError{Kind: KindCompileFailure, Schedule: s, Err: errors.Wrapf(ErrCompileFailure, "panic: %v", v)}
		}
	}()

	if err := s.Validate(d.workload); err != nil {
		return Result{}, d.fail(ctx, s, err)
	}

	parent := ctx
	if d.opts.TrialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.TrialTimeout)
		defer cancel()
	}

	k, err := conv.Compile(d.workload, s, d.opts.Parallel)
	if err != nil {
		return Result{}, d.fail(parent, s, err)
	}

	res = Result{Schedule: s}
	var packedData, packedKernel, blocked, out *tensor.RawTensor
	stages := []struct {
		name    string
		repeats int
		dst     *time.Duration
		run     func() error
	}{
		{"data", d.opts.Repeats.Data, &res.DataTime, func() (err error) {
			packedData, err = k.PackData(ctx, d.data)
			return err
		}},
		{"kernel", d.opts.Repeats.Kernel, &res.KernelTime, func() (err error) {
			packedKernel, err = k.PackKernel(ctx, d.kernel)
			return err
		}},
		{"conv", d.opts.Repeats.Conv, &res.ConvTime, func() (err error) {
			blocked, err = k.Convolve(ctx, packedData, packedKernel)
			return err
		}},
		{"unpack", 1, &res.UnpackTime, func() (err error) {
			out, err = k.Unpack(ctx, blocked)
			return err
		}},
	}
	for _, st := range stages {
		*st.dst, err = measure(ctx, d.now, st.repeats, st.run)
		if err != nil {
			return Result{}, d.fail(parent, s, fmt.Errorf("%s stage: %w", st.name, err))
		}
	}

	cmp, err := oracle.Verify(out, d.reference, d.opts.Tolerance)
	res.MaxAbsError = cmp.MaxAbsError
	if err != nil {
		return Result{}, d.fail(parent, s, err)
	}
	res.Passed = true
	return res, nil
}

// fail wraps err as a *TrialError. A deadline hit while parent is still live
// is the trial's own timeout.
func (d *Driver) fail(parent context.Context, s schedule.Params, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		err = fmt.Errorf("%w after %s: %w", ErrTrialTimeout, d.opts.TrialTimeout, err)
	}
	kind := classify(err)
	if kind == KindCompileFailure && !errors.Is(err, ErrCompileFailure) {
		err = fmt.Errorf("%w: %w", ErrCompileFailure, err)
	}
	return &TrialError{Kind: kind, Schedule: s, Err: err}
}

// Run folds trials until the budget is spent or ctx is done. Any results left
// in the batch are flushed before returning. It returns ctx.Err() when
// stopped by cancellation, with the summary of everything done so far.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	sum := Summary{Failures: make(map[Kind]int)}
	seen := make(map[string]struct{})
	dupRun := 0

	klog.InfoS("Starting search", "workload", d.workload, "batch", d.opts.BatchSize,
		"maxTrials", d.opts.MaxTrials, "timeout", d.opts.TrialTimeout)

	var runErr error
	for d.opts.MaxTrials == 0 || sum.Trials < d.opts.MaxTrials {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		s := d.sampler.Next().Normalize()
		sum.Trials++

		if d.opts.Prune {
			key := s.String()
			if _, ok := seen[key]; ok {
				sum.Duplicates++
				if dupRun++; dupRun >= maxDuplicateRun {
					klog.InfoS("Catalog exhausted", "distinct", len(seen))
					break
				}
				continue
			}
			seen[key] = struct{}{}
			dupRun = 0
		}

		klog.V(1).InfoS("Trying", "schedule", s)
		res, err := d.Trial(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			d.recordFailure(&sum, s, err)
			continue
		}

		sum.Recorded++
		if !sum.HasBest || res.ConvTime < sum.Best.ConvTime {
			sum.Best, sum.HasBest = res, true
		}
		klog.V(1).InfoS("Verified", "schedule", s, "conv", res.ConvTime, "data", res.DataTime,
			"kernel", res.KernelTime, "maxAbsError", res.MaxAbsError)

		flushed, err := d.batch.Add(res)
		if flushed {
			sum.Flushes++
		}
		if err != nil {
			return sum, errors.Wrap(err, "search: report")
		}
	}

	if _, flushed, err := d.batch.Flush(); err != nil {
		return sum, errors.Wrap(err, "search: report")
	} else if flushed {
		sum.Flushes++
	}

	klog.InfoS("Search finished", "trials", sum.Trials, "verified", sum.Recorded,
		"failed", sum.Failed(), "flushes", sum.Flushes)
	return sum, runErr
}

func (d *Driver) recordFailure(sum *Summary, s schedule.Params, err error) {
	kind := KindCompileFailure
	var te *TrialError
	if errors.As(err, &te) {
		kind = te.Kind
	}
	sum.Failures[kind]++

	if kind == KindScheduleIncompatible {
		klog.V(2).InfoS("Rejected", "schedule", s, "reason", err)
		return
	}
	klog.ErrorS(err, "Trial failed", "kind", kind, "schedule", s)
}
