package search

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/born-ml/convsearch/internal/oracle"
	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/report"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	small      = workload.Square(1, 8, 16, 8, 3, 1, 1)
	validSmall = schedule.Params{VecH: 2, VecW: 4, VecC: 4, ICBlock: 4, OCBlock: 8}
	badSmall   = schedule.Params{VecH: 2, VecW: 4, VecC: 4, ICBlock: 3, OCBlock: 8}
)

type listSampler struct {
	list []schedule.Params
	i    int
}

func (s *listSampler) Next() schedule.Params {
	p := s.list[s.i%len(s.list)]
	s.i++
	return p
}

func stepClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BatchSize = 3
	opts.Repeats = Repeats{Data: 1, Kernel: 1, Conv: 2}
	opts.Parallel = parallel.Sequential()
	return opts
}

func newTestDriver(t *testing.T, w workload.Descriptor, sampler schedule.Sampler, writer *report.Writer, opts Options) *Driver {
	t.Helper()
	d, err := NewDriver(w, sampler, writer, opts)
	require.NoError(t, err)
	d.now = stepClock(time.Millisecond)
	return d
}

func TestBatch_FlushAfterFifty(t *testing.T) {
	var buf bytes.Buffer
	b := NewBatch(DefaultBatchSize, report.NewWriter(&buf))

	fastest := 17
	for i := range DefaultBatchSize {
		conv := time.Duration(100+(i*37)%50) * time.Millisecond
		if i == fastest {
			conv = 5 * time.Millisecond
		}
		r := Result{
			Schedule:   schedule.Params{VecH: 1, VecW: i + 1, VecC: 1, ICBlock: 1, OCBlock: 1}.Normalize(),
			ConvTime:   conv,
			DataTime:   time.Duration(i) * time.Microsecond,
			KernelTime: 2 * time.Microsecond,
			Passed:     true,
		}

		flushed, err := b.Add(r)
		require.NoError(t, err)
		if i < DefaultBatchSize-1 {
			assert.False(t, flushed)
			assert.Zero(t, buf.Len())
		} else {
			assert.True(t, flushed)
		}
	}

	assert.Equal(t, 0, b.Len())
	entries, err := report.ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fastest+1, entries[0].Schedule.VecW)
	assert.Equal(t, 5*time.Millisecond, entries[0].Conv)
	assert.Equal(t, time.Duration(fastest)*time.Microsecond, entries[0].Data)
	assert.Equal(t, 2*time.Microsecond, entries[0].Kernel)
}

func TestBatch_FlushEmptyAndNilWriter(t *testing.T) {
	b := NewBatch(2, nil)
	_, flushed, err := b.Flush()
	require.NoError(t, err)
	assert.False(t, flushed)

	_, err = b.Add(Result{ConvTime: 2})
	require.NoError(t, err)
	best, flushed, err := b.Flush()
	require.NoError(t, err)
	assert.True(t, flushed)
	assert.Equal(t, time.Duration(2), best.ConvTime)
	assert.Equal(t, 0, b.Len())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{fmt.Errorf("x: %w", ErrTrialTimeout), KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{&schedule.IncompatibleError{Param: "ic_bn", Value: 3, Dim: "in_channels", DimValue: 64}, KindScheduleIncompatible},
		{&tensor.ShapeError{What: "data", Got: tensor.Shape{1}, Want: tensor.Shape{2}}, KindShapeMismatch},
		{&oracle.MismatchError{}, KindNumericalMismatch},
		{errors.New("anything else"), KindCompileFailure},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestDriver_TrialVerified(t *testing.T) {
	d := newTestDriver(t, small, &listSampler{list: []schedule.Params{validSmall}}, nil, testOptions())

	res, err := d.Trial(context.Background(), validSmall)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, validSmall.Normalize(), res.Schedule)
	assert.Equal(t, time.Millisecond, res.DataTime)
	assert.Equal(t, time.Millisecond, res.KernelTime)
	assert.Equal(t, time.Millisecond, res.ConvTime)
	assert.Equal(t, 2*time.Millisecond, res.PackTime())
	assert.Less(t, res.MaxAbsError, 1e-3)
}

func TestDriver_TrialIncompatible(t *testing.T) {
	d := newTestDriver(t, small, &listSampler{list: []schedule.Params{validSmall}}, nil, testOptions())

	_, err := d.Trial(context.Background(), badSmall)
	var te *TrialError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindScheduleIncompatible, te.Kind)
	assert.Equal(t, 3, te.Schedule.ICBlock)
	assert.ErrorIs(t, err, schedule.ErrIncompatible)
}

func TestDriver_TrialNumericalMismatch(t *testing.T) {
	d := newTestDriver(t, small, &listSampler{list: []schedule.Params{validSmall}}, nil, testOptions())
	d.reference = d.reference.Clone()
	d.reference.SetFloat64(0, d.reference.Float64At(0)+1)

	_, err := d.Trial(context.Background(), validSmall)
	var te *TrialError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindNumericalMismatch, te.Kind)
	assert.ErrorIs(t, err, oracle.ErrNumericalMismatch)
}

func TestDriver_TrialPanicBecomesCompileFailure(t *testing.T) {
	d := newTestDriver(t, small, &listSampler{list: []schedule.Params{validSmall}}, nil, testOptions())
	d.data = nil

	res, err := d.Trial(context.Background(), validSmall)
	var te *TrialError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindCompileFailure, te.Kind)
	assert.ErrorIs(t, err, ErrCompileFailure)
	assert.False(t, res.Passed)
}

func TestDriver_TrialTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a workload slower than the timeout")
	}
	w := workload.Square(1, 64, 64, 56, 3, 1, 1)
	opts := testOptions()
	opts.TrialTimeout = time.Millisecond
	opts.Repeats.Conv = 20
	s := schedule.Params{VecH: 7, VecW: 14, VecC: 8, ICBlock: 16, OCBlock: 16, UnrollInner: true}
	d := newTestDriver(t, w, &listSampler{list: []schedule.Params{s}}, nil, opts)

	_, err := d.Trial(context.Background(), s)
	var te *TrialError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindTimeout, te.Kind)
	assert.ErrorIs(t, err, ErrTrialTimeout)
}

func TestDriver_Run(t *testing.T) {
	var buf bytes.Buffer
	sampler := &listSampler{list: []schedule.Params{validSmall, badSmall}}
	opts := testOptions()
	opts.MaxTrials = 10
	d := newTestDriver(t, small, sampler, report.NewWriter(&buf), opts)

	sum, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, sum.Trials)
	assert.Equal(t, 5, sum.Recorded)
	assert.Equal(t, 5, sum.Failures[KindScheduleIncompatible])
	assert.Equal(t, 5, sum.Failed())
	assert.True(t, sum.HasBest)
	assert.Equal(t, validSmall.Normalize(), sum.Best.Schedule)

	// One full batch of 3, then the remaining 2 flushed on exit.
	assert.Equal(t, 2, sum.Flushes)
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.Equal(t, 0, d.Batch().Len())
}

func TestDriver_RunCancelled(t *testing.T) {
	var buf bytes.Buffer
	d := newTestDriver(t, small, &listSampler{list: []schedule.Params{validSmall}}, report.NewWriter(&buf), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sum.Trials)
	assert.Zero(t, buf.Len())
}

func TestDriver_RunPrune(t *testing.T) {
	opts := testOptions()
	opts.MaxTrials = 6
	opts.Prune = true
	d := newTestDriver(t, small, &listSampler{list: []schedule.Params{validSmall}}, nil, opts)

	sum, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Trials)
	assert.Equal(t, 5, sum.Duplicates)
	assert.Equal(t, 1, sum.Recorded)
}

func TestNewDriver_Errors(t *testing.T) {
	_, err := NewDriver(small, nil, nil, testOptions())
	assert.Error(t, err)

	bad := small
	bad.StrideH = 0
	_, err = NewDriver(bad, &listSampler{list: []schedule.Params{validSmall}}, nil, testOptions())
	assert.ErrorIs(t, err, workload.ErrInvalid)
}

func TestMeasure(t *testing.T) {
	calls := 0
	mean, err := measure(context.Background(), stepClock(3*time.Millisecond), 4, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3*time.Millisecond, mean)

	_, err = measure(context.Background(), time.Now, 2, func() error { return errors.New("stage") })
	assert.EqualError(t, err, "stage")
}
