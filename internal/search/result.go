package search

import (
	"context"
	"time"

	"github.com/born-ml/convsearch/internal/report"
	"github.com/born-ml/convsearch/internal/schedule"
)

// Result is the success half of one trial: a verified candidate and its
// mean stage times.
type Result struct {
	Schedule    schedule.Params
	DataTime    time.Duration
	KernelTime  time.Duration
	ConvTime    time.Duration
	UnpackTime  time.Duration
	MaxAbsError float64
	Passed      bool
}

// PackTime is the combined data and kernel packing time.
func (r Result) PackTime() time.Duration { return r.DataTime + r.KernelTime }

// Entry converts r to its report line.
func (r Result) Entry() report.Entry {
	return report.Entry{Schedule: r.Schedule, Conv: r.ConvTime, Data: r.DataTime, Kernel: r.KernelTime}
}

// Repeats is how many times each stage runs per trial. Reported times are means.
type Repeats struct {
	Data   int `yaml:"data"`
	Kernel int `yaml:"kernel"`
	Conv   int `yaml:"conv"`
}

// DefaultRepeats times packing over 5 runs and the convolution over 20.
func DefaultRepeats() Repeats {
	return Repeats{Data: 5, Kernel: 5, Conv: 20}
}

// measure runs stage repeats times and returns the mean wall time.
func measure(ctx context.Context, now func() time.Time, repeats int, stage func() error) (time.Duration, error) {
	repeats = max(repeats, 1)
	var total time.Duration
	for range repeats {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		start := now()
		if err := stage(); err != nil {
			return 0, err
		}
		total += now().Sub(start)
	}
	return total / time.Duration(repeats), nil
}
