package search

import (
	"github.com/born-ml/convsearch/internal/report"
	"github.com/samber/lo"
	"k8s.io/klog/v2"
)

// DefaultBatchSize is the number of verified candidates per report line.
const DefaultBatchSize = 50

// Batch collects verified results and writes the fastest one to the report
// each time it fills. It is owned by a single goroutine.
type Batch struct {
	size    int
	results []Result
	writer  *report.Writer
}

// NewBatch returns a batch of size results flushing to w. A nil w keeps
// selecting winners without writing them anywhere.
func NewBatch(size int, w *report.Writer) *Batch {
	size = max(size, 1)
	return &Batch{size: size, results: make([]Result, 0, size), writer: w}
}

// Len returns the number of results waiting for the next flush.
func (b *Batch) Len() int { return len(b.results) }

// Add records r and flushes when the batch is full. It reports whether a
// flush happened.
func (b *Batch) Add(r Result) (bool, error) {
	b.results = append(b.results, r)
	if len(b.results) < b.size {
		return false, nil
	}
	_, _, err := b.Flush()
	return true, err
}

// Flush writes the minimum conv time result as one report line and empties
// the batch. It reports false when the batch was already empty.
func (b *Batch) Flush() (Result, bool, error) {
	if len(b.results) == 0 {
		return Result{}, false, nil
	}
	best := lo.MinBy(b.results, func(a, c Result) bool { return a.ConvTime < c.ConvTime })
	n := len(b.results)
	b.results = b.results[:0]

	klog.InfoS("Flushing batch", "candidates", n, "best", best.Schedule, "conv", best.ConvTime,
		"data", best.DataTime, "kernel", best.KernelTime)
	if b.writer == nil {
		return best, true, nil
	}
	if err := b.writer.Append(best.Entry()); err != nil {
		return best, true, err
	}
	return best, true, nil
}
