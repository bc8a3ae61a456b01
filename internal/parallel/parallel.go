// Package parallel provides the static-partition parallel-for used by the
// packing and compute stages.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

// Sequential returns a Config that runs every loop on the calling goroutine.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// Workers returns the number of goroutines a loop of n items may use.
func (c Config) Workers() int {
	if !c.Enabled || c.NumWorkers < 1 {
		return 1
	}
	return c.NumWorkers
}

// Range is one chunk [Start, End) of a partitioned loop. Worker is the chunk index.
type Range struct {
	Worker     int
	Start, End int
}

// Partition splits [0, n) into at most chunks contiguous ranges of near-equal size.
// The first n%chunks ranges hold one extra item. Empty ranges are never returned.
func Partition(n, chunks int) []Range {
	if n <= 0 {
		return nil
	}
	chunks = max(min(chunks, n), 1)
	base, extra := n/chunks, n%chunks

	ranges := make([]Range, 0, chunks)
	start := 0
	for w := 0; w < chunks; w++ {
		size := base
		if w < extra {
			size++
		}
		ranges = append(ranges, Range{Worker: w, Start: start, End: start + size})
		start += size
	}
	return ranges
}

// PanicError is returned by ForChunks when a chunk body panics.
type PanicError struct {
	Worker int
	Value  any
	Stack  []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel: chunk %d panicked: %v", e.Worker, e.Value)
}

// run calls body and turns a panic into a *PanicError.
func run(ctx context.Context, r Range, body func(ctx context.Context, r Range) error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Worker: r.Worker, Value: v, Stack: debug.Stack()}
		}
	}()
	return body(ctx, r)
}

// ForChunks statically partitions [0, n) into chunks ranges, fewer when a
// range would hold less than cfg.MinChunkSize items, and runs body once per
// range, each on its own goroutine when cfg enables parallelism. It returns
// only after every chunk has finished (a full barrier), with the first error
// any chunk returned. A panicking chunk fails the loop with a *PanicError
// instead of crashing the process. The context passed to body is cancelled as
// soon as one chunk fails or ctx is done; bodies are expected to poll it
// between units of work.
func ForChunks(ctx context.Context, n, chunks int, cfg Config, body func(ctx context.Context, r Range) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cfg.MinChunkSize > 1 {
		chunks = min(chunks, max(n/cfg.MinChunkSize, 1))
	}
	ranges := Partition(n, chunks)

	if !cfg.Enabled || len(ranges) <= 1 {
		// Sequential fallback.
		for _, r := range ranges {
			if err := run(ctx, r, body); err != nil {
				return err
			}
		}
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers())
	for _, r := range ranges {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return run(gctx, r, body)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
