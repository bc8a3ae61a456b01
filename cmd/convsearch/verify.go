package main

import (
	"context"
	"fmt"
	"time"

	"github.com/born-ml/convsearch/internal/conv"
	"github.com/born-ml/convsearch/internal/oracle"
	"github.com/born-ml/convsearch/internal/tensor"
)

func runVerify(args []string) error {
	fs := newFlagSet("verify")
	var common commonFlags
	common.register(fs)
	repr := fs.String("schedule", "", "schedule as printed in the report (default: heuristic schedule)")
	seed := fs.Uint64("seed", 1, "seed of the random input")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	w, err := resolve(cfg)
	if err != nil {
		return err
	}
	s, err := scheduleFor(w, *repr)
	if err != nil {
		return err
	}

	k, err := conv.Compile(w, s, cfg.ParallelConfig())
	if err != nil {
		return err
	}
	data, err := tensor.NewUniform(w.DataShape(), w.DType, *seed)
	if err != nil {
		return err
	}
	kernel, err := tensor.NewUniform(w.KernelShape(), w.DType, *seed+1)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := k.Run(context.Background(), data, kernel)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	want, err := oracle.ReferenceConvolve(w, data, kernel)
	if err != nil {
		return err
	}
	tol := cfg.Tolerance(w)
	cmp, err := oracle.Verify(out, want, tol)

	fmt.Printf("workload:  %s\n", w)
	fmt.Printf("schedule:  %s\n", k.Schedule())
	fmt.Printf("output:    %v %s\n", out.Shape(), out.DType())
	fmt.Printf("run:       %s (%.2f GFLOP/s)\n", elapsed, 2*float64(w.MACs())/elapsed.Seconds()/1e9)
	fmt.Printf("max error: abs=%g rel=%g (rtol=%g atol=%g)\n", cmp.MaxAbsError, cmp.MaxRelError, tol.RTol, tol.ATol)
	if err != nil {
		return err
	}
	fmt.Println("PASS")
	return nil
}
