package main

import (
	"fmt"

	"github.com/born-ml/convsearch/internal/conv"
)

func runPlan(args []string) error {
	fs := newFlagSet("plan")
	var common commonFlags
	common.register(fs)
	repr := fs.String("schedule", "", "schedule as printed in the report (default: heuristic schedule)")
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

	fmt.Printf("# %s\n# %s\n", w, k.Schedule())
	for _, p := range k.Plans() {
		fmt.Printf("\n%s", p)
		fmt.Printf("# %d iterations\n", p.Iterations())
	}
	return nil
}
