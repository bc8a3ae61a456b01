package main

import (
	"fmt"

	"github.com/born-ml/convsearch/internal/hwprofile"
	"github.com/born-ml/convsearch/internal/schedule"
)

func runProfile(args []string) error {
	fs := newFlagSet("profile")
	var common commonFlags
	common.register(fs)
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
	hw, err := hwprofile.Lookup(cfg.Target)
	if err != nil {
		return err
	}
	auto, err := schedule.ForWorkload(w, hw)
	if err != nil {
		return err
	}

	fmt.Printf("profile:   %s\n", hw)
	fmt.Printf("f32 lanes: %d\n", hw.Float32Lanes())
	fmt.Printf("workload:  %s\n", w)
	fmt.Printf("catalog:   reference=%d auto=%d candidates\n", schedule.Reference().Size(), auto.Size())
	fmt.Printf("  vec_h %v  vec_w %v  vec_c %v\n", auto.VecH, auto.VecW, auto.VecC)
	fmt.Printf("  ic_bn %v  oc_bn %v  reg_n %v\n", auto.ICBlock, auto.OCBlock, auto.RegisterTile)
	fmt.Printf("  layouts %v  templates %v\n", auto.Layouts, auto.Templates)
	fmt.Printf("default:   %s\n", schedule.Default(w))
	return nil
}
