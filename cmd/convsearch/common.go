package main

import (
	"flag"
	"strings"

	"github.com/born-ml/convsearch/internal/config"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/workload"
)

// commonFlags are shared by every command that works on one workload.
type commonFlags struct {
	configPath string
	preset     string
	target     string
	workers    int
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file (default: built-in defaults)")
	fs.StringVar(&c.preset, "preset", "", "workload preset, one of "+strings.Join(workload.PresetNames(), ", "))
	fs.StringVar(&c.target, "target", "", "hardware target: auto or a named profile")
	fs.IntVar(&c.workers, "workers", 0, "worker goroutines (0: every CPU)")
}

// load reads the config file, if any, and applies the common flags that were
// set. The caller applies its own flags and then calls Validate.
func (c *commonFlags) load(fs *flag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.Load(c.configPath); err != nil {
			return config.Config{}, err
		}
	}

	set := setFlags(fs)
	if set["preset"] {
		cfg.Workload = config.Workload{Preset: c.preset}
	}
	if set["target"] {
		cfg.Target = c.target
	}
	if set["workers"] {
		cfg.Parallel.Workers = c.workers
	}
	return cfg, nil
}

// resolve validates cfg and returns its workload.
func resolve(cfg config.Config) (workload.Descriptor, error) {
	if err := cfg.Validate(); err != nil {
		return workload.Descriptor{}, err
	}
	return cfg.Workload.Resolve()
}

// scheduleFor parses repr, or returns the heuristic schedule for w when repr is empty.
func scheduleFor(w workload.Descriptor, repr string) (schedule.Params, error) {
	if repr == "" {
		return schedule.Default(w), nil
	}
	return schedule.Parse(repr)
}
