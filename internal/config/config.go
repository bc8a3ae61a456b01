// Package config loads the YAML configuration of a search run.
//
// A file only needs the fields it changes; everything else keeps the value
// from Default. Example:
//
//	workload:
//	  preset: resnet18-stage1
//	search:
//	  max_trials: 500
//	  trial_timeout: 30s
//	  catalog: auto
//	target: auto
//	report:
//	  path: report/conv_search.txt
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/born-ml/convsearch/internal/hwprofile"
	"github.com/born-ml/convsearch/internal/oracle"
	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/report"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/search"
	"github.com/born-ml/convsearch/internal/workload"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Catalog names.
const (
	CatalogReference = "reference"
	CatalogAuto      = "auto"
)

// Config is the full configuration of a search run.
type Config struct {
	Workload Workload         `yaml:"workload"`
	Search   Search           `yaml:"search"`
	Verify   oracle.Tolerance `yaml:"verify"` // Zero picks the dtype default.
	Parallel Parallel         `yaml:"parallel"`
	Target   string           `yaml:"target"`
	Report   Report           `yaml:"report"`
}

// Workload is either a preset name or an explicit descriptor. With a preset,
// only dtype may also be given.
type Workload struct {
	Preset              string `yaml:"preset"`
	workload.Descriptor `yaml:",inline"`
}

// Search configures the driver.
type Search struct {
	Seed         uint64         `yaml:"seed"`
	BatchSize    int            `yaml:"batch_size"`
	MaxTrials    int            `yaml:"max_trials"`
	TrialTimeout time.Duration  `yaml:"trial_timeout"`
	Repeats      search.Repeats `yaml:"repeats"`
	Catalog      string         `yaml:"catalog"`
	Prune        bool           `yaml:"prune"`
}

// Parallel configures the worker count. Zero uses every CPU.
type Parallel struct {
	Workers int `yaml:"workers"`
}

// Report configures the report file.
type Report struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workload: Workload{Preset: "resnet18-stage1"},
		Search: Search{
			Seed:      1,
			BatchSize: search.DefaultBatchSize,
			Repeats:   search.DefaultRepeats(),
			Catalog:   CatalogReference,
		},
		Target: "auto",
		Report: Report{Path: report.DefaultPath},
	}
}

// Load reads path over Default and validates the result. Unknown keys are errors.
func Load(path string) (Config, error) {
	//nolint:gosec // G304: config path is operator supplied
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. The workload
// section replaces the default workload as a whole.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	cfg.Workload = Workload{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Workload == (Workload{}) {
		cfg.Workload = Default().Workload
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if _, err := c.Workload.Resolve(); err != nil {
		return fmt.Errorf("%w: workload: %w", ErrInvalid, err)
	}

	s := c.Search
	switch {
	case s.BatchSize < 1:
		return fmt.Errorf("%w: search.batch_size=%d (must be >= 1)", ErrInvalid, s.BatchSize)
	case s.MaxTrials < 0:
		return fmt.Errorf("%w: search.max_trials=%d (must be >= 0)", ErrInvalid, s.MaxTrials)
	case s.TrialTimeout < 0:
		return fmt.Errorf("%w: search.trial_timeout=%s (must be >= 0)", ErrInvalid, s.TrialTimeout)
	case s.Repeats.Data < 1 || s.Repeats.Kernel < 1 || s.Repeats.Conv < 1:
		return fmt.Errorf("%w: search.repeats must all be >= 1, got %+v", ErrInvalid, s.Repeats)
	case s.Catalog != CatalogReference && s.Catalog != CatalogAuto:
		return fmt.Errorf("%w: search.catalog=%q (want %q or %q)", ErrInvalid, s.Catalog, CatalogReference, CatalogAuto)
	}

	if c.Verify.RTol < 0 || c.Verify.ATol < 0 {
		return fmt.Errorf("%w: verify tolerances must be >= 0", ErrInvalid)
	}
	if c.Parallel.Workers < 0 {
		return fmt.Errorf("%w: parallel.workers=%d (must be >= 0)", ErrInvalid, c.Parallel.Workers)
	}
	if _, err := hwprofile.Lookup(c.Target); err != nil {
		return fmt.Errorf("%w: target: %w", ErrInvalid, err)
	}
	if c.Report.Path == "" {
		return fmt.Errorf("%w: report.path is empty", ErrInvalid)
	}
	return nil
}

// Resolve returns the preset or the explicit descriptor, validated.
func (w Workload) Resolve() (workload.Descriptor, error) {
	if w.Preset == "" {
		return w.Descriptor, w.Descriptor.Validate()
	}
	explicit := w.Descriptor
	explicit.DType = 0
	if explicit != (workload.Descriptor{}) {
		return workload.Descriptor{}, fmt.Errorf("preset %q cannot be combined with explicit shape fields", w.Preset)
	}
	d, err := workload.Preset(w.Preset)
	if err != nil {
		return workload.Descriptor{}, err
	}
	d.DType = w.DType
	return d, d.Validate()
}

// ParallelConfig returns the worker configuration.
func (c Config) ParallelConfig() parallel.Config {
	cfg := parallel.DefaultConfig()
	if c.Parallel.Workers > 0 {
		cfg.NumWorkers = c.Parallel.Workers
		cfg.Enabled = c.Parallel.Workers > 1
	}
	return cfg
}

// Tolerance returns the verify tolerance for w, falling back to the dtype
// default when none is configured.
func (c Config) Tolerance(w workload.Descriptor) oracle.Tolerance {
	if c.Verify == (oracle.Tolerance{}) {
		return oracle.ToleranceFor(w.DType)
	}
	return c.Verify
}

// SearchOptions assembles the driver options for workload w.
func (c Config) SearchOptions(w workload.Descriptor) search.Options {
	return search.Options{
		BatchSize:    c.Search.BatchSize,
		MaxTrials:    c.Search.MaxTrials,
		TrialTimeout: c.Search.TrialTimeout,
		Repeats:      c.Search.Repeats,
		Tolerance:    c.Tolerance(w),
		Seed:         c.Search.Seed,
		Prune:        c.Search.Prune,
		Parallel:     c.ParallelConfig(),
	}
}

// Catalog returns the configured candidate catalog for w on hardware hw.
func (c Config) Catalog(w workload.Descriptor, hw hwprofile.Profile) (schedule.Catalog, error) {
	if c.Search.Catalog == CatalogAuto {
		return schedule.ForWorkload(w, hw)
	}
	return schedule.Reference(), nil
}
