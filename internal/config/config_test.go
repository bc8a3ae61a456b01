package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/born-ml/convsearch/internal/hwprofile"
	"github.com/born-ml/convsearch/internal/oracle"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	w, err := cfg.Workload.Resolve()
	require.NoError(t, err)
	assert.Equal(t, workload.Square(1, 64, 64, 56, 3, 1, 1), w)

	opts := cfg.SearchOptions(w)
	assert.Equal(t, 50, opts.BatchSize)
	assert.Equal(t, 0, opts.MaxTrials)
	assert.Equal(t, 5, opts.Repeats.Data)
	assert.Equal(t, 5, opts.Repeats.Kernel)
	assert.Equal(t, 20, opts.Repeats.Conv)
	assert.Equal(t, oracle.DefaultTolerance(), opts.Tolerance)
	assert.Equal(t, "report/conv_search.txt", cfg.Report.Path)
}

func TestParse_Overlay(t *testing.T) {
	cfg, err := Parse([]byte(`
workload:
  preset: resnet18-stage3
  dtype: float16
search:
  max_trials: 200
  trial_timeout: 30s
  catalog: auto
  prune: true
  repeats:
    conv: 10
parallel:
  workers: 2
target: skylake-avx512
`))
	require.NoError(t, err)

	w, err := cfg.Workload.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 256, w.InChannels)
	assert.Equal(t, tensor.Float16, w.DType)

	assert.Equal(t, 200, cfg.Search.MaxTrials)
	assert.Equal(t, 30*time.Second, cfg.Search.TrialTimeout)
	assert.True(t, cfg.Search.Prune)
	assert.Equal(t, 10, cfg.Search.Repeats.Conv)
	assert.Equal(t, 5, cfg.Search.Repeats.Data, "unset fields keep defaults")
	assert.Equal(t, 50, cfg.Search.BatchSize)

	opts := cfg.SearchOptions(w)
	assert.Equal(t, oracle.ToleranceFor(tensor.Float16), opts.Tolerance)
	assert.Equal(t, 2, opts.Parallel.NumWorkers)
	assert.True(t, opts.Parallel.Enabled)

	hw, err := hwprofile.Lookup(cfg.Target)
	require.NoError(t, err)
	cat, err := cfg.Catalog(w, hw)
	require.NoError(t, err)
	assert.Contains(t, cat.Layouts, "NCHW16c")
}

func TestParse_ExplicitWorkload(t *testing.T) {
	cfg, err := Parse([]byte(`
workload:
  batch: 1
  in_channels: 8
  out_channels: 16
  in_height: 10
  in_width: 12
  kernel_h: 3
  kernel_w: 3
  pad_h: 1
  pad_w: 0
  stride_h: 1
  stride_w: 1
verify:
  rtol: 1.0e-4
  atol: 1.0e-5
search:
  catalog: reference
`))
	require.NoError(t, err)
	w, err := cfg.Workload.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 10, w.OutHeight())
	assert.Equal(t, 10, w.OutWidth())
	assert.Equal(t, oracle.Tolerance{RTol: 1e-4, ATol: 1e-5}, cfg.Tolerance(w))
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":        "search:\n  batch: 3\n",
		"batch size":         "search:\n  batch_size: 0\n",
		"negative trials":    "search:\n  max_trials: -1\n",
		"repeats":            "search:\n  repeats:\n    data: 0\n",
		"catalog":            "search:\n  catalog: clever\n",
		"tolerance":          "verify:\n  rtol: -1\n",
		"workers":            "parallel:\n  workers: -2\n",
		"target":             "target: z80\n",
		"report":             "report:\n  path: \"\"\n",
		"unknown preset":     "workload:\n  preset: vgg16\n",
		"preset and shape":   "workload:\n  preset: resnet18-stage1\n  in_channels: 3\n",
		"uneven output":      "workload:\n  preset: \"\"\n  batch: 1\n  in_channels: 3\n  out_channels: 8\n  in_height: 224\n  in_width: 224\n  kernel_h: 7\n  kernel_w: 7\n  pad_h: 3\n  pad_w: 3\n  stride_h: 2\n  stride_w: 2\n",
		"bad dtype":          "workload:\n  dtype: int8\n",
		"malformed duration": "search:\n  trial_timeout: soon\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  seed: 7\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.Search.Seed)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
