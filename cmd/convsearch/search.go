package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/born-ml/convsearch/internal/hwprofile"
	"github.com/born-ml/convsearch/internal/report"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/search"
	"k8s.io/klog/v2"
)

func runSearch(args []string) error {
	fs := newFlagSet("search")
	var common commonFlags
	common.register(fs)
	maxTrials := fs.Int("max-trials", 0, "candidates to try (0: until interrupted)")
	timeout := fs.Duration("timeout", 0, "per-trial timeout (0: none)")
	batch := fs.Int("batch", search.DefaultBatchSize, "verified candidates per report line")
	catalog := fs.String("catalog", "", "candidate catalog: reference or auto")
	reportPath := fs.String("report", "", "report file (default "+report.DefaultPath+")")
	seed := fs.Uint64("seed", 1, "seed of the sampler and the test input")
	prune := fs.Bool("prune", false, "skip candidates already tried in this run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	set := setFlags(fs)
	if set["max-trials"] {
		cfg.Search.MaxTrials = *maxTrials
	}
	if set["timeout"] {
		cfg.Search.TrialTimeout = *timeout
	}
	if set["batch"] {
		cfg.Search.BatchSize = *batch
	}
	if set["catalog"] {
		cfg.Search.Catalog = *catalog
	}
	if set["report"] {
		cfg.Report.Path = *reportPath
	}
	if set["seed"] {
		cfg.Search.Seed = *seed
	}
	if set["prune"] {
		cfg.Search.Prune = *prune
	}
	w, err := resolve(cfg)
	if err != nil {
		return err
	}

	hw, err := hwprofile.Lookup(cfg.Target)
	if err != nil {
		return err
	}
	cat, err := cfg.Catalog(w, hw)
	if err != nil {
		return err
	}

	writer, err := report.Open(cfg.Report.Path)
	if err != nil {
		return err
	}
	defer writer.Close()

	driver, err := search.NewDriver(w, schedule.NewRandomSampler(cat, cfg.Search.Seed), writer, cfg.SearchOptions(w))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	klog.InfoS("Search configured", "workload", w, "profile", hw, "catalog", cfg.Search.Catalog,
		"candidates", cat.Size(), "report", cfg.Report.Path)
	sum, err := driver.Run(ctx)
	printSummary(os.Stdout, sum, cfg.Report.Path)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printSummary(out io.Writer, sum search.Summary, path string) {
	fmt.Fprintf(out, "trials:    %d\n", sum.Trials)
	fmt.Fprintf(out, "verified:  %d\n", sum.Recorded)
	if sum.Duplicates > 0 {
		fmt.Fprintf(out, "skipped:   %d (already tried)\n", sum.Duplicates)
	}
	kinds := make([]search.Kind, 0, len(sum.Failures))
	for k := range sum.Failures {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(out, "failed:    %d %s\n", sum.Failures[k], k)
	}
	fmt.Fprintf(out, "flushes:   %d -> %s\n", sum.Flushes, path)
	if sum.HasBest {
		b := sum.Best
		fmt.Fprintf(out, "best:      %s\n", b.Schedule)
		fmt.Fprintf(out, "           conv=%s data=%s kernel=%s\n", b.ConvTime, b.DataTime, b.KernelTime)
	}
}
