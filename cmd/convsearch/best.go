package main

import (
	"fmt"

	"github.com/born-ml/convsearch/internal/report"
)

func runBest(args []string) error {
	fs := newFlagSet("best")
	path := fs.String("report", report.DefaultPath, "report file to read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := report.ReadFile(*path)
	if err != nil {
		return err
	}
	best, ok := report.Best(entries)
	if !ok {
		return fmt.Errorf("%s has no entries", *path)
	}
	fmt.Printf("%d entries in %s, fastest:\n", len(entries), *path)
	fmt.Println(best.Format())
	return nil
}
