package report

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/samber/lo"
)

// ErrMalformedLine is returned for report lines that do not parse.
var ErrMalformedLine = errors.New("malformed report line")

// Entry is one report line: a schedule and its mean stage times.
type Entry struct {
	Schedule schedule.Params
	Conv     time.Duration
	Data     time.Duration
	Kernel   time.Duration
}

// Format renders e as a report line without the trailing newline.
func (e Entry) Format() string {
	return fmt.Sprintf("%s\tconv=%.9f\tdata=%.9f\tkernel=%.9f",
		e.Schedule, e.Conv.Seconds(), e.Data.Seconds(), e.Kernel.Seconds())
}

// Parse reads one report line. A trailing newline is ignored.
func Parse(line string) (Entry, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("%w: want 4 tab-separated fields, got %d", ErrMalformedLine, len(fields))
	}

	s, err := schedule.Parse(fields[0])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrMalformedLine, err)
	}
	e := Entry{Schedule: s}

	targets := []struct {
		key string
		dst *time.Duration
	}{
		{"conv", &e.Conv},
		{"data", &e.Data},
		{"kernel", &e.Kernel},
	}
	for i, tgt := range targets {
		key, value, ok := strings.Cut(fields[i+1], "=")
		if !ok || key != tgt.key {
			return Entry{}, fmt.Errorf("%w: field %d: want %s=<seconds>, got %q", ErrMalformedLine, i+2, tgt.key, fields[i+1])
		}
		secs, err := strconv.ParseFloat(value, 64)
		if err != nil || secs < 0 {
			return Entry{}, fmt.Errorf("%w: field %s: bad duration %q", ErrMalformedLine, key, value)
		}
		*tgt.dst = time.Duration(math.Round(secs * float64(time.Second)))
	}
	return e, nil
}

// Best returns the entry with the smallest conv time. The first of equal
// entries wins. It reports false for an empty slice.
func Best(entries []Entry) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}
	return lo.MinBy(entries, func(a, b Entry) bool { return a.Conv < b.Conv }), true
}
