package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultPath is where the search writes its report unless configured otherwise.
const DefaultPath = "report/conv_search.txt"

// Writer appends entries to a report. It is used from the single search
// driver goroutine and does no locking.
type Writer struct {
	w      io.Writer
	file   *os.File
	lines  int
	closed bool
}

// NewWriter appends report lines to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Open opens path for appending, creating it and its directory if needed.
// Existing lines are kept.
func Open(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	//nolint:gosec // G304: report path is operator supplied
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	return &Writer{w: file, file: file}, nil
}

// Append writes e as one line. File-backed writers sync after every line so a
// killed search keeps everything it flushed.
func (w *Writer) Append(e Entry) error {
	if w.closed {
		return fmt.Errorf("report writer is closed")
	}
	if _, err := io.WriteString(w.w, e.Format()+"\n"); err != nil {
		return fmt.Errorf("failed to write report line: %w", err)
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync report: %w", err)
		}
	}
	w.lines++
	return nil
}

// Lines returns how many lines this writer has appended.
func (w *Writer) Lines() int {
	return w.lines
}

// Close closes the underlying file, if any.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// ReadAll parses every non-empty line of r.
func ReadAll(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()
		if line == "" {
			continue
		}
		e, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return entries, nil
}

// ReadFile parses the report at path.
func ReadFile(path string) ([]Entry, error) {
	//nolint:gosec // G304: report path is operator supplied
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()
	return ReadAll(f)
}
