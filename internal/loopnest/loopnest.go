// Package loopnest is a small loop-nest IR: the explicit form of the
// parallel/vectorize/unroll annotations a schedule places on each stage.
package loopnest

import (
	"fmt"
	"strings"
)

// Kind says how the executor runs an axis.
type Kind int

// Axis kinds.
const (
	Serial Kind = iota
	Parallel
	Vectorized
	Unrolled
)

// String returns the keyword used when rendering a plan.
func (k Kind) String() string {
	switch k {
	case Serial:
		return "for"
	case Parallel:
		return "parallel"
	case Vectorized:
		return "vectorize"
	case Unrolled:
		return "unroll"
	default:
		return "unknown"
	}
}

// Axis is one loop of a nest.
type Axis struct {
	Name   string
	Extent int
	Kind   Kind
	Chunks int  // Static partition count, Parallel axes only
	Reduce bool // Reduction axis
}

// Plan is a perfectly nested loop: Axes outermost first, then Body.
type Plan struct {
	Stage string
	Axes  []Axis
	Body  string
}

// Validate checks the structural invariants the executors rely on: positive
// extents, at most one parallel axis, and no vectorized axis outside another
// vectorized or an unrolled one.
func (p Plan) Validate() error {
	parallel := 0
	seenVector := false
	for _, a := range p.Axes {
		if a.Extent <= 0 {
			return fmt.Errorf("loopnest %s: axis %s has extent %d", p.Stage, a.Name, a.Extent)
		}
		switch a.Kind {
		case Parallel:
			parallel++
			if a.Chunks <= 0 {
				return fmt.Errorf("loopnest %s: parallel axis %s has %d chunks", p.Stage, a.Name, a.Chunks)
			}
		case Vectorized:
			seenVector = true
		default:
			if seenVector {
				return fmt.Errorf("loopnest %s: axis %s nested inside a vectorized axis", p.Stage, a.Name)
			}
		}
	}
	if parallel > 1 {
		return fmt.Errorf("loopnest %s: %d parallel axes (at most 1)", p.Stage, parallel)
	}
	return nil
}

// Axis returns the named axis.
func (p Plan) Axis(name string) (Axis, bool) {
	for _, a := range p.Axes {
		if a.Name == name {
			return a, true
		}
	}
	return Axis{}, false
}

// Order returns the axis names outermost first.
func (p Plan) Order() []string {
	names := make([]string, len(p.Axes))
	for i, a := range p.Axes {
		names[i] = a.Name
	}
	return names
}

// ReductionOrder returns only the reduction axis names, outermost first.
func (p Plan) ReductionOrder() []string {
	var names []string
	for _, a := range p.Axes {
		if a.Reduce {
			names = append(names, a.Name)
		}
	}
	return names
}

// Iterations is the product of all extents.
func (p Plan) Iterations() int64 {
	n := int64(1)
	for _, a := range p.Axes {
		n *= int64(a.Extent)
	}
	return n
}

// String renders the nest as indented pseudo-code.
func (p Plan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", p.Stage)
	indent := "  "
	for _, a := range p.Axes {
		fmt.Fprintf(&sb, "%s%s %s in [0, %d)", indent, a.Kind, a.Name, a.Extent)
		if a.Kind == Parallel {
			fmt.Fprintf(&sb, " chunks=%d", a.Chunks)
		}
		if a.Reduce {
			sb.WriteString(" reduce")
		}
		sb.WriteByte('\n')
		indent += "  "
	}
	if p.Body != "" {
		fmt.Fprintf(&sb, "%s%s\n", indent, p.Body)
	}
	return sb.String()
}
