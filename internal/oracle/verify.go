package oracle

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/convsearch/internal/tensor"
)

// ErrNumericalMismatch is returned when a candidate output exceeds tolerance.
var ErrNumericalMismatch = errors.New("numerical mismatch")

// Tolerance bounds the per-element error: |got - want| <= ATol + RTol*|want|.
// ATol only matters where the reference is near zero.
type Tolerance struct {
	RTol float64 `yaml:"rtol"`
	ATol float64 `yaml:"atol"`
}

// DefaultTolerance is rtol=1e-5 with a small absolute floor.
func DefaultTolerance() Tolerance {
	return Tolerance{RTol: 1e-5, ATol: 1e-6}
}

// ToleranceFor returns the default tolerance for outputs stored as dt.
// float16 storage alone costs about 1e-3 relative error.
func ToleranceFor(dt tensor.DataType) Tolerance {
	if dt == tensor.Float16 {
		return Tolerance{RTol: 1e-2, ATol: 1e-3}
	}
	return DefaultTolerance()
}

// Comparison summarizes an elementwise comparison.
type Comparison struct {
	MaxAbsError   float64
	MaxRelError   float64 // Over elements whose reference magnitude exceeds ATol
	Mismatches    int
	FirstMismatch int // Flat NCHW index, -1 when none
	Passed        bool
}

// MismatchError reports a failed comparison.
type MismatchError struct {
	Comparison Comparison
	Tolerance  Tolerance
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %d elements exceed rtol=%g atol=%g (first at %d, max abs error %g)",
		ErrNumericalMismatch, e.Comparison.Mismatches, e.Tolerance.RTol, e.Tolerance.ATol,
		e.Comparison.FirstMismatch, e.Comparison.MaxAbsError)
}

// Unwrap lets errors.Is match ErrNumericalMismatch.
func (e *MismatchError) Unwrap() error {
	return ErrNumericalMismatch
}

// Compare checks candidate against reference elementwise. A channel-blocked
// [N, C/k, H, W, k] candidate is read in place at (n, c/k, h, w, c%k).
func Compare(candidate, reference *tensor.RawTensor, tol Tolerance) (Comparison, error) {
	at, err := candidateIndex(candidate.Shape(), reference.Shape())
	if err != nil {
		return Comparison{}, err
	}

	c := Comparison{FirstMismatch: -1}
	for i := range reference.NumElements() {
		got, want := candidate.Float64At(at(i)), reference.Float64At(i)
		diff := math.Abs(got - want)
		if math.IsNaN(diff) {
			diff = math.Inf(1)
		}
		c.MaxAbsError = max(c.MaxAbsError, diff)
		if math.Abs(want) > tol.ATol {
			c.MaxRelError = max(c.MaxRelError, diff/math.Abs(want))
		}
		if diff > tol.ATol+tol.RTol*math.Abs(want) {
			if c.Mismatches == 0 {
				c.FirstMismatch = i
			}
			c.Mismatches++
		}
	}
	c.Passed = c.Mismatches == 0
	return c, nil
}

// candidateIndex maps a flat NCHW reference index to the candidate's flat index.
func candidateIndex(got, want tensor.Shape) (func(int) int, error) {
	if len(got) != 5 || len(want) != 4 {
		if err := tensor.CheckShape("candidate output", got, want); err != nil {
			return nil, err
		}
		return func(i int) int { return i }, nil
	}
	k := got[4]
	unblocked := tensor.Shape{got[0], got[1] * k, got[2], got[3]}
	if err := tensor.CheckShape("candidate output", unblocked, want); err != nil {
		return nil, err
	}
	c, hw := want[1], want[2]*want[3]
	return func(i int) int {
		n, ch, pos := i/(c*hw), (i/hw)%c, i%hw
		return ((n*(c/k)+ch/k)*hw+pos)*k + ch%k
	}, nil
}

// Verify is Compare returning a *MismatchError when any element is out of tolerance.
func Verify(candidate, reference *tensor.RawTensor, tol Tolerance) (Comparison, error) {
	c, err := Compare(candidate, reference, tol)
	if err != nil {
		return c, err
	}
	if !c.Passed {
		return c, &MismatchError{Comparison: c, Tolerance: tol}
	}
	return c, nil
}
