package search

import (
	"context"
	"fmt"

	"github.com/born-ml/convsearch/internal/oracle"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/pkg/errors"
)

// Trial failure sentinels not owned by a lower package.
var (
	ErrCompileFailure = errors.New("compile failure")
	ErrTrialTimeout   = errors.New("trial timed out")
)

// Kind classifies a failed trial.
type Kind int

// Failure kinds, in the order classify checks them.
const (
	KindTimeout Kind = iota + 1
	KindScheduleIncompatible
	KindShapeMismatch
	KindNumericalMismatch
	KindCompileFailure
)

// String returns the kind's name as used in logs.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindScheduleIncompatible:
		return "ScheduleIncompatible"
	case KindShapeMismatch:
		return "ShapeMismatch"
	case KindNumericalMismatch:
		return "NumericalMismatch"
	case KindCompileFailure:
		return "CompileFailure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// TrialError is the failure half of one trial's result. It carries the
// schedule that failed so logs can name it.
type TrialError struct {
	Kind     Kind
	Schedule schedule.Params
	Err      error
}

// Error implements the error interface.
func (e *TrialError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Schedule, e.Err)
}

// Unwrap returns the underlying error.
func (e *TrialError) Unwrap() error {
	return e.Err
}

// classify maps a stage error onto the failure taxonomy.
func classify(err error) Kind {
	switch {
	case errors.Is(err, ErrTrialTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, schedule.ErrIncompatible):
		return KindScheduleIncompatible
	case errors.Is(err, tensor.ErrShapeMismatch):
		return KindShapeMismatch
	case errors.Is(err, oracle.ErrNumericalMismatch):
		return KindNumericalMismatch
	default:
		return KindCompileFailure
	}
}
