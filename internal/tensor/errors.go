package tensor

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrUnsupportedDType = errors.New("unsupported data type")
)

// ShapeError reports a tensor whose shape disagrees with the workload.
type ShapeError struct {
	What string // Which tensor ("data", "kernel", "packed data", ...)
	Got  Shape
	Want Shape
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s tensor has shape %v, want %v", ErrShapeMismatch, e.What, e.Got, e.Want)
}

// Unwrap lets errors.Is match ErrShapeMismatch.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}
