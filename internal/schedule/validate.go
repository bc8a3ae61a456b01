package schedule

import (
	"errors"
	"fmt"

	"github.com/born-ml/convsearch/internal/workload"
)

// ErrIncompatible marks a schedule that cannot be applied to a workload.
var ErrIncompatible = errors.New("schedule incompatible")

// IncompatibleError names the parameter that failed and the dimension it must divide.
type IncompatibleError struct {
	Param    string // Schedule field, e.g. "ic_bn"
	Value    int
	Dim      string // Target dimension, e.g. "in_channels"
	DimValue int
}

// Error implements the error interface.
func (e *IncompatibleError) Error() string {
	if e.Dim == "" {
		return fmt.Sprintf("%s: %s=%d must be positive", ErrIncompatible, e.Param, e.Value)
	}
	return fmt.Sprintf("%s: %s=%d does not divide %s=%d", ErrIncompatible, e.Param, e.Value, e.Dim, e.DimValue)
}

// Unwrap lets errors.Is match ErrIncompatible.
func (e *IncompatibleError) Unwrap() error {
	return ErrIncompatible
}

// Validate rejects p for w unless every block and tile size evenly divides its
// target dimension. It never adjusts p. Unset fields are checked with their
// Normalize defaults.
func (p Params) Validate(w workload.Descriptor) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatible, err)
	}
	p = p.Normalize()
	switch p.Template {
	case "":
		return p.validateBlocked(w)
	case TemplateSpatial:
		return p.validateSpatial(w)
	default:
		return fmt.Errorf("%w: unknown template %q", ErrIncompatible, p.Template)
	}
}

type field struct {
	name string
	v    int
}

func checkPositive(fields []field) error {
	for _, f := range fields {
		if f.v <= 0 {
			return &IncompatibleError{Param: f.name, Value: f.v}
		}
	}
	return nil
}

func checkDivides(divides []IncompatibleError) error {
	for _, d := range divides {
		if d.DimValue%d.Value != 0 {
			return &d
		}
	}
	return nil
}

func (p Params) validateBlocked(w workload.Descriptor) error {
	err := checkPositive([]field{
		{"vec_h", p.VecH},
		{"vec_w", p.VecW},
		{"vec_c", p.VecC},
		{"ic_bn", p.ICBlock},
		{"oc_bn", p.OCBlock},
		{"reg_n", p.RegisterTileWidth},
		{"ba", p.BatchSplitH},
		{"bc", p.BatchSplitC},
	})
	if err != nil {
		return err
	}
	err = checkDivides([]IncompatibleError{
		{"ic_bn", p.ICBlock, "in_channels", w.InChannels},
		{"oc_bn", p.OCBlock, "out_channels", w.OutChannels},
		{"vec_c", p.VecC, "oc_bn", p.OCBlock},
		{"vec_h", p.VecH, "out_height", w.OutHeight()},
		{"vec_w", p.VecW, "out_width", w.OutWidth()},
		{"reg_n", p.RegisterTileWidth, "vec_w", p.VecW},
	})
	if err != nil {
		return err
	}

	block, err := p.OutputBlock()
	if err != nil {
		return err
	}
	if block > 0 && w.OutChannels%block != 0 {
		return &IncompatibleError{Param: "layout_out", Value: block, Dim: "out_channels", DimValue: w.OutChannels}
	}
	return nil
}

// validateSpatial checks the output tile (vec_h x vec_w) and the channel
// group vec_c. The spatial template always unpacks to NCHW.
func (p Params) validateSpatial(w workload.Descriptor) error {
	err := checkPositive([]field{
		{"vec_h", p.VecH},
		{"vec_w", p.VecW},
		{"vec_c", p.VecC},
		{"ba", p.BatchSplitH},
		{"bc", p.BatchSplitC},
	})
	if err != nil {
		return err
	}
	return checkDivides([]IncompatibleError{
		{"vec_h", p.VecH, "out_height", w.OutHeight()},
		{"vec_w", p.VecW, "out_width", w.OutWidth()},
		{"vec_c", p.VecC, "out_channels", w.OutChannels},
	})
}
