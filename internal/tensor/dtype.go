// Package tensor provides the raw tensor storage shared by the layout, compute
// and oracle stages.
package tensor

import (
	"fmt"
	"strings"

	"github.com/x448/float16"
)

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Float16
	Float64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float16:
		return 2
	case Float64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// ParseDataType parses the names produced by String.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32", "f32", "":
		return Float32, nil
	case "float16", "f16", "half":
		return Float16, nil
	case "float64", "f64":
		return Float64, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDType, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (dt DataType) MarshalText() ([]byte, error) {
	return []byte(dt.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (dt *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

// Element is the set of Go types a RawTensor can be viewed as for data movement.
type Element interface {
	float32 | float16.Float16
}
