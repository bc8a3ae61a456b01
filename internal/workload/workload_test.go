package workload

import (
	"testing"

	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_OutputSize(t *testing.T) {
	tests := []struct {
		name       string
		d          Descriptor
		outH, outW int
	}{
		{"resnet 3x3 same", Square(1, 64, 64, 56, 3, 1, 1), 56, 56},
		{"valid no pad", Square(1, 8, 8, 10, 3, 1, 0), 8, 8},
		{"stride 2", Square(1, 8, 8, 9, 3, 2, 0), 4, 4},
		{"1x1", Square(2, 4, 16, 7, 1, 1, 0), 7, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.d.Validate())
			assert.Equal(t, tt.outH, tt.d.OutHeight())
			assert.Equal(t, tt.outW, tt.d.OutWidth())
			assert.Equal(t, tensor.Shape{tt.d.Batch, tt.d.OutChannels, tt.outH, tt.outW}, tt.d.OutputShape())
		})
	}
}

func TestDescriptor_ValidateRejects(t *testing.T) {
	uneven := Square(1, 8, 8, 56, 3, 2, 1)
	negPad := Square(1, 8, 8, 8, 3, 1, 0)
	negPad.PadW = -1
	tooBig := Square(1, 8, 8, 2, 5, 1, 0)
	zeroCh := Square(1, 0, 8, 8, 3, 1, 1)
	f64 := Square(1, 8, 8, 8, 3, 1, 1)
	f64.DType = tensor.Float64

	for name, d := range map[string]Descriptor{
		"uneven stride":  uneven,
		"negative pad":   negPad,
		"kernel > input": tooBig,
		"zero channels":  zeroCh,
		"float64":        f64,
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, d.Validate(), ErrInvalid)
		})
	}
}

func TestDescriptor_HasPadding(t *testing.T) {
	d := Square(1, 4, 4, 8, 3, 1, 0)
	assert.False(t, d.HasPadding())

	d.PadH = 1
	assert.True(t, d.HasPadding(), "a single nonzero pad still pads")
	assert.Equal(t, tensor.Shape{1, 4, 10, 8}, d.PaddedDataShape())
}

func TestDescriptor_MACs(t *testing.T) {
	d := Square(1, 64, 64, 56, 3, 1, 1)
	assert.Equal(t, int64(64*64*56*56*9), d.MACs())
}

func TestPresets(t *testing.T) {
	names := PresetNames()
	require.NotEmpty(t, names)
	for _, name := range names {
		d, err := Preset(name)
		require.NoError(t, err)
		assert.NoError(t, d.Validate(), name)
	}

	_, err := Preset("vgg16-conv1")
	assert.ErrorIs(t, err, ErrInvalid)
}
