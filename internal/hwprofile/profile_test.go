package hwprofile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	p := Detect()

	assert.Equal(t, "detected", p.Name)
	assert.GreaterOrEqual(t, p.VectorBits, 64)
	assert.Positive(t, p.L1D)
	assert.Positive(t, p.L2)
	assert.Positive(t, p.CacheLine)
	assert.Positive(t, p.LogicalCores)
	assert.GreaterOrEqual(t, p.Float32Lanes(), 2)
}

func TestLookup(t *testing.T) {
	for _, name := range TargetNames() {
		p, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
	}

	avx512, err := Lookup("skylake-avx512")
	require.NoError(t, err)
	assert.Equal(t, 16, avx512.Float32Lanes())
	assert.Equal(t, 32, avx512.Lanes(2))

	auto, err := Lookup("auto")
	require.NoError(t, err)
	assert.Equal(t, "detected", auto.Name)

	_, err = Lookup("pentium4")
	assert.Error(t, err)
}

func TestLanes_Degenerate(t *testing.T) {
	p := Profile{VectorBits: 16}
	assert.Equal(t, 1, p.Lanes(4))
	assert.Equal(t, 1, p.Lanes(0))
}

func TestString(t *testing.T) {
	p, err := Lookup("core-avx2")
	require.NoError(t, err)
	assert.Contains(t, p.String(), "256-bit")
}
