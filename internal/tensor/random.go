package tensor

import "math/rand/v2"

// NewUniform returns a tensor filled with values drawn uniformly from [0, 1)
// by a PCG generator seeded with seed. The same seed always yields the same tensor.
func NewUniform(shape Shape, dtype DataType, seed uint64) (*RawTensor, error) {
	t, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range t.NumElements() {
		t.SetFloat64(i, rng.Float64())
	}
	return t, nil
}
