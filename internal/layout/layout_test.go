package layout

import (
	"context"
	"testing"

	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func smallWorkload() workload.Descriptor {
	return workload.Square(2, 8, 12, 6, 3, 1, 1)
}

func smallSchedule() schedule.Params {
	return schedule.Params{VecH: 3, VecW: 6, VecC: 2, ICBlock: 4, OCBlock: 6, BatchSplitH: 3, BatchSplitC: 2}
}

func configs() map[string]parallel.Config {
	return map[string]parallel.Config{
		"sequential": parallel.Sequential(),
		"parallel":   {Enabled: true, NumWorkers: 4, MinChunkSize: 1},
	}
}

func TestPackData_Gather(t *testing.T) {
	w, s := smallWorkload(), smallSchedule()
	data, err := tensor.NewUniform(w.DataShape(), tensor.Float32, 1)
	require.NoError(t, err)

	for name, cfg := range configs() {
		t.Run(name, func(t *testing.T) {
			packed, err := PackData(ctx, w, s, data, cfg)
			require.NoError(t, err)
			require.Equal(t, tensor.Shape{2, 2, 8, 8, 4}, packed.Shape())

			src, dst := data.AsFloat32(), packed.AsFloat32()
			th, tw := w.PaddedHeight(), w.PaddedWidth()
			for n := 0; n < 2; n++ {
				for c := 0; c < 8; c++ {
					for h := 0; h < th; h++ {
						for x := 0; x < tw; x++ {
							got := dst[((((n*2+c/4)*th+h)*tw+x)*4)+c%4]
							y, xx := h-1, x-1
							want := float32(0)
							if y >= 0 && y < 6 && xx >= 0 && xx < 6 {
								want = src[((n*8+c)*6+y)*6+xx]
							}
							require.Equal(t, want, got, "n=%d c=%d h=%d w=%d", n, c, h, x)
						}
					}
				}
			}
		})
	}
}

func TestPackData_RoundTrip(t *testing.T) {
	for _, dt := range []tensor.DataType{tensor.Float32, tensor.Float16} {
		for _, pad := range []int{0, 1, 2} {
			w := workload.Square(1, 8, 4, 7, 3, 1, pad)
			w.DType = dt
			s := schedule.Params{VecH: 1, VecW: w.OutWidth(), VecC: 2, ICBlock: 2, OCBlock: 4, BatchSplitH: 4}

			data, err := tensor.NewUniform(w.DataShape(), dt, uint64(pad))
			require.NoError(t, err)

			packed, err := PackData(ctx, w, s, data, parallel.DefaultConfig())
			require.NoError(t, err)
			back, err := UnpackData(ctx, w, s, packed, parallel.DefaultConfig())
			require.NoError(t, err)
			assert.True(t, back.Equal(data), "dtype=%s pad=%d", dt, pad)
		}
	}
}

func TestPackData_NoPaddingMatchesDirectPacking(t *testing.T) {
	w := workload.Square(1, 8, 4, 6, 3, 1, 0)
	s := schedule.Params{VecH: 2, VecW: 4, VecC: 4, ICBlock: 4, OCBlock: 4}
	data, err := tensor.NewUniform(w.DataShape(), tensor.Float32, 3)
	require.NoError(t, err)

	padded, err := Pad(ctx, w, data, parallel.DefaultConfig())
	require.NoError(t, err)
	assert.Same(t, data, padded, "no separate padding stage when both pads are zero")

	packed, err := PackData(ctx, w, s, data, parallel.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 6, 6, 4}, packed.Shape())

	src, dst := data.AsFloat32(), packed.AsFloat32()
	for c := 0; c < 8; c++ {
		for i := 0; i < 36; i++ {
			assert.Equal(t, src[c*36+i], dst[(c/4)*36*4+i*4+c%4])
		}
	}
}

func TestPackData_SinglePadAxis(t *testing.T) {
	w := workload.Square(1, 4, 4, 6, 3, 1, 0)
	w.PadH = 1
	w.KernelW = 1

	data, err := tensor.NewUniform(w.DataShape(), tensor.Float32, 5)
	require.NoError(t, err)
	padded, err := Pad(ctx, w, data, parallel.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4, 8, 6}, padded.Shape())
}

func TestPackData_BlockedInput(t *testing.T) {
	w, s := smallWorkload(), smallSchedule()
	data, err := tensor.NewUniform(w.DataShape(), tensor.Float32, 9)
	require.NoError(t, err)

	// Pre-block the input as NCHW8c, then pack to ic_bn=4.
	blocked8 := schedule.Params{VecH: 1, VecW: 4, VecC: 2, ICBlock: 8, OCBlock: 6}
	pre, err := PackData(ctx, workload.Square(2, 8, 12, 6, 3, 1, 0), blocked8, data, parallel.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, 1, 6, 6, 8}, pre.Shape())

	fromBlocked, err := PackData(ctx, w, s, pre, parallel.DefaultConfig())
	require.NoError(t, err)
	fromPlain, err := PackData(ctx, w, s, data, parallel.DefaultConfig())
	require.NoError(t, err)
	assert.True(t, fromBlocked.Equal(fromPlain))
}

func TestPackData_Errors(t *testing.T) {
	w, s := smallWorkload(), smallSchedule()

	wrong, err := tensor.NewRaw(tensor.Shape{2, 8, 6, 5}, tensor.Float32)
	require.NoError(t, err)
	_, err = PackData(ctx, w, s, wrong, parallel.DefaultConfig())
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	good, err := tensor.NewRaw(w.DataShape(), tensor.Float32)
	require.NoError(t, err)
	bad := s
	bad.ICBlock = 3
	_, err = PackData(ctx, w, bad, good, parallel.DefaultConfig())
	assert.ErrorIs(t, err, schedule.ErrIncompatible)

	half, err := tensor.NewRaw(w.DataShape(), tensor.Float16)
	require.NoError(t, err)
	_, err = PackData(ctx, w, s, half, parallel.DefaultConfig())
	assert.ErrorIs(t, err, tensor.ErrUnsupportedDType)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = PackData(cancelled, w, s, good, parallel.DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPackKernel_GatherAndRoundTrip(t *testing.T) {
	w, s := smallWorkload(), smallSchedule()
	kernel, err := tensor.NewUniform(w.KernelShape(), tensor.Float32, 2)
	require.NoError(t, err)

	for name, cfg := range configs() {
		t.Run(name, func(t *testing.T) {
			packed, err := PackKernel(ctx, w, s, kernel, cfg)
			require.NoError(t, err)
			require.Equal(t, tensor.Shape{2, 2, 3, 3, 4, 6}, packed.Shape())

			src, dst := kernel.AsFloat32(), packed.AsFloat32()
			for oc := 0; oc < 12; oc++ {
				for ic := 0; ic < 8; ic++ {
					for y := 0; y < 3; y++ {
						for x := 0; x < 3; x++ {
							got := dst[(((((oc/6)*2+ic/4)*3+y)*3+x)*4+ic%4)*6+oc%6]
							require.Equal(t, src[((oc*8+ic)*3+y)*3+x], got)
						}
					}
				}
			}

			back, err := UnpackKernel(ctx, w, s, packed, cfg)
			require.NoError(t, err)
			assert.True(t, back.Equal(kernel))
		})
	}
}

func TestPackKernel_ShapeMismatch(t *testing.T) {
	w, s := smallWorkload(), smallSchedule()
	kernel, err := tensor.NewRaw(tensor.Shape{12, 8, 3, 2}, tensor.Float32)
	require.NoError(t, err)
	_, err = PackKernel(ctx, w, s, kernel, parallel.DefaultConfig())
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestReblock(t *testing.T) {
	src, err := tensor.NewUniform(tensor.Shape{2, 3, 2, 5, 4}, tensor.Float32, 4)
	require.NoError(t, err)

	plain, err := Reblock(ctx, src, 0, 3, parallel.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 12, 2, 5}, plain.Shape())

	s, d := src.AsFloat32(), plain.AsFloat32()
	for n := 0; n < 2; n++ {
		for c := 0; c < 12; c++ {
			for pos := 0; pos < 10; pos++ {
				assert.Equal(t, s[((n*3+c/4)*10+pos)*4+c%4], d[(n*12+c)*10+pos])
			}
		}
	}

	by6, err := Reblock(ctx, src, 6, 2, parallel.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2, 2, 5, 6}, by6.Shape())
	back, err := Reblock(ctx, by6, 4, 2, parallel.DefaultConfig())
	require.NoError(t, err)
	assert.True(t, back.Equal(src))

	_, err = Reblock(ctx, src, 5, 1, parallel.DefaultConfig())
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestPlans(t *testing.T) {
	w, s := smallWorkload(), smallSchedule()

	plans := DataPlans(w, s, 4)
	require.Len(t, plans, 2)
	assert.Equal(t, "data_pad", plans[0].Stage)
	assert.Equal(t, "data_vec", plans[1].Stage)
	for _, p := range plans {
		require.NoError(t, p.Validate())
	}
	a, ok := plans[1].Axis("n.ic_chunk.h")
	require.True(t, ok)
	assert.Equal(t, 3, a.Chunks)
	assert.Equal(t, 2*2*8, a.Extent)

	noPad := workload.Square(1, 8, 12, 8, 3, 1, 0)
	assert.Len(t, DataPlans(noPad, s, 4), 1)

	kp := KernelPlan(w, s)
	require.NoError(t, kp.Validate())
	assert.Equal(t, []string{"oc_chunk", "ic_chunk", "kh", "kw", "ic_block", "oc_block"}, kp.Order())
}

func spatialSchedule(vh, vw, vc int) schedule.Params {
	return schedule.Params{VecH: vh, VecW: vw, VecC: vc, BatchSplitH: 2, BatchSplitC: 2, Template: schedule.TemplateSpatial}
}

func TestPackData_SpatialWindows(t *testing.T) {
	w := workload.Square(2, 3, 4, 6, 3, 1, 1)
	s := spatialSchedule(2, 3, 2)
	data, err := tensor.NewUniform(w.DataShape(), tensor.Float32, 6)
	require.NoError(t, err)

	for name, cfg := range configs() {
		t.Run(name, func(t *testing.T) {
			packed, err := PackData(ctx, w, s, data, cfg)
			require.NoError(t, err)
			require.Equal(t, tensor.Shape{2, 3, 2, 3, 4, 5}, packed.Shape())
			assert.Equal(t, PackedDataShape(w, s), packed.Shape())

			src, dst := data.AsFloat32(), packed.AsFloat32()
			for n := 0; n < 2; n++ {
				for th := 0; th < 3; th++ {
					for tw := 0; tw < 2; tw++ {
						for c := 0; c < 3; c++ {
							for vh := 0; vh < 4; vh++ {
								for vw := 0; vw < 5; vw++ {
									got := dst[((((n*3+th)*2+tw)*3+c)*4+vh)*5+vw]
									y, x := th*2+vh-1, tw*3+vw-1
									want := float32(0)
									if y >= 0 && y < 6 && x >= 0 && x < 6 {
										want = src[((n*3+c)*6+y)*6+x]
									}
									require.Equal(t, want, got, "n=%d th=%d tw=%d c=%d vh=%d vw=%d", n, th, tw, c, vh, vw)
								}
							}
						}
					}
				}
			}

			back, err := UnpackData(ctx, w, s, packed, cfg)
			require.NoError(t, err)
			assert.True(t, back.Equal(data))
		})
	}
}

func TestPackData_SpatialStrided(t *testing.T) {
	// 1x1 stride-2 kernel: windows hold only the rows and columns it reads.
	w := workload.Square(1, 2, 2, 7, 1, 2, 0)
	s := spatialSchedule(2, 4, 2)
	data, err := tensor.NewUniform(w.DataShape(), tensor.Float32, 8)
	require.NoError(t, err)

	packed, err := PackData(ctx, w, s, data, parallel.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 1, 2, 3, 7}, packed.Shape())

	_, err = UnpackData(ctx, w, s, packed, parallel.DefaultConfig())
	assert.ErrorIs(t, err, schedule.ErrIncompatible)

	blocked, err := tensor.NewRaw(tensor.Shape{1, 1, 7, 7, 2}, tensor.Float32)
	require.NoError(t, err)
	_, err = PackData(ctx, w, s, blocked, parallel.DefaultConfig())
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch, "spatial packing takes NCHW input only")
}

func TestPackKernel_Spatial(t *testing.T) {
	w := workload.Square(1, 3, 8, 6, 3, 1, 1)
	s := spatialSchedule(1, 6, 4)
	kernel, err := tensor.NewUniform(w.KernelShape(), tensor.Float32, 4)
	require.NoError(t, err)

	for name, cfg := range configs() {
		t.Run(name, func(t *testing.T) {
			packed, err := PackKernel(ctx, w, s, kernel, cfg)
			require.NoError(t, err)
			require.Equal(t, tensor.Shape{2, 3, 3, 3, 4}, packed.Shape())

			src, dst := kernel.AsFloat32(), packed.AsFloat32()
			for oc := 0; oc < 8; oc++ {
				for ic := 0; ic < 3; ic++ {
					for y := 0; y < 3; y++ {
						for x := 0; x < 3; x++ {
							got := dst[((((oc/4)*3+ic)*3+y)*3+x)*4+oc%4]
							require.Equal(t, src[((oc*3+ic)*3+y)*3+x], got)
						}
					}
				}
			}

			back, err := UnpackKernel(ctx, w, s, packed, cfg)
			require.NoError(t, err)
			assert.True(t, back.Equal(kernel))
		})
	}
}

func TestPlans_Spatial(t *testing.T) {
	w := workload.Square(1, 3, 8, 6, 3, 1, 1)
	s := spatialSchedule(2, 3, 4)

	plans := DataPlans(w, s, 4)
	require.Len(t, plans, 2)
	vec := plans[1]
	require.NoError(t, vec.Validate())
	assert.Equal(t, []string{"n.tile_h", "tile_w", "ci", "vh", "vw"}, vec.Order())
	a, ok := vec.Axis("n.tile_h")
	require.True(t, ok)
	assert.Equal(t, 3, a.Extent)
	assert.Equal(t, 2, a.Chunks)
	assert.Equal(t, int64(PackedDataShape(w, s).NumElements()), vec.Iterations())

	kp := KernelPlan(w, s)
	require.NoError(t, kp.Validate())
	assert.Equal(t, int64(w.KernelShape().NumElements()), kp.Iterations())
}
