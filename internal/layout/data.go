package layout

import (
	"context"
	"fmt"

	"github.com/born-ml/convsearch/internal/parallel"
	"github.com/born-ml/convsearch/internal/schedule"
	"github.com/born-ml/convsearch/internal/tensor"
	"github.com/born-ml/convsearch/internal/workload"
)

// PackedDataShape is [N, C_in/ic_bn, H + 2*pad_h, W + 2*pad_w, ic_bn], or
// [N, H_out/vec_h, W_out/vec_w, C_in, window_h, window_w] under the spatial
// template.
func PackedDataShape(w workload.Descriptor, s schedule.Params) tensor.Shape {
	if s.Spatial() {
		return spatialDataShape(w, s)
	}
	return tensor.Shape{w.Batch, w.InChannels / s.ICBlock, w.PaddedHeight(), w.PaddedWidth(), s.ICBlock}
}

// inputBlock returns the channel block of a raw data tensor: 0 for NCHW input,
// k for an already blocked [N, C/k, H, W, k] input.
func inputBlock(w workload.Descriptor, raw *tensor.RawTensor) (int, error) {
	shape := raw.Shape()
	if len(shape) == 5 {
		k := shape[4]
		if k > 0 && w.InChannels%k == 0 {
			want := tensor.Shape{w.Batch, w.InChannels / k, w.InHeight, w.InWidth, k}
			return k, tensor.CheckShape("data", shape, want)
		}
	}
	return 0, tensor.CheckShape("data", shape, w.DataShape())
}

func checkDType(what string, w workload.Descriptor, t *tensor.RawTensor) error {
	if t.DType() != w.DType {
		return fmt.Errorf("%w: %s tensor is %s, workload is %s", tensor.ErrUnsupportedDType, what, t.DType(), w.DType)
	}
	return nil
}

// PackData repacks raw data into [N, C_in/ic_bn, TH, TW, ic_bn] where element
// (n, chunk, h, w, block) is the padded source at channel chunk*ic_bn + block.
//
// raw is NCHW or an already blocked NCHW<k>c tensor. Rows of the fused
// (n, chunk, h) axis are split into s.BatchSplitH static chunks; the call
// returns once every chunk is done. A spatial schedule takes NCHW input only
// and packs it into per-tile windows instead.
func PackData(ctx context.Context, w workload.Descriptor, s schedule.Params, raw *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	s = s.Normalize()
	if err := s.Validate(w); err != nil {
		return nil, err
	}
	if s.Spatial() {
		return packSpatialData(ctx, w, s, raw, cfg)
	}
	srcBlock, err := inputBlock(w, raw)
	if err != nil {
		return nil, err
	}
	if err := checkDType("data", w, raw); err != nil {
		return nil, err
	}

	padded, err := Pad(ctx, w, raw, cfg)
	if err != nil {
		return nil, err
	}
	packed, err := tensor.NewRaw(PackedDataShape(w, s), w.DType)
	if err != nil {
		return nil, fmt.Errorf("pack data: %w", err)
	}

	g := dataGeom{
		cin:      w.InChannels,
		th:       w.PaddedHeight(),
		tw:       w.PaddedWidth(),
		bn:       s.ICBlock,
		chunks:   w.InChannels / s.ICBlock,
		srcBlock: srcBlock,
	}
	rows := w.Batch * g.chunks * g.th
	err = parallel.ForChunks(ctx, rows, s.BatchSplitH, cfg, func(ctx context.Context, r parallel.Range) error {
		switch w.DType {
		case tensor.Float32:
			return packDataRows(ctx, packed.AsFloat32(), padded.AsFloat32(), g, r)
		default:
			return packDataRows(ctx, packed.AsFloat16(), padded.AsFloat16(), g, r)
		}
	})
	if err != nil {
		return nil, err
	}
	return packed, nil
}

type dataGeom struct {
	cin, th, tw int
	bn, chunks  int
	srcBlock    int // 0: NCHW source, k: NCHW<k>c source
}

// srcIndex is the flat offset of (n, channel, h, x) in the padded source.
func (g dataGeom) srcIndex(n, channel, h, x int) int {
	if g.srcBlock == 0 {
		return ((n*g.cin+channel)*g.th+h)*g.tw + x
	}
	k := g.srcBlock
	return (((n*(g.cin/k)+channel/k)*g.th+h)*g.tw+x)*k + channel%k
}

// packDataRows fills packed rows [r.Start, r.End) of the fused (n, chunk, h) axis.
func packDataRows[T tensor.Element](ctx context.Context, dst, src []T, g dataGeom, r parallel.Range) error {
	for row := r.Start; row < r.End; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := row % g.th
		chunk := (row / g.th) % g.chunks
		n := row / (g.th * g.chunks)

		out := dst[row*g.tw*g.bn : (row+1)*g.tw*g.bn]
		for x := 0; x < g.tw; x++ {
			vec := out[x*g.bn : (x+1)*g.bn]
			for b := range vec {
				vec[b] = src[g.srcIndex(n, chunk*g.bn+b, h, x)]
			}
		}
	}
	return nil
}

// UnpackData inverts PackData for an NCHW source: it returns the
// [N, C_in, H, W] tensor with the padding border dropped.
func UnpackData(ctx context.Context, w workload.Descriptor, s schedule.Params, packed *tensor.RawTensor, cfg parallel.Config) (*tensor.RawTensor, error) {
	s = s.Normalize()
	if s.Spatial() {
		return unpackSpatialData(ctx, w, s, packed, cfg)
	}
	if err := tensor.CheckShape("packed data", packed.Shape(), PackedDataShape(w, s)); err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(w.DataShape(), packed.DType())
	if err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}

	chunks, bn := w.InChannels/s.ICBlock, s.ICBlock
	th, tw := w.PaddedHeight(), w.PaddedWidth()
	planes := w.Batch * w.InChannels
	err = parallel.ForChunks(ctx, planes, s.BatchSplitH, cfg, func(ctx context.Context, r parallel.Range) error {
		for p := r.Start; p < r.End; p++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, c := p/w.InChannels, p%w.InChannels
			for y := 0; y < w.InHeight; y++ {
				for x := 0; x < w.InWidth; x++ {
					src := ((((n*chunks+c/bn)*th+y+w.PadH)*tw + x + w.PadW) * bn) + c%bn
					dst := (p*w.InHeight+y)*w.InWidth + x
					copyElem(out, packed, dst, src)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// copyElem copies one element between same-dtype tensors without conversion.
func copyElem(dst, src *tensor.RawTensor, di, si int) {
	size := src.DType().Size()
	copy(dst.Data()[di*size:(di+1)*size], src.Data()[si*size:(si+1)*size])
}
