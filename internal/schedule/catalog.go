package schedule

import (
	"fmt"
	"math/bits"
	"math/rand/v2"
	"sort"

	"github.com/born-ml/convsearch/internal/hwprofile"
	"github.com/born-ml/convsearch/internal/workload"
	"github.com/samber/lo"
)

// Catalog is the discrete set of values each schedule field is sampled from.
type Catalog struct {
	VecH         []int
	VecW         []int
	VecC         []int
	ICBlock      []int
	OCBlock      []int
	RegisterTile []int
	SplitH       []int
	SplitC       []int
	Unroll       []bool
	UnrollKW     []bool
	Layouts      []string
	Templates    []string
}

// Reference candidate sets, hand-picked for a 56x56, 64-channel workload.
var (
	referenceSpatial = []int{1, 7, 14, 28, 56}
	referenceChannel = []int{1, 2, 4, 8, 16, 32, 64}
)

// Reference returns the fixed catalog: spatial fields from {1,7,14,28,56},
// channel and split fields from {1,2,...,64}.
func Reference() Catalog {
	return Catalog{
		VecH:         referenceSpatial,
		VecW:         referenceSpatial,
		VecC:         referenceChannel,
		ICBlock:      referenceChannel,
		OCBlock:      referenceChannel,
		RegisterTile: referenceSpatial,
		SplitH:       referenceChannel,
		SplitC:       referenceChannel,
		Unroll:       []bool{false, true},
		UnrollKW:     []bool{false, true},
		Layouts:      []string{LayoutNCHW},
		Templates:    []string{TemplateBlocked, TemplateSpatial},
	}
}

// Limits bounding the derived catalog.
const (
	maxChannelBlock = 64
	maxRegisterTile = 32
)

// ForWorkload derives a catalog from the workload's divisors and the target's
// vector width and core count. Every single-field value divides its dimension,
// so only cross-field constraints (vec_c | oc_bn, reg_n | vec_w) can still fail
// validation.
func ForWorkload(w workload.Descriptor, hw hwprofile.Profile) (Catalog, error) {
	if err := w.Validate(); err != nil {
		return Catalog{}, err
	}
	lanes := hw.Float32Lanes()

	channelBlocks := func(c int) []int {
		return lo.Filter(divisors(c), func(d int, _ int) bool {
			return d <= maxChannelBlock && (isPowerOfTwo(d) || d == c)
		})
	}
	ocBlocks := channelBlocks(w.OutChannels)
	vecC := lo.Filter(divisors(w.OutChannels), func(d int, _ int) bool {
		return isPowerOfTwo(d) && d <= 2*lanes
	})
	splits := lo.Filter(powersOfTwo(max(hw.LogicalCores, 1)), func(d int, _ int) bool {
		return d <= maxChannelBlock
	})
	regTiles := lo.Filter(divisors(w.OutWidth()), func(d int, _ int) bool {
		return d <= maxRegisterTile
	})

	layouts := []string{LayoutNCHW}
	for _, k := range ocBlocks {
		if k == lanes || k == 2*lanes {
			layouts = append(layouts, fmt.Sprintf("NCHW%dc", k))
		}
	}

	unrollKW := []bool{false}
	if w.KernelW > 1 {
		unrollKW = []bool{false, true}
	}

	return Catalog{
		VecH:         divisors(w.OutHeight()),
		VecW:         divisors(w.OutWidth()),
		VecC:         vecC,
		ICBlock:      channelBlocks(w.InChannels),
		OCBlock:      ocBlocks,
		RegisterTile: regTiles,
		SplitH:       splits,
		SplitC:       splits,
		Unroll:       []bool{false, true},
		UnrollKW:     unrollKW,
		Layouts:      lo.Uniq(layouts),
		Templates:    []string{TemplateBlocked, TemplateSpatial},
	}, nil
}

// Size is the number of distinct parameter combinations in the catalog.
func (c Catalog) Size() int {
	n := 1
	for _, l := range []int{
		len(c.VecH), len(c.VecW), len(c.VecC), len(c.ICBlock), len(c.OCBlock),
		len(c.RegisterTile), len(c.SplitH), len(c.SplitC), len(c.Unroll), len(c.UnrollKW), len(c.Layouts), len(c.Templates),
	} {
		n *= max(l, 1)
	}
	return n
}

// Sampler proposes candidate schedules.
type Sampler interface {
	Next() Params
}

// RandomSampler draws every field independently and uniformly from a Catalog.
type RandomSampler struct {
	catalog Catalog
	rng     *rand.Rand
}

// NewRandomSampler returns a sampler over c seeded with seed.
func NewRandomSampler(c Catalog, seed uint64) *RandomSampler {
	return &RandomSampler{
		catalog: c,
		rng:     rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb)),
	}
}

// Next draws one candidate. Empty catalog fields stay zero and are filled by
// Normalize where a default exists.
func (s *RandomSampler) Next() Params {
	c := s.catalog
	return Params{
		VecH:              pick(s.rng, c.VecH),
		VecW:              pick(s.rng, c.VecW),
		VecC:              pick(s.rng, c.VecC),
		ICBlock:           pick(s.rng, c.ICBlock),
		OCBlock:           pick(s.rng, c.OCBlock),
		RegisterTileWidth: pick(s.rng, c.RegisterTile),
		UnrollInner:       pick(s.rng, c.Unroll),
		UnrollKW:          pick(s.rng, c.UnrollKW),
		BatchSplitH:       pick(s.rng, c.SplitH),
		BatchSplitC:       pick(s.rng, c.SplitC),
		OutputLayout:      pick(s.rng, c.Layouts),
		Template:          pick(s.rng, c.Templates),
	}
}

func pick[T any](rng *rand.Rand, values []T) T {
	var zero T
	if len(values) == 0 {
		return zero
	}
	return values[rng.IntN(len(values))]
}

// divisors returns the positive divisors of n in ascending order.
func divisors(n int) []int {
	var out []int
	for d := 1; d*d <= n; d++ {
		if n%d == 0 {
			out = append(out, d)
			if d != n/d {
				out = append(out, n/d)
			}
		}
	}
	sort.Ints(out)
	return out
}

// powersOfTwo returns 1, 2, 4, ... up to and including n when n is a power of two.
func powersOfTwo(n int) []int {
	var out []int
	for p := 1; p <= n; p <<= 1 {
		out = append(out, p)
	}
	return out
}

func isPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}
