// Package schedule defines the tiling parameters of one convolution schedule,
// the gate rejecting parameters a workload cannot use, and the catalog the
// search samples candidates from.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/born-ml/convsearch/internal/workload"
)

// Params is one immutable candidate schedule.
//
// Channel blocking: input channels are packed as [C/ICBlock, ..., ICBlock] and
// output channels as [C/OCBlock, ..., OCBlock]; the OCBlock axis is the innermost,
// vectorized VecC lanes at a time.
// Spatial tiling: each parallel task covers VecH output rows; within a row,
// VecW-wide column strips are computed RegisterTileWidth columns at a time.
//
// Under TemplateSpatial the data is instead packed into overlapping input
// windows, one per VecH x VecW output tile, and output channels are grouped
// VecC at a time. The channel-block, register-tile and unroll_kw fields are
// unused there.
type Params struct {
	VecH              int    `yaml:"vec_h"`
	VecW              int    `yaml:"vec_w"`
	VecC              int    `yaml:"vec_c"`
	ICBlock           int    `yaml:"ic_block"`
	OCBlock           int    `yaml:"oc_block"`
	RegisterTileWidth int    `yaml:"reg_n"`
	UnrollInner       bool   `yaml:"unroll"`
	UnrollKW          bool   `yaml:"unroll_kw"`
	BatchSplitH       int    `yaml:"ba"`
	BatchSplitC       int    `yaml:"bc"`
	OutputLayout      string `yaml:"layout_out"`
	Template          string `yaml:"template"`
}

// LayoutNCHW is the plain unpacked output layout.
const LayoutNCHW = "NCHW"

// Compute templates. The blocked template is the zero value.
const (
	TemplateBlocked = "nchwc"
	TemplateSpatial = "spatial"
)

// Spatial reports whether p uses the spatial-pack template.
func (p Params) Spatial() bool {
	return p.Template == TemplateSpatial
}

// Normalize fills unset fields with their defaults: register tile = VecW,
// split factors = 1, output layout = NCHW. Set fields are left untouched,
// except that TemplateBlocked is stored as "" and a spatial schedule has its
// unused fields cleared, so equal schedules render alike.
func (p Params) Normalize() Params {
	if p.Template == TemplateBlocked {
		p.Template = ""
	}
	if p.Spatial() {
		p.ICBlock, p.OCBlock, p.RegisterTileWidth = 0, 0, 0
		p.UnrollKW = false
		p.OutputLayout = ""
	}
	if p.RegisterTileWidth == 0 && !p.Spatial() {
		p.RegisterTileWidth = p.VecW
	}
	if p.BatchSplitH == 0 {
		p.BatchSplitH = 1
	}
	if p.BatchSplitC == 0 {
		p.BatchSplitC = 1
	}
	if p.OutputLayout == "" {
		p.OutputLayout = LayoutNCHW
	}
	return p
}

// Default mirrors the weight-prepack heuristic: block channels by 16 when 16
// divides them, otherwise use the whole channel count as a single block.
func Default(w workload.Descriptor) Params {
	blockOf := func(c int) int {
		if c%16 == 0 {
			return 16
		}
		return c
	}
	oc := blockOf(w.OutChannels)
	vecC := 1
	for _, lanes := range []int{16, 8, 4, 2} {
		if oc%lanes == 0 {
			vecC = lanes
			break
		}
	}
	return Params{
		VecH:    1,
		VecW:    w.OutWidth(),
		VecC:    vecC,
		ICBlock: blockOf(w.InChannels),
		OCBlock: oc,
	}.Normalize()
}

// OutputBlock returns the channel block of the output layout: 0 for NCHW,
// k for NCHW<k>c.
func (p Params) OutputBlock() (int, error) {
	return ParseLayout(p.OutputLayout)
}

var layoutDigits = regexp.MustCompile(`\d+`)

// ParseLayout extracts the channel block from a layout tag such as "NCHW16c".
// "NCHW" (or "") yields 0.
func ParseLayout(tag string) (int, error) {
	if tag == "" || tag == LayoutNCHW {
		return 0, nil
	}
	groups := layoutDigits.FindAllString(tag, -1)
	if len(groups) != 1 || !strings.HasPrefix(tag, LayoutNCHW) || !strings.HasSuffix(tag, "c") {
		return 0, fmt.Errorf("%w: malformed layout tag %q", ErrIncompatible, tag)
	}
	k, err := strconv.Atoi(groups[0])
	if err != nil || k <= 0 {
		return 0, fmt.Errorf("%w: malformed layout tag %q", ErrIncompatible, tag)
	}
	return k, nil
}

// String renders the schedule in the report's key=value form. Parse reads it back.
// The template is only written when it is not the blocked one.
func (p Params) String() string {
	if p.Template != "" {
		return fmt.Sprintf("Schedule(vec_h=%d, vec_w=%d, vec_c=%d, ic_bn=%d, oc_bn=%d, reg_n=%d, unroll=%t, unroll_kw=%t, ba=%d, bc=%d, layout_out=%s, template=%s)",
			p.VecH, p.VecW, p.VecC, p.ICBlock, p.OCBlock, p.RegisterTileWidth,
			p.UnrollInner, p.UnrollKW, p.BatchSplitH, p.BatchSplitC, p.OutputLayout, p.Template)
	}
	return fmt.Sprintf("Schedule(vec_h=%d, vec_w=%d, vec_c=%d, ic_bn=%d, oc_bn=%d, reg_n=%d, unroll=%t, unroll_kw=%t, ba=%d, bc=%d, layout_out=%s)",
		p.VecH, p.VecW, p.VecC, p.ICBlock, p.OCBlock, p.RegisterTileWidth,
		p.UnrollInner, p.UnrollKW, p.BatchSplitH, p.BatchSplitC, p.OutputLayout)
}

// Parse reads the String form.
func Parse(s string) (Params, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "Schedule(") || !strings.HasSuffix(s, ")") {
		return Params{}, fmt.Errorf("schedule: cannot parse %q", s)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, "Schedule("), ")")

	var p Params
	ints := map[string]*int{
		"vec_h": &p.VecH, "vec_w": &p.VecW, "vec_c": &p.VecC,
		"ic_bn": &p.ICBlock, "oc_bn": &p.OCBlock, "reg_n": &p.RegisterTileWidth,
		"ba": &p.BatchSplitH, "bc": &p.BatchSplitC,
	}
	bools := map[string]*bool{"unroll": &p.UnrollInner, "unroll_kw": &p.UnrollKW}

	for _, field := range strings.Split(body, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			return Params{}, fmt.Errorf("schedule: field %q has no value", field)
		}
		switch {
		case ints[key] != nil:
			v, err := strconv.Atoi(value)
			if err != nil {
				return Params{}, fmt.Errorf("schedule: field %s: %w", key, err)
			}
			*ints[key] = v
		case bools[key] != nil:
			v, err := strconv.ParseBool(value)
			if err != nil {
				return Params{}, fmt.Errorf("schedule: field %s: %w", key, err)
			}
			*bools[key] = v
		case key == "layout_out":
			p.OutputLayout = value
		case key == "template":
			p.Template = value
		default:
			return Params{}, fmt.Errorf("schedule: unknown field %q", key)
		}
	}
	return p, nil
}
