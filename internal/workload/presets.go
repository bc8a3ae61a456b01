package workload

import (
	"fmt"
	"sort"
)

// presets lists stride-1 ResNet convolution workloads (224x224 input, batch 1).
// The strided stem and downsampling convs are absent: their output size does
// not divide evenly, so they are not valid descriptors.
var presets = map[string]Descriptor{
	"resnet18-stage1":      Square(1, 64, 64, 56, 3, 1, 1),
	"resnet18-stage2":      Square(1, 128, 128, 28, 3, 1, 1),
	"resnet18-stage3":      Square(1, 256, 256, 14, 3, 1, 1),
	"resnet18-stage4":      Square(1, 512, 512, 7, 3, 1, 1),
	"resnet50-stage1-1x1a": Square(1, 64, 64, 56, 1, 1, 0),
	"resnet50-stage1-1x1b": Square(1, 64, 256, 56, 1, 1, 0),
	"resnet50-stage1-1x1c": Square(1, 256, 64, 56, 1, 1, 0),
}

// Preset returns a named workload.
func Preset(name string) (Descriptor, error) {
	d, ok := presets[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: unknown preset %q", ErrInvalid, name)
	}
	return d, nil
}

// PresetNames returns all preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
