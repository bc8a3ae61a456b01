// Package hwprofile describes the vector width and cache hierarchy of the CPU a
// schedule is tuned for.
package hwprofile

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sys/cpu"
)

// Profile holds the hardware facts the schedule catalog is derived from.
type Profile struct {
	Name          string // Target name ("skylake-avx512", "detected", ...)
	Arch          string // GOARCH-style architecture
	Brand         string // CPU brand string, when detected
	VectorBits    int    // Widest usable float SIMD register
	HasFMA        bool
	L1D           int // Per-core L1 data cache, bytes
	L2            int // Per-core L2 cache, bytes
	L3            int // Shared L3 cache, bytes (0 if absent)
	CacheLine     int // Bytes
	LogicalCores  int
	PhysicalCores int
}

// Lanes returns how many elements of elemSize bytes fit in one vector register.
func (p Profile) Lanes(elemSize int) int {
	if elemSize <= 0 || p.VectorBits < 8*elemSize {
		return 1
	}
	return p.VectorBits / (8 * elemSize)
}

// Float32Lanes is Lanes(4).
func (p Profile) Float32Lanes() int {
	return p.Lanes(4)
}

// String renders a one-line summary.
func (p Profile) String() string {
	return fmt.Sprintf("%s (%s, %d-bit vectors, fma=%t, L1d=%dKiB, L2=%dKiB, L3=%dKiB, %d threads)",
		p.Name, p.Arch, p.VectorBits, p.HasFMA, p.L1D/1024, p.L2/1024, p.L3/1024, p.LogicalCores)
}

// Fallback cache sizes used when the OS does not report them.
const (
	defaultL1D       = 32 * 1024
	defaultL2        = 256 * 1024
	defaultL3        = 8 * 1024 * 1024
	defaultCacheLine = 64
)

// Detect probes the running CPU. Vector width comes from golang.org/x/sys/cpu,
// the cache hierarchy and core counts from cpuid.
func Detect() Profile {
	p := Profile{
		Name:          "detected",
		Arch:          runtime.GOARCH,
		Brand:         cpuid.CPU.BrandName,
		VectorBits:    detectVectorBits(),
		HasFMA:        cpu.X86.HasFMA || cpu.ARM64.HasASIMD,
		L1D:           positiveOr(cpuid.CPU.Cache.L1D, defaultL1D),
		L2:            positiveOr(cpuid.CPU.Cache.L2, defaultL2),
		L3:            max(cpuid.CPU.Cache.L3, 0),
		CacheLine:     positiveOr(cpuid.CPU.CacheLine, defaultCacheLine),
		LogicalCores:  positiveOr(cpuid.CPU.LogicalCores, runtime.NumCPU()),
		PhysicalCores: positiveOr(cpuid.CPU.PhysicalCores, runtime.NumCPU()),
	}
	return p
}

func detectVectorBits() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 512
	case cpu.X86.HasAVX2, cpu.X86.HasAVX:
		return 256
	case cpu.X86.HasSSE2, cpu.ARM64.HasASIMD:
		return 128
	default:
		return 64
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// targets are fixed profiles for tuning on a machine other than the target.
var targets = map[string]Profile{
	"skylake-avx512": {
		Name: "skylake-avx512", Arch: "amd64", VectorBits: 512, HasFMA: true,
		L1D: 32 * 1024, L2: 1024 * 1024, L3: 24 * 1024 * 1024, CacheLine: 64,
		LogicalCores: 4, PhysicalCores: 2,
	},
	"core-avx2": {
		Name: "core-avx2", Arch: "amd64", VectorBits: 256, HasFMA: true,
		L1D: 32 * 1024, L2: 256 * 1024, L3: 8 * 1024 * 1024, CacheLine: 64,
		LogicalCores: 4, PhysicalCores: 4,
	},
	"neon": {
		Name: "neon", Arch: "arm64", VectorBits: 128, HasFMA: true,
		L1D: 64 * 1024, L2: 512 * 1024, L3: 4 * 1024 * 1024, CacheLine: 64,
		LogicalCores: 4, PhysicalCores: 4,
	},
	"generic": {
		Name: "generic", Arch: runtime.GOARCH, VectorBits: 128,
		L1D: defaultL1D, L2: defaultL2, L3: defaultL3, CacheLine: defaultCacheLine,
		LogicalCores: 1, PhysicalCores: 1,
	},
}

// Lookup returns a named target. "auto" and "" detect the running CPU.
func Lookup(name string) (Profile, error) {
	if name == "" || name == "auto" {
		return Detect(), nil
	}
	p, ok := targets[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown target %q (known: auto, %v)", name, TargetNames())
	}
	return p, nil
}

// TargetNames lists the named targets in sorted order.
func TargetNames() []string {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
