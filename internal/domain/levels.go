package domain

import "math"

// Bounded adjustment knobs. Clamp maps any integer onto the values the
// engines treat as distinct, so out-of-range input has a defined effect.
// A knob whose formula is defined for every integer is left unbounded on
// that side.

type Brightness int

type Contrast int

type Saturation int

type Sharpness int

const (
	MinBrightness = -255
	MaxBrightness = 255

	// ContrastSingularity makes the contrast factor's denominator zero and
	// is replaced by the value one below it. Every other integer is used
	// as given.
	ContrastSingularity = 259

	// Below -100 the saturation scale is negative and S clamps to zero
	// either way. There is no upper bound.
	MinSaturation = -100

	MinSharpness = 0
	MaxSharpness = 100
)

func (v Brightness) Clamp() int { return clampInt(int(v), MinBrightness, MaxBrightness) }

func (v Contrast) Clamp() int {
	if v == ContrastSingularity {
		return ContrastSingularity - 1
	}
	return int(v)
}

func (v Saturation) Clamp() int { return clampInt(int(v), MinSaturation, math.MaxInt) }

func (v Sharpness) Clamp() int { return clampInt(int(v), MinSharpness, MaxSharpness) }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
