// Package adjust implements the tonal adjustments: brightness, contrast,
// saturation and sharpness. Every function returns a new buffer.
package adjust

import (
	"github.com/dunamismax/photoflow/internal/raster"
)

// contrastSingularity is the contrast value at which the factor's
// denominator vanishes.
const contrastSingularity = 259

var sharpenKernel = raster.NewKernel([][]float64{
	{0, -1, 0},
	{-1, 5, -1},
	{0, -1, 0},
})

// Brightness adds v to every channel, saturating at 0 and 255.
func Brightness(img *raster.Buffer, v int) *raster.Buffer {
	out := raster.NewLike(img)
	for i, c := range img.Pix {
		out.Pix[i] = raster.ClampInt(int(c) + v)
	}
	return out
}

// ContrastFactor returns the multiplier applied around mid-grey for v.
// 259 is substituted with 258.
func ContrastFactor(v int) float64 {
	if v == contrastSingularity {
		v = contrastSingularity - 1
	}
	return (259 * float64(v+255)) / (255 * float64(contrastSingularity-v))
}

// Contrast scales every channel away from (or toward) 128.
func Contrast(img *raster.Buffer, v int) *raster.Buffer {
	factor := ContrastFactor(v)

	var lut [256]uint8
	for c := range lut {
		lut[c] = raster.ClampFloat(factor*(float64(c)-128) + 128)
	}

	out := raster.NewLike(img)
	for i, c := range img.Pix {
		out.Pix[i] = lut[c]
	}
	return out
}

// Saturation scales HSV saturation by 1 + v/100.
func Saturation(img *raster.Buffer, v int) *raster.Buffer {
	scale := 1 + float64(v)/100

	out := raster.NewLike(img)
	for i := 0; i < len(img.Pix); i += raster.Channels {
		px := raster.Pixel{img.Pix[i], img.Pix[i+1], img.Pix[i+2]}
		hsv := ToHSV(px)
		hsv.S = clampUnit(hsv.S * scale)
		res := hsv.Pixel()
		copy(out.Pix[i:i+raster.Channels], res[:])
	}
	return out
}

// Sharpness blends a 3x3 sharpened copy into the image with weight v/100.
// v <= 0 returns img itself.
func Sharpness(img *raster.Buffer, v int) *raster.Buffer {
	if v <= 0 {
		return img
	}
	alpha := float64(v) / 100

	planes := img.Split()
	for c := range planes {
		planes[c] = sharpenKernel.Correlate(planes[c])
	}
	// An 8-bit filter output saturates before blending.
	sharpened := raster.Merge(planes)

	out := raster.NewLike(img)
	for i, c := range img.Pix {
		out.Pix[i] = raster.RoundClamp(alpha*float64(sharpened.Pix[i]) + (1-alpha)*float64(c))
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
