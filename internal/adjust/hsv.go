package adjust

import (
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/dunamismax/photoflow/internal/raster"
)

// HSV is a pixel in hue-saturation-value space. H is in degrees [0, 360),
// S and V are in [0, 1]. The 8-bit S range [0, 255] maps linearly onto
// [0, 1], so clamping S here is clamping the 8-bit channel.
type HSV struct {
	H float64
	S float64
	V float64
}

// ToHSV converts a BGR pixel.
func ToHSV(px raster.Pixel) HSV {
	c := colorful.Color{
		R: float64(px.R()) / 255,
		G: float64(px.G()) / 255,
		B: float64(px.B()) / 255,
	}
	h, s, v := c.Hsv()
	return HSV{H: h, S: s, V: v}
}

// Pixel converts back to BGR, rounding to the nearest 8-bit value.
func (c HSV) Pixel() raster.Pixel {
	r, g, b := colorful.Hsv(c.H, c.S, c.V).Clamped().RGB255()
	return raster.RGB(r, g, b)
}
