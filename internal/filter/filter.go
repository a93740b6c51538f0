// Package filter implements the stylistic filters. All filters keep the
// buffer dimensions and return a new three-channel buffer.
package filter

import (
	"math"

	"github.com/dunamismax/photoflow/internal/raster"
)

// BlurSize is the Gaussian kernel width used by Blur.
const BlurSize = 15

// Luma coefficients (ITU-R BT.601).
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// sepiaMatrix rows are the R', G', B' outputs; columns the R, G, B inputs.
var sepiaMatrix = [3][3]float64{
	{0.393, 0.769, 0.189},
	{0.349, 0.686, 0.168},
	{0.272, 0.534, 0.131},
}

var (
	sobelX = raster.NewKernel([][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	})
	sobelY = raster.NewKernel([][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	})

	blurWeights = GaussianWeights(BlurSize, 0)
)

// Luma returns the rounded BT.601 luma of px.
func Luma(px raster.Pixel) uint8 {
	return raster.RoundClamp(lumaR*float64(px.R()) + lumaG*float64(px.G()) + lumaB*float64(px.B()))
}

// LumaPlane computes the single-channel luma image.
func LumaPlane(img *raster.Buffer) raster.Plane {
	p := raster.NewPlane(img.Width, img.Height)
	for i := range p.Values {
		o := i * raster.Channels
		p.Values[i] = float64(Luma(raster.Pixel{img.Pix[o], img.Pix[o+1], img.Pix[o+2]}))
	}
	return p
}

func Grayscale(img *raster.Buffer) *raster.Buffer {
	return raster.Replicate(LumaPlane(img))
}

func Negative(img *raster.Buffer) *raster.Buffer {
	out := raster.NewLike(img)
	for i, c := range img.Pix {
		out.Pix[i] = 255 - c
	}
	return out
}

func Sepia(img *raster.Buffer) *raster.Buffer {
	out := raster.NewLike(img)
	for i := 0; i < len(img.Pix); i += raster.Channels {
		rgb := [3]float64{
			float64(img.Pix[i+raster.ChannelR]),
			float64(img.Pix[i+raster.ChannelG]),
			float64(img.Pix[i+raster.ChannelB]),
		}
		var mixed [3]uint8
		for row, coeffs := range sepiaMatrix {
			mixed[row] = raster.RoundClamp(coeffs[0]*rgb[0] + coeffs[1]*rgb[1] + coeffs[2]*rgb[2])
		}
		out.Pix[i+raster.ChannelR] = mixed[0]
		out.Pix[i+raster.ChannelG] = mixed[1]
		out.Pix[i+raster.ChannelB] = mixed[2]
	}
	return out
}

// Blur applies a 15x15 Gaussian with sigma derived from the kernel size.
func Blur(img *raster.Buffer) *raster.Buffer {
	planes := img.Split()
	for c := range planes {
		planes[c] = raster.CorrelateSeparable(planes[c], blurWeights)
	}
	return raster.Merge(planes)
}

// EdgeMagnitude is the Sobel gradient magnitude of the luma image,
// replicated into all three channels.
func EdgeMagnitude(img *raster.Buffer) *raster.Buffer {
	gray := LumaPlane(img)
	gx := sobelX.Correlate(gray)
	gy := sobelY.Correlate(gray)

	mag := raster.NewPlane(img.Width, img.Height)
	for i := range mag.Values {
		mag.Values[i] = math.Hypot(gx.Values[i], gy.Values[i])
	}
	return raster.Replicate(mag)
}

// GaussianWeights returns a normalised 1-D Gaussian of the given odd size.
// A non-positive sigma is derived from the size as 0.3*((size-1)*0.5-1)+0.8.
func GaussianWeights(size int, sigma float64) []float64 {
	if sigma <= 0 {
		sigma = 0.3*((float64(size)-1)*0.5-1) + 0.8
	}

	weights := make([]float64, size)
	center := float64(size-1) / 2
	var sum float64
	for i := range weights {
		d := float64(i) - center
		weights[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}
