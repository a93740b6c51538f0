package raster

import "math"

// Plane is a single-channel float image used as the working space for
// convolutions.
type Plane struct {
	Width  int
	Height int
	Values []float64
}

func NewPlane(width, height int) Plane {
	return Plane{Width: width, Height: height, Values: make([]float64, width*height)}
}

func (p Plane) At(x, y int) float64 {
	return p.Values[y*p.Width+x]
}

// Split separates a buffer into its B, G and R planes.
func (b *Buffer) Split() [Channels]Plane {
	var planes [Channels]Plane
	for c := range planes {
		planes[c] = NewPlane(b.Width, b.Height)
	}
	for i, n := 0, b.Width*b.Height; i < n; i++ {
		for c := 0; c < Channels; c++ {
			planes[c].Values[i] = float64(b.Pix[i*Channels+c])
		}
	}
	return planes
}

// Merge rounds and saturates three planes back into a buffer.
func Merge(planes [Channels]Plane) *Buffer {
	w, h := planes[0].Width, planes[0].Height
	out := &Buffer{Width: w, Height: h, Pix: make([]uint8, w*h*Channels)}
	for i, n := 0, w*h; i < n; i++ {
		for c := 0; c < Channels; c++ {
			out.Pix[i*Channels+c] = RoundClamp(planes[c].Values[i])
		}
	}
	return out
}

// Replicate writes a single plane into all three channels.
func Replicate(p Plane) *Buffer {
	out := &Buffer{Width: p.Width, Height: p.Height, Pix: make([]uint8, p.Width*p.Height*Channels)}
	for i, v := range p.Values {
		g := RoundClamp(v)
		out.Pix[i*Channels+ChannelB] = g
		out.Pix[i*Channels+ChannelG] = g
		out.Pix[i*Channels+ChannelR] = g
	}
	return out
}

// Kernel is a square, odd-sized correlation kernel stored row-major.
type Kernel struct {
	Size    int
	Weights []float64
}

func NewKernel(rows [][]float64) Kernel {
	k := Kernel{Size: len(rows), Weights: make([]float64, 0, len(rows)*len(rows))}
	for _, row := range rows {
		k.Weights = append(k.Weights, row...)
	}
	return k
}

// Correlate slides k over p without flipping it. Samples outside the
// plane are mirrored without repeating the edge (reflect-101).
func (k Kernel) Correlate(p Plane) Plane {
	out := NewPlane(p.Width, p.Height)
	r := k.Size / 2
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			var sum float64
			for ky := 0; ky < k.Size; ky++ {
				sy := Reflect101(y+ky-r, p.Height)
				row := sy * p.Width
				for kx := 0; kx < k.Size; kx++ {
					w := k.Weights[ky*k.Size+kx]
					if w == 0 {
						continue
					}
					sx := Reflect101(x+kx-r, p.Width)
					sum += w * p.Values[row+sx]
				}
			}
			out.Values[y*p.Width+x] = sum
		}
	}
	return out
}

// CorrelateSeparable applies the same 1-D kernel along rows and then
// along columns.
func CorrelateSeparable(p Plane, weights []float64) Plane {
	r := len(weights) / 2

	tmp := NewPlane(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		row := y * p.Width
		for x := 0; x < p.Width; x++ {
			var sum float64
			for i, w := range weights {
				sum += w * p.Values[row+Reflect101(x+i-r, p.Width)]
			}
			tmp.Values[row+x] = sum
		}
	}

	out := NewPlane(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			var sum float64
			for i, w := range weights {
				sum += w * tmp.Values[Reflect101(y+i-r, p.Height)*p.Width+x]
			}
			out.Values[y*p.Width+x] = sum
		}
	}
	return out
}

// Reflect101 maps an out-of-range index into [0, n) as gfedcb|abcdefgh|gfedcba.
func Reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// RoundClamp rounds half away from zero and saturates to [0, 255].
func RoundClamp(v float64) uint8 {
	return ClampFloat(math.Round(v))
}

// ClampFloat saturates v to [0, 255] and truncates the fraction.
func ClampFloat(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

func ClampInt(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
