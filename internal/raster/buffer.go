// Package raster holds the in-memory pixel representation shared by the
// editing engines: an 8-bit, three-channel, row-major buffer stored in
// blue-green-red order.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// Channel offsets within a pixel.
const (
	ChannelB = 0
	ChannelG = 1
	ChannelR = 2

	Channels = 3
)

var ErrDimension = errors.New("invalid buffer dimensions")

// Pixel is one BGR sample.
type Pixel [Channels]uint8

// RGB builds a Pixel from red, green and blue components.
func RGB(r, g, b uint8) Pixel {
	return Pixel{ChannelB: b, ChannelG: g, ChannelR: r}
}

func (p Pixel) R() uint8 { return p[ChannelR] }
func (p Pixel) G() uint8 { return p[ChannelG] }
func (p Pixel) B() uint8 { return p[ChannelB] }

// Buffer is a decoded image. len(Pix) is always Width*Height*Channels.
type Buffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates a zeroed (black) buffer.
func New(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrDimension, width, height)
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*Channels),
	}, nil
}

// NewLike allocates a zeroed buffer with the dimensions of b.
func NewLike(b *Buffer) *Buffer {
	return &Buffer{
		Width:  b.Width,
		Height: b.Height,
		Pix:    make([]uint8, len(b.Pix)),
	}
}

// Filled returns a buffer where every pixel is px.
func Filled(width, height int, px Pixel) (*Buffer, error) {
	b, err := New(width, height)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(b.Pix); i += Channels {
		copy(b.Pix[i:i+Channels], px[:])
	}
	return b, nil
}

func (b *Buffer) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

// Offset returns the index of the first byte of pixel (x, y).
func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * Channels
}

// At returns the pixel at (x, y) and false when the point is out of bounds.
func (b *Buffer) At(x, y int) (Pixel, bool) {
	if !b.Contains(x, y) {
		return Pixel{}, false
	}
	i := b.Offset(x, y)
	return Pixel{b.Pix[i], b.Pix[i+1], b.Pix[i+2]}, true
}

// Set writes px at (x, y). Out-of-bounds writes are ignored.
func (b *Buffer) Set(x, y int, px Pixel) {
	if !b.Contains(x, y) {
		return
	}
	i := b.Offset(x, y)
	copy(b.Pix[i:i+Channels], px[:])
}

func (b *Buffer) Clone() *Buffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Pix: pix}
}

func (b *Buffer) Equal(other *Buffer) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.Width != other.Width || b.Height != other.Height || len(b.Pix) != len(other.Pix) {
		return false
	}
	for i := range b.Pix {
		if b.Pix[i] != other.Pix[i] {
			return false
		}
	}
	return true
}

// Validate checks the length invariant.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrDimension)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrDimension, b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height*Channels {
		return fmt.Errorf("%w: %d bytes for %dx%d", ErrDimension, len(b.Pix), b.Width, b.Height)
	}
	return nil
}

// PixelCount is Width*Height.
func (b *Buffer) PixelCount() int64 {
	return int64(b.Width) * int64(b.Height)
}

// FromImage copies img into a new buffer. Alpha is discarded and the stored
// colour kept, so a fully transparent pixel keeps its RGB values. Sources
// that only hold premultiplied colour have nothing left to recover there.
func FromImage(img image.Image) (*Buffer, error) {
	bounds := img.Bounds()
	out, err := New(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				i := src.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				out.Set(x, y, RGB(src.Pix[i], src.Pix[i+1], src.Pix[i+2]))
			}
		}
		return out, nil
	}

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			out.Set(x, y, straightColor(img.At(bounds.Min.X+x, bounds.Min.Y+y)))
		}
	}
	return out, nil
}

// straightColor returns the non-premultiplied colour of c.
func straightColor(c color.Color) Pixel {
	switch v := c.(type) {
	case color.NRGBA:
		return RGB(v.R, v.G, v.B)
	case color.NRGBA64:
		return RGB(uint8(v.R>>8), uint8(v.G>>8), uint8(v.B>>8))
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGB(n.R, n.G, n.B)
}

// ToNRGBA converts the buffer into an opaque image for encoding.
func (b *Buffer) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			src := b.Offset(x, y)
			dst := img.PixOffset(x, y)
			img.Pix[dst] = b.Pix[src+ChannelR]
			img.Pix[dst+1] = b.Pix[src+ChannelG]
			img.Pix[dst+2] = b.Pix[src+ChannelB]
			img.Pix[dst+3] = 0xff
		}
	}
	return img
}

// ColorAt returns the pixel at (x, y) as an opaque colour.
func (b *Buffer) ColorAt(x, y int) color.NRGBA {
	px, ok := b.At(x, y)
	if !ok {
		return color.NRGBA{}
	}
	return color.NRGBA{R: px.R(), G: px.G(), B: px.B(), A: 0xff}
}
