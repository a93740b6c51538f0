// Package geometry implements rotate, flip and crop. These are the only
// operations that can change buffer dimensions.
package geometry

import (
	"fmt"
	"strings"

	"github.com/dunamismax/photoflow/internal/raster"
)

type FlipMode int

const (
	FlipNone FlipMode = iota
	FlipHorizontal
	FlipVertical
)

func (m FlipMode) String() string {
	switch m {
	case FlipHorizontal:
		return "horizontal"
	case FlipVertical:
		return "vertical"
	default:
		return "none"
	}
}

// ParseFlipMode accepts "horizontal"/"h" and "vertical"/"v". Anything else,
// including the empty string, is FlipNone.
func ParseFlipMode(s string) FlipMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "horizontal", "h":
		return FlipHorizontal
	case "vertical", "v":
		return FlipVertical
	default:
		return FlipNone
	}
}

// Rotate turns img clockwise by angle degrees. 90 and 270 swap width and
// height. Angles other than 90, 180 and 270 return img unchanged.
func Rotate(img *raster.Buffer, angle int) *raster.Buffer {
	w, h := img.Width, img.Height

	var (
		out *raster.Buffer
		dst func(x, y int) int
	)
	switch angle {
	case 90:
		out = &raster.Buffer{Width: h, Height: w, Pix: make([]uint8, len(img.Pix))}
		dst = func(x, y int) int { return out.Offset(h-1-y, x) }
	case 180:
		out = raster.NewLike(img)
		dst = func(x, y int) int { return out.Offset(w-1-x, h-1-y) }
	case 270:
		out = &raster.Buffer{Width: h, Height: w, Pix: make([]uint8, len(img.Pix))}
		dst = func(x, y int) int { return out.Offset(y, w-1-x) }
	default:
		return img
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := img.Offset(x, y)
			copy(out.Pix[dst(x, y):], img.Pix[s:s+raster.Channels])
		}
	}
	return out
}

func Flip(img *raster.Buffer, mode FlipMode) *raster.Buffer {
	rowBytes := img.Width * raster.Channels

	switch mode {
	case FlipHorizontal:
		out := raster.NewLike(img)
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				s := img.Offset(x, y)
				copy(out.Pix[out.Offset(img.Width-1-x, y):], img.Pix[s:s+raster.Channels])
			}
		}
		return out
	case FlipVertical:
		out := raster.NewLike(img)
		for y := 0; y < img.Height; y++ {
			src := img.Pix[y*rowBytes : (y+1)*rowBytes]
			copy(out.Pix[(img.Height-1-y)*rowBytes:], src)
		}
		return out
	default:
		return img
	}
}

// CropBounds clamps a requested rectangle against a w x h buffer. The
// origin is clamped first and the extent is then clamped relative to the
// clamped origin.
func CropBounds(w, h, x, y, cw, ch int) (int, int, int, int) {
	x = clamp(x, 0, w)
	y = clamp(y, 0, h)
	cw = max(1, min(cw, w-x))
	ch = max(1, min(ch, h-y))
	return x, y, cw, ch
}

// Crop returns the clamped sub-rectangle of img. It fails with
// raster.ErrDimension only when the origin was clamped onto the far edge,
// leaving no pixels to copy.
func Crop(img *raster.Buffer, x, y, w, h int) (*raster.Buffer, error) {
	x, y, w, h = CropBounds(img.Width, img.Height, x, y, w, h)
	if x+w > img.Width || y+h > img.Height {
		return nil, fmt.Errorf("%w: crop %dx%d at (%d,%d) exceeds %dx%d",
			raster.ErrDimension, w, h, x, y, img.Width, img.Height)
	}

	out, err := raster.New(w, h)
	if err != nil {
		return nil, err
	}
	rowBytes := w * raster.Channels
	for row := 0; row < h; row++ {
		s := img.Offset(x, y+row)
		copy(out.Pix[row*rowBytes:], img.Pix[s:s+rowBytes])
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
