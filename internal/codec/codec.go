// Package codec converts between container bytes and raster buffers. It is
// the boundary between the editing engines and the outside world.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/dunamismax/photoflow/internal/raster"
)

var (
	ErrImageFormat = errors.New("unsupported or malformed image")
	ErrTooLarge    = errors.New("image exceeds pixel limit")
)

const defaultJPEGQuality = 80

// Decoder turns container bytes into a buffer. MaxPixels <= 0 disables the
// size check.
type Decoder struct {
	MaxPixels int64
}

func Decode(data []byte) (*raster.Buffer, error) {
	return Decoder{}.Decode(data)
}

func (d Decoder) Decode(data []byte) (*raster.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrImageFormat)
	}

	if d.MaxPixels > 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			if int64(cfg.Width)*int64(cfg.Height) > d.MaxPixels {
				return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
			}
		}
	}

	img, err := decodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFormat, err)
	}

	buf, err := raster.FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFormat, err)
	}
	if d.MaxPixels > 0 && buf.PixelCount() > d.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, buf.Width, buf.Height)
	}
	return buf, nil
}

// Encode writes buf in the given container format. PNG is lossless and is
// the default for unknown formats.
func Encode(buf *raster.Buffer, format string, quality int) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFormat, err)
	}

	var out bytes.Buffer
	switch NormalizeFormat(format) {
	case "jpeg":
		if quality <= 0 || quality > 100 {
			quality = defaultJPEGQuality
		}
		if err := jpeg.Encode(&out, buf.ToNRGBA(), &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("%w: encode jpeg: %v", ErrImageFormat, err)
		}
	case "webp":
		return encodeWebP(buf, quality)
	default:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&out, buf.ToNRGBA()); err != nil {
			return nil, fmt.Errorf("%w: encode png: %v", ErrImageFormat, err)
		}
	}
	return out.Bytes(), nil
}

// EncodePNG is the lossless encoding used for synchronous responses.
func EncodePNG(buf *raster.Buffer) ([]byte, error) {
	return Encode(buf, "png", 0)
}

func NormalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpg", "jpeg":
		return "jpeg"
	case "webp":
		return "webp"
	default:
		return "png"
	}
}

func ContentType(format string) string {
	switch NormalizeFormat(format) {
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
