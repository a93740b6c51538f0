//go:build govips && cgo

package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/dunamismax/photoflow/internal/raster"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

// decodeImage lets libvips read the container (HEIF, AVIF, JPEG XL and the
// rest of its loaders), normalises orientation and hands back a PNG-decoded
// image so pixel values are identical to the pure-Go path.
func decodeImage(data []byte) (image.Image, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips autorotate: %w", err)
	}

	lossless, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export png: %w", err)
	}
	return png.Decode(bytes.NewReader(lossless))
}

func encodeWebP(buf *raster.Buffer, quality int) ([]byte, error) {
	var lossless bytes.Buffer
	if err := png.Encode(&lossless, buf.ToNRGBA()); err != nil {
		return nil, fmt.Errorf("%w: stage png: %v", ErrImageFormat, err)
	}

	ref, err := vips.NewImageFromBuffer(lossless.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: vips load: %v", ErrImageFormat, err)
	}
	defer ref.Close()

	params := vips.NewWebpExportParams()
	if quality > 0 && quality <= 100 {
		params.Quality = quality
	}
	data, _, err := ref.ExportWebp(params)
	if err != nil {
		return nil, fmt.Errorf("%w: encode webp: %v", ErrImageFormat, err)
	}
	return data, nil
}
