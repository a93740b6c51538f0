//go:build !govips || !cgo

package codec

import (
	"bytes"
	"errors"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dunamismax/photoflow/internal/raster"
)

func Startup() error {
	return nil
}

func Shutdown() {}

func decodeImage(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

func encodeWebP(_ *raster.Buffer, _ int) ([]byte, error) {
	return nil, errors.New("webp export requires govips build tag")
}
