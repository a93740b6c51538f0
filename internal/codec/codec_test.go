package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/dunamismax/photoflow/internal/raster"
)

func testBuffer(t *testing.T, w, h int) *raster.Buffer {
	t.Helper()

	b, err := raster.New(w, h)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			b.Set(x, y, raster.RGB(uint8(x*9), uint8(y*13), 140))
		}
	}
	return b
}

func TestPNGRoundTripIsLossless(t *testing.T) {
	src := testBuffer(t, 24, 12)

	data, err := EncodePNG(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Equal(src) {
		t.Fatal("expected PNG round trip to reproduce every byte")
	}
}

func TestDecodeDropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 40, G: 180, B: 220, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 40, G: 180, B: 220, A: 90})

	var data bytes.Buffer
	if err := png.Encode(&data, src); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	got, err := Decode(data.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want, _ := raster.Filled(2, 1, raster.RGB(40, 180, 220))
	if !got.Equal(want) {
		t.Fatalf("expected colour without alpha, got %v", got.Pix)
	}
}

func TestJPEGEncodeDecodes(t *testing.T) {
	data, err := Encode(testBuffer(t, 16, 16), "jpg", 90)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Width != 16 || got.Height != 16 {
		t.Fatalf("unexpected dimensions %dx%d", got.Width, got.Height)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range [][]byte{nil, []byte("not an image")} {
		if _, err := Decode(in); !errors.Is(err, ErrImageFormat) {
			t.Fatalf("expected ErrImageFormat for %q, got %v", in, err)
		}
	}
}

func TestDecoderPixelLimit(t *testing.T) {
	data, err := EncodePNG(testBuffer(t, 20, 20))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := (Decoder{MaxPixels: 399}).Decode(data); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := (Decoder{MaxPixels: 400}).Decode(data); err != nil {
		t.Fatalf("expected 400 pixels to be allowed, got %v", err)
	}
}

func TestDecodeKeepsChannelOrder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if px, _ := got.At(0, 0); px != (raster.Pixel{0, 0, 255}) {
		t.Fatalf("expected red stored as B=0,G=0,R=255, got %v", px)
	}
}

func TestNormalizeFormat(t *testing.T) {
	cases := map[string]string{
		"jpg":  "jpeg",
		"JPEG": "jpeg",
		"webp": "webp",
		"png":  "png",
		"":     "png",
		"gif":  "png",
	}
	for in, want := range cases {
		if got := NormalizeFormat(in); got != want {
			t.Fatalf("NormalizeFormat(%q) = %q, want %q", in, got, want)
		}
	}
	if ContentType("jpg") != "image/jpeg" || ContentType("") != "image/png" {
		t.Fatal("unexpected content types")
	}
}

func TestParseDataURI(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	encoded := base64.StdEncoding.EncodeToString(payload)

	cases := []string{
		"data:image/png;base64," + encoded,
		encoded,
		"  " + encoded + "\n",
		base64.RawStdEncoding.EncodeToString(payload),
	}
	for _, in := range cases {
		got, err := ParseDataURI(in)
		if err != nil {
			t.Fatalf("ParseDataURI(%q): %v", in, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("ParseDataURI(%q) = %v", in, got)
		}
	}

	for _, in := range []string{"", "data:image/png;base64,", "%%%"} {
		if _, err := ParseDataURI(in); !errors.Is(err, ErrImageFormat) {
			t.Fatalf("expected ErrImageFormat for %q, got %v", in, err)
		}
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	data, err := EncodePNG(testBuffer(t, 3, 3))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := ParseDataURI(DataURI("png", data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatal("expected data URI to round trip")
	}
}

func TestDigestIsStableAndContentAddressed(t *testing.T) {
	a := Digest([]byte("photoflow"))
	if len(a) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(a))
	}
	if a != Digest([]byte("photoflow")) {
		t.Fatal("expected identical input to hash identically")
	}
	if a == Digest([]byte("photoflow!")) {
		t.Fatal("expected different input to hash differently")
	}
}
