package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/photoflow/internal/codec"
	"github.com/dunamismax/photoflow/internal/domain"
)

func TestLocalProcessor_FileInEditFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")

	srcBytes := buildTestPNG(t, 240, 120)
	if err := os.WriteFile(inputPath, srcBytes, 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	var observed []string
	processor, err := NewLocalProcessor(tmp, outputDir, Options{
		Observe: func(pathway, stage string, _ time.Duration) {
			observed = append(observed, pathway+"/"+stage)
		},
	})
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	req := Request{
		JobID:      "job-local-1",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  inputPath,
		Edits: []domain.EditStep{
			{
				ID:      "warm_jpeg",
				Action:  domain.ActionProcess,
				Format:  "jpg",
				Quality: 75,
				Adjust:  &domain.AdjustmentParameters{Brightness: 20, Sepia: true},
			},
			{
				ID:     "portrait",
				Action: domain.ActionTransform,
				Format: "png",
				Transform: &domain.TransformParameters{
					Rotate: 90,
					Crop:   &domain.CropRect{X: 10, Y: 20, W: 60, H: 80},
				},
			},
		},
	}

	result, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	if result.SourceBytes != len(srcBytes) {
		t.Fatalf("expected source bytes %d, got %d", len(srcBytes), result.SourceBytes)
	}
	if result.SourcePixels != 240*120 {
		t.Fatalf("expected source pixels %d, got %d", 240*120, result.SourcePixels)
	}
	if len(result.Outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(result.Outputs))
	}

	warm := result.Outputs[0]
	if warm.Format != "jpeg" {
		t.Fatalf("expected jpeg output format, got %s", warm.Format)
	}
	if filepath.Base(warm.Path) != "warm_jpeg.jpeg" {
		t.Fatalf("unexpected output path %s", warm.Path)
	}
	verifyImageSize(t, warm.Path, 240, 120)

	portrait := result.Outputs[1]
	if portrait.Width != 60 || portrait.Height != 80 {
		t.Fatalf("expected 60x80 output, got %dx%d", portrait.Width, portrait.Height)
	}
	verifyImageSize(t, portrait.Path, 60, 80)

	portraitBytes, err := os.ReadFile(portrait.Path)
	if err != nil {
		t.Fatalf("read portrait image: %v", err)
	}
	if portrait.Digest != codec.Digest(portraitBytes) {
		t.Fatal("output digest does not match written bytes")
	}

	want := []string{"process/brightness", "process/sepia", "transform/rotate", "transform/crop"}
	if len(observed) != len(want) {
		t.Fatalf("expected observed stages %v, got %v", want, observed)
	}
	for i := range want {
		if observed[i] != want[i] {
			t.Fatalf("expected observed stages %v, got %v", want, observed)
		}
	}
}

func TestLocalProcessor_StepsStartFromSource(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	if err := os.WriteFile(inputPath, buildTestPNG(t, 40, 30), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(tmp, filepath.Join(tmp, "out"), Options{})
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-independent",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  inputPath,
		Edits: []domain.EditStep{
			{ID: "rotated", Action: domain.ActionTransform, Transform: &domain.TransformParameters{Rotate: 90}},
			{ID: "plain", Action: domain.ActionTransform, Transform: &domain.TransformParameters{}},
		},
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}
	if result.Outputs[1].Width != 40 || result.Outputs[1].Height != 30 {
		t.Fatalf("second step should see the original 40x30 source, got %dx%d",
			result.Outputs[1].Width, result.Outputs[1].Height)
	}
}

func TestLocalProcessor_UnsupportedSourceType(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir(), t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-unsupported",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job/source",
		Edits: []domain.EditStep{
			{ID: "gray", Action: domain.ActionProcess, Adjust: &domain.AdjustmentParameters{Grayscale: true}},
		},
	})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected ErrUnsupportedSourceType, got %v", err)
	}
}

func TestLocalFileFetcher_StaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "in"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "in", "a.png"), []byte("inside"), 0o644); err != nil {
		t.Fatalf("write inside file: %v", err)
	}
	outside := filepath.Join(t.TempDir(), "passwd")
	if err := os.WriteFile(outside, []byte("outside"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	fetcher := LocalFileFetcher{Root: root}
	fetch := func(key string) ([]byte, error) {
		return fetcher.Fetch(context.Background(), Request{SourceType: SourceTypeLocalFile, ObjectKey: key})
	}

	for _, key := range []string{"in/a.png", filepath.Join(root, "in", "a.png"), "in/../in/a.png"} {
		data, err := fetch(key)
		if err != nil || string(data) != "inside" {
			t.Fatalf("%s: expected inside file, got %q err=%v", key, data, err)
		}
	}

	for _, key := range []string{outside, "../" + filepath.Base(outside), "in/../../x", "", "."} {
		if _, err := fetch(key); err == nil {
			t.Fatalf("%q: expected read to be refused", key)
		}
	}
	if _, err := fetch(outside); !errors.Is(err, ErrSourceOutsideRoot) {
		t.Fatalf("expected ErrSourceOutsideRoot, got %v", err)
	}

	if _, err := fetcher.Stat("in"); err == nil {
		t.Fatal("expected a directory to be refused as a source")
	}
	if _, err := fetcher.Stat("in/a.png"); err != nil {
		t.Fatalf("stat inside file: %v", err)
	}
}

func TestLocalFileFetcher_RefusesEscapingSymlink(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.png")
	if err := os.WriteFile(outside, []byte("outside"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link.png")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	fetcher := LocalFileFetcher{Root: root}
	if _, err := fetcher.Fetch(context.Background(), Request{SourceType: SourceTypeLocalFile, ObjectKey: "link.png"}); err == nil {
		t.Fatal("expected symlink leaving the root to be refused")
	}
	if _, err := fetcher.Stat("link.png"); err == nil {
		t.Fatal("expected stat through an escaping symlink to fail")
	}
}

func TestLocalFileFetcher_EmptyRootDisablesLocalFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.png")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	_, err := LocalFileFetcher{}.Fetch(context.Background(), Request{SourceType: SourceTypeLocalFile, ObjectKey: path})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected ErrUnsupportedSourceType, got %v", err)
	}
}

func TestProcessor_InvalidAction(t *testing.T) {
	processor, err := NewProcessor(staticFetcher{data: buildTestPNG(t, 8, 8)}, discardEmitter{}, Options{})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID: "job-bad-action",
		Edits: []domain.EditStep{{ID: "x", Action: "resize"}},
	})
	if !errors.Is(err, ErrInvalidStepAction) {
		t.Fatalf("expected ErrInvalidStepAction, got %v", err)
	}
}

func TestProcessor_PixelLimit(t *testing.T) {
	processor, err := NewProcessor(staticFetcher{data: buildTestPNG(t, 64, 64)}, discardEmitter{}, Options{MaxPixels: 100})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID: "job-too-large",
		Edits: []domain.EditStep{
			{ID: "neg", Action: domain.ActionProcess, Adjust: &domain.AdjustmentParameters{Negative: true}},
		},
	})
	if !errors.Is(err, codec.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func verifyImageSize(t *testing.T, path string, wantW, wantH int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open image %s: %v", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode image %s: %v", path, err)
	}

	if got := img.Bounds(); got.Dx() != wantW || got.Dy() != wantH {
		t.Fatalf("expected %dx%d, got %dx%d", wantW, wantH, got.Dx(), got.Dy())
	}
}
