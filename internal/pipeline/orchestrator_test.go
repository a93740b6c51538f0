package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dunamismax/photoflow/internal/adjust"
	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/filter"
	"github.com/dunamismax/photoflow/internal/geometry"
	"github.com/dunamismax/photoflow/internal/raster"
)

func gradientBuffer(t *testing.T, w, h int) *raster.Buffer {
	t.Helper()

	img, err := raster.New(w, h)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, raster.RGB(uint8(x*255/w), uint8(y*255/h), 90))
		}
	}
	return img
}

// splitBuffer is red on the left half and blue on the right.
func splitBuffer(t *testing.T, w, h int) *raster.Buffer {
	t.Helper()

	img, err := raster.New(w, h)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, raster.RGB(255, 0, 0))
			} else {
				img.Set(x, y, raster.RGB(0, 0, 255))
			}
		}
	}
	return img
}

func TestAdjustStagesOrder(t *testing.T) {
	all := domain.AdjustmentParameters{
		Brightness:    10,
		Contrast:      20,
		Saturation:    -30,
		Sharpness:     40,
		Grayscale:     true,
		Sepia:         true,
		Negative:      true,
		Blur:          true,
		EdgeMagnitude: true,
	}
	want := []string{"brightness", "contrast", "saturation", "sharpness", "grayscale", "sepia", "negative", "blur", "sobel"}
	if diff := cmp.Diff(want, AdjustStages(all)); diff != "" {
		t.Fatalf("stage order mismatch (-want +got):\n%s", diff)
	}

	if got := AdjustStages(domain.AdjustmentParameters{}); len(got) != 0 {
		t.Fatalf("expected no stages for zero params, got %v", got)
	}
}

func TestTransformStagesOrder(t *testing.T) {
	p := domain.TransformParameters{Rotate: 90, Flip: "h", Crop: &domain.CropRect{W: 1, H: 1}}
	want := []string{"rotate", "flip", "crop"}
	if diff := cmp.Diff(want, TransformStages(p)); diff != "" {
		t.Fatalf("stage order mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAdjustAndFilterZeroParamsIsIdentity(t *testing.T) {
	img := gradientBuffer(t, 16, 12)
	out := RunAdjustAndFilter(img, domain.AdjustmentParameters{})
	if !out.Equal(img) {
		t.Fatal("expected zero params to leave the image unchanged")
	}
}

func TestRunAdjustAndFilterMatchesManualComposition(t *testing.T) {
	img := gradientBuffer(t, 24, 18)
	p := domain.AdjustmentParameters{
		Brightness: 25,
		Contrast:   40,
		Sharpness:  30,
		Grayscale:  true,
		Negative:   true,
	}

	want := adjust.Brightness(img, 25)
	want = adjust.Contrast(want, 40)
	want = adjust.Sharpness(want, 30)
	want = filter.Grayscale(want)
	want = filter.Negative(want)

	got := RunAdjustAndFilter(img, p)
	if !got.Equal(want) {
		t.Fatal("orchestrated output differs from manual composition")
	}
}

func TestRunAdjustAndFilterClampsKnobs(t *testing.T) {
	img := gradientBuffer(t, 8, 8)

	over := RunAdjustAndFilter(img, domain.AdjustmentParameters{Brightness: 10_000, Contrast: 259, Sharpness: 400})
	atMax := RunAdjustAndFilter(img, domain.AdjustmentParameters{Brightness: domain.MaxBrightness, Contrast: 258, Sharpness: domain.MaxSharpness})
	if !over.Equal(atMax) {
		t.Fatal("expected out-of-range knobs to behave like their clamped values")
	}
}

func TestRunAdjustAndFilterPassesUnboundedKnobsThrough(t *testing.T) {
	img, err := raster.Filled(2, 2, raster.RGB(200, 150, 140))
	if err != nil {
		t.Fatalf("filled: %v", err)
	}

	cases := []struct {
		name   string
		params domain.AdjustmentParameters
		want   *raster.Buffer
	}{
		{"saturation 150", domain.AdjustmentParameters{Saturation: 150}, adjust.Saturation(img, 150)},
		{"saturation 400", domain.AdjustmentParameters{Saturation: 400}, adjust.Saturation(img, 400)},
		{"contrast 300", domain.AdjustmentParameters{Contrast: 300}, adjust.Contrast(img, 300)},
		{"contrast -400", domain.AdjustmentParameters{Contrast: -400}, adjust.Contrast(img, -400)},
	}
	for _, tc := range cases {
		got := RunAdjustAndFilter(img, tc.params)
		if !got.Equal(tc.want) {
			px, _ := got.At(0, 0)
			wantPx, _ := tc.want.At(0, 0)
			t.Fatalf("%s: orchestrator gave %v, engine gave %v", tc.name, px, wantPx)
		}
	}

	// A scale of 2.5 takes blue to 50; a scale of 2 would leave it at 80.
	px, _ := RunAdjustAndFilter(img, domain.AdjustmentParameters{Saturation: 150}).At(0, 0)
	if px.R() != 200 || px.B() >= 80 {
		t.Fatalf("expected fully boosted saturation, got %v", px)
	}
}

func TestRunAdjustAndFilterDoesNotMutateInput(t *testing.T) {
	img := gradientBuffer(t, 10, 10)
	before := img.Clone()

	RunAdjustAndFilter(img, domain.AdjustmentParameters{Brightness: 50, Sepia: true, Blur: true})
	if !img.Equal(before) {
		t.Fatal("input buffer was modified")
	}
}

func TestObserverSeesEnabledStagesInOrder(t *testing.T) {
	var seen []string
	o := Orchestrator{Observe: func(pathway, stage string, elapsed time.Duration) {
		if pathway != PathwayProcess {
			t.Errorf("unexpected pathway %q", pathway)
		}
		if elapsed < 0 {
			t.Errorf("negative elapsed for %s", stage)
		}
		seen = append(seen, stage)
	}}

	p := domain.AdjustmentParameters{Saturation: 20, Sepia: true, EdgeMagnitude: true}
	o.RunAdjustAndFilter(gradientBuffer(t, 8, 8), p)

	if diff := cmp.Diff(AdjustStages(p), seen); diff != "" {
		t.Fatalf("observed stages mismatch (-want +got):\n%s", diff)
	}
}

func TestRunTransformCropsAfterRotate(t *testing.T) {
	img := splitBuffer(t, 100, 50)

	// After a 90 degree turn the red half is on top, so a crop of the
	// first 50 rows of the 50x100 result is all red.
	out, err := RunTransform(img, domain.TransformParameters{
		Rotate: 90,
		Crop:   &domain.CropRect{X: 0, Y: 0, W: 50, H: 50},
	})
	if err != nil {
		t.Fatalf("run transform: %v", err)
	}
	if out.Width != 50 || out.Height != 50 {
		t.Fatalf("expected 50x50, got %dx%d", out.Width, out.Height)
	}
	for _, pt := range [][2]int{{0, 0}, {49, 0}, {0, 49}, {49, 49}} {
		px, _ := out.At(pt[0], pt[1])
		if px != raster.RGB(255, 0, 0) {
			t.Fatalf("pixel %v: expected red, got %v", pt, px)
		}
	}
}

func TestRunTransformMatchesManualComposition(t *testing.T) {
	img := gradientBuffer(t, 30, 20)
	p := domain.TransformParameters{
		Rotate: 270,
		Flip:   "vertical",
		Crop:   &domain.CropRect{X: 3, Y: 4, W: 10, H: 12},
	}

	want := geometry.Rotate(img, 270)
	want = geometry.Flip(want, geometry.FlipVertical)
	want, err := geometry.Crop(want, 3, 4, 10, 12)
	if err != nil {
		t.Fatalf("manual crop: %v", err)
	}

	got, err := RunTransform(img, p)
	if err != nil {
		t.Fatalf("run transform: %v", err)
	}
	if !got.Equal(want) {
		t.Fatal("orchestrated transform differs from manual composition")
	}
}

func TestRunTransformCropOnFarEdgeFails(t *testing.T) {
	img := gradientBuffer(t, 20, 10)

	_, err := RunTransform(img, domain.TransformParameters{Crop: &domain.CropRect{X: 20, Y: 0, W: 5, H: 5}})
	if !errors.Is(err, raster.ErrDimension) {
		t.Fatalf("expected ErrDimension, got %v", err)
	}
}

func TestRunTransformUnknownAngleAndFlipAreNoOps(t *testing.T) {
	img := gradientBuffer(t, 12, 9)

	out, err := RunTransform(img, domain.TransformParameters{Rotate: 45, Flip: "diagonal"})
	if err != nil {
		t.Fatalf("run transform: %v", err)
	}
	if !out.Equal(img) {
		t.Fatal("expected unsupported rotate and flip to leave the image unchanged")
	}
}
