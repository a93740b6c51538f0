package pipeline

import (
	"time"

	"github.com/dunamismax/photoflow/internal/adjust"
	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/filter"
	"github.com/dunamismax/photoflow/internal/geometry"
	"github.com/dunamismax/photoflow/internal/raster"
)

// Pathway names, used as metric labels.
const (
	PathwayProcess   = "process"
	PathwayTransform = "transform"
)

// stage is one optional step of a pathway: it runs when enabled reports
// true for the request's parameters.
type stage[P any] struct {
	name    string
	enabled func(P) bool
	apply   func(*raster.Buffer, P) (*raster.Buffer, error)
}

func total[P any](fn func(*raster.Buffer, P) *raster.Buffer) func(*raster.Buffer, P) (*raster.Buffer, error) {
	return func(img *raster.Buffer, p P) (*raster.Buffer, error) {
		return fn(img, p), nil
	}
}

func filterStage(name string, flag func(domain.AdjustmentParameters) bool, fn func(*raster.Buffer) *raster.Buffer) stage[domain.AdjustmentParameters] {
	return stage[domain.AdjustmentParameters]{
		name:    name,
		enabled: flag,
		apply: func(img *raster.Buffer, _ domain.AdjustmentParameters) (*raster.Buffer, error) {
			return fn(img), nil
		},
	}
}

// adjustStages is the process pathway. Order is part of the output contract.
var adjustStages = []stage[domain.AdjustmentParameters]{
	{
		name:    "brightness",
		enabled: func(p domain.AdjustmentParameters) bool { return p.Brightness.Clamp() != 0 },
		apply: total(func(img *raster.Buffer, p domain.AdjustmentParameters) *raster.Buffer {
			return adjust.Brightness(img, p.Brightness.Clamp())
		}),
	},
	{
		name:    "contrast",
		enabled: func(p domain.AdjustmentParameters) bool { return p.Contrast.Clamp() != 0 },
		apply: total(func(img *raster.Buffer, p domain.AdjustmentParameters) *raster.Buffer {
			return adjust.Contrast(img, p.Contrast.Clamp())
		}),
	},
	{
		name:    "saturation",
		enabled: func(p domain.AdjustmentParameters) bool { return p.Saturation.Clamp() != 0 },
		apply: total(func(img *raster.Buffer, p domain.AdjustmentParameters) *raster.Buffer {
			return adjust.Saturation(img, p.Saturation.Clamp())
		}),
	},
	{
		name:    "sharpness",
		enabled: func(p domain.AdjustmentParameters) bool { return p.Sharpness.Clamp() > 0 },
		apply: total(func(img *raster.Buffer, p domain.AdjustmentParameters) *raster.Buffer {
			return adjust.Sharpness(img, p.Sharpness.Clamp())
		}),
	},
	filterStage("grayscale", func(p domain.AdjustmentParameters) bool { return p.Grayscale }, filter.Grayscale),
	filterStage("sepia", func(p domain.AdjustmentParameters) bool { return p.Sepia }, filter.Sepia),
	filterStage("negative", func(p domain.AdjustmentParameters) bool { return p.Negative }, filter.Negative),
	filterStage("blur", func(p domain.AdjustmentParameters) bool { return p.Blur }, filter.Blur),
	filterStage("sobel", func(p domain.AdjustmentParameters) bool { return p.EdgeMagnitude }, filter.EdgeMagnitude),
}

// transformStages is the transform pathway. Each stage sees the buffer
// produced by the previous one, so crop coordinates refer to the rotated
// and flipped image.
var transformStages = []stage[domain.TransformParameters]{
	{
		name:    "rotate",
		enabled: func(p domain.TransformParameters) bool { return p.Rotate != 0 },
		apply: total(func(img *raster.Buffer, p domain.TransformParameters) *raster.Buffer {
			return geometry.Rotate(img, p.Rotate)
		}),
	},
	{
		name:    "flip",
		enabled: func(p domain.TransformParameters) bool { return geometry.ParseFlipMode(p.Flip) != geometry.FlipNone },
		apply: total(func(img *raster.Buffer, p domain.TransformParameters) *raster.Buffer {
			return geometry.Flip(img, geometry.ParseFlipMode(p.Flip))
		}),
	},
	{
		name:    "crop",
		enabled: func(p domain.TransformParameters) bool { return p.Crop != nil },
		apply: func(img *raster.Buffer, p domain.TransformParameters) (*raster.Buffer, error) {
			return geometry.Crop(img, p.Crop.X, p.Crop.Y, p.Crop.W, p.Crop.H)
		},
	},
}

// StageObserver is told about every stage that ran.
type StageObserver func(pathway, stage string, elapsed time.Duration)

// Orchestrator runs the two pathways. It holds no per-request state; the
// zero value is ready to use.
type Orchestrator struct {
	Observe StageObserver
}

func (o Orchestrator) RunAdjustAndFilter(img *raster.Buffer, p domain.AdjustmentParameters) *raster.Buffer {
	// Every adjust stage is total, so the error is always nil.
	out, _ := run(o.Observe, PathwayProcess, adjustStages, img, p)
	return out
}

func (o Orchestrator) RunTransform(img *raster.Buffer, p domain.TransformParameters) (*raster.Buffer, error) {
	return run(o.Observe, PathwayTransform, transformStages, img, p)
}

func RunAdjustAndFilter(img *raster.Buffer, p domain.AdjustmentParameters) *raster.Buffer {
	return Orchestrator{}.RunAdjustAndFilter(img, p)
}

func RunTransform(img *raster.Buffer, p domain.TransformParameters) (*raster.Buffer, error) {
	return Orchestrator{}.RunTransform(img, p)
}

// AdjustStages lists, in execution order, the stages p would run.
func AdjustStages(p domain.AdjustmentParameters) []string {
	return enabledStages(adjustStages, p)
}

// TransformStages lists, in execution order, the stages p would run.
func TransformStages(p domain.TransformParameters) []string {
	return enabledStages(transformStages, p)
}

func run[P any](observe StageObserver, pathway string, stages []stage[P], img *raster.Buffer, p P) (*raster.Buffer, error) {
	for _, st := range stages {
		if !st.enabled(p) {
			continue
		}
		started := time.Now()
		next, err := st.apply(img, p)
		if err != nil {
			return nil, err
		}
		if observe != nil {
			observe(pathway, st.name, time.Since(started))
		}
		img = next
	}
	return img, nil
}

func enabledStages[P any](stages []stage[P], p P) []string {
	names := make([]string, 0, len(stages))
	for _, st := range stages {
		if st.enabled(p) {
			names = append(names, st.name)
		}
	}
	return names
}
