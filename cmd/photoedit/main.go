// Command photoedit applies the photoflow edit pathways to a local file.
//
//	photoedit --in photo.jpg --out edited.png --contrast 40 --sepia --rotate 90
//
// The process pathway (adjustments and filters) runs first, then the
// transform pathway (rotate, flip, crop). A YAML preset supplies defaults;
// flags given on the command line win.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/dunamismax/photoflow/internal/codec"
	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/pipeline"
)

func main() {
	logger := log.New(os.Stderr, "[photoedit] ", log.LstdFlags|log.Lmsgprefix)

	if err := codec.Startup(); err != nil {
		logger.Fatalf("codec runtime startup failed: %v", err)
	}

	code := 0
	if err := run(os.Args[1:], logger); err != nil && !errors.Is(err, pflag.ErrHelp) {
		logger.Printf("error: %v", err)
		code = 1
	}
	codec.Shutdown()
	os.Exit(code)
}

type options struct {
	in        string
	out       string
	format    string
	quality   int
	maxPixels int64
	preset    string
	verbose   bool
	crop      string

	adjust    domain.AdjustmentParameters
	transform domain.TransformParameters
}

func newFlagSet(opts *options, output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("photoedit", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.SortFlags = false

	fs.StringVarP(&opts.in, "in", "i", "", "input image path (required)")
	fs.StringVarP(&opts.out, "out", "o", "", "output image path (required)")
	fs.StringVarP(&opts.format, "format", "f", "", "output format: png, jpeg or webp (default from --out extension)")
	fs.IntVarP(&opts.quality, "quality", "q", 0, "jpeg/webp quality 1-100 (0 uses the encoder default)")
	fs.Int64Var(&opts.maxPixels, "max-pixels", 0, "reject inputs with more pixels than this (0 disables)")
	fs.StringVarP(&opts.preset, "preset", "p", "", "YAML preset with adjust and transform sections")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log each stage and its duration")

	fs.IntVar((*int)(&opts.adjust.Brightness), "brightness", 0, "brightness offset, -255..255")
	fs.IntVar((*int)(&opts.adjust.Contrast), "contrast", 0, "contrast; 259 is treated as 258")
	fs.IntVar((*int)(&opts.adjust.Saturation), "saturation", 0, "saturation percent change, -100 removes colour")
	fs.IntVar((*int)(&opts.adjust.Sharpness), "sharpness", 0, "sharpen blend percent, 0..100")
	fs.BoolVar(&opts.adjust.Grayscale, "grayscale", false, "convert to grayscale")
	fs.BoolVar(&opts.adjust.Sepia, "sepia", false, "apply sepia tone")
	fs.BoolVar(&opts.adjust.Negative, "negative", false, "invert colours")
	fs.BoolVar(&opts.adjust.Blur, "blur", false, "15x15 gaussian blur")
	fs.BoolVar(&opts.adjust.EdgeMagnitude, "sobel", false, "sobel edge magnitude")

	fs.IntVar(&opts.transform.Rotate, "rotate", 0, "clockwise rotation: 90, 180 or 270")
	fs.StringVar(&opts.transform.Flip, "flip", "", "flip: horizontal (h) or vertical (v)")
	fs.StringVar(&opts.crop, "crop", "", "crop rectangle x,y,w,h applied after rotate and flip")
	return fs
}

func run(args []string, logger *log.Logger) error {
	var opts options
	fs := newFlagSet(&opts, os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(opts.in) == "" || strings.TrimSpace(opts.out) == "" {
		return fmt.Errorf("%w: --in and --out are required", domain.ErrInvalidParameter)
	}

	if opts.crop != "" {
		rect, err := parseCrop(opts.crop)
		if err != nil {
			return err
		}
		opts.transform.Crop = &rect
	}

	if opts.preset != "" {
		preset, err := loadPreset(opts.preset)
		if err != nil {
			return err
		}
		opts.adjust, opts.transform = preset.merge(fs, opts.adjust, opts.transform)
	}

	data, err := os.ReadFile(opts.in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	img, err := codec.Decoder{MaxPixels: opts.maxPixels}.Decode(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", opts.in, err)
	}

	orchestrator := pipeline.Orchestrator{}
	if opts.verbose {
		orchestrator.Observe = func(pathway, stage string, elapsed time.Duration) {
			logger.Printf("stage pathway=%s stage=%s elapsed=%s", pathway, stage, elapsed)
		}
	}

	img = orchestrator.RunAdjustAndFilter(img, opts.adjust)
	img, err = orchestrator.RunTransform(img, opts.transform)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}

	format := opts.format
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(opts.out), ".")
	}
	format = codec.NormalizeFormat(format)

	encoded, err := codec.Encode(img, format, opts.quality)
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	if err := os.WriteFile(opts.out, encoded, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	logger.Printf(
		"wrote path=%s format=%s size=%dx%d bytes=%d stages=%s",
		opts.out,
		format,
		img.Width,
		img.Height,
		len(encoded),
		strings.Join(append(pipeline.AdjustStages(opts.adjust), pipeline.TransformStages(opts.transform)...), ","),
	)
	return nil
}
