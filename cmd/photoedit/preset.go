package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/dunamismax/photoflow/internal/domain"
)

// preset is the YAML file format:
//
//	adjust:
//	  contrast: 30
//	  sepia: true
//	transform:
//	  rotate: 90
//	  crop: {x: 0, y: 0, w: 400, h: 300}
type preset struct {
	Adjust    domain.AdjustmentParameters `yaml:"adjust"`
	Transform domain.TransformParameters  `yaml:"transform"`
}

func loadPreset(path string) (preset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return preset{}, fmt.Errorf("read preset: %w", err)
	}

	var p preset
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return preset{}, fmt.Errorf("%w: preset %s: %v", domain.ErrInvalidParameter, path, err)
	}
	return p, nil
}

// merge starts from the preset and overlays every flag the user set
// explicitly.
func (p preset) merge(fs *pflag.FlagSet, adjust domain.AdjustmentParameters, transform domain.TransformParameters) (domain.AdjustmentParameters, domain.TransformParameters) {
	a, t := p.Adjust, p.Transform
	set := fs.Changed

	if set("brightness") {
		a.Brightness = adjust.Brightness
	}
	if set("contrast") {
		a.Contrast = adjust.Contrast
	}
	if set("saturation") {
		a.Saturation = adjust.Saturation
	}
	if set("sharpness") {
		a.Sharpness = adjust.Sharpness
	}
	if set("grayscale") {
		a.Grayscale = adjust.Grayscale
	}
	if set("sepia") {
		a.Sepia = adjust.Sepia
	}
	if set("negative") {
		a.Negative = adjust.Negative
	}
	if set("blur") {
		a.Blur = adjust.Blur
	}
	if set("sobel") {
		a.EdgeMagnitude = adjust.EdgeMagnitude
	}

	if set("rotate") {
		t.Rotate = transform.Rotate
	}
	if set("flip") {
		t.Flip = transform.Flip
	}
	if set("crop") {
		t.Crop = transform.Crop
	}
	return a, t
}

func parseCrop(s string) (domain.CropRect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.CropRect{}, fmt.Errorf("%w: --crop wants x,y,w,h, got %q", domain.ErrInvalidParameter, s)
	}

	var v [4]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return domain.CropRect{}, fmt.Errorf("%w: --crop component %q is not an integer", domain.ErrInvalidParameter, part)
		}
		v[i] = n
	}
	return domain.CropRect{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}
