package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidParameter = errors.New("invalid parameter")

// AdjustmentParameters drives the process pathway. The zero value has no
// effect.
type AdjustmentParameters struct {
	Brightness Brightness `json:"brightness" yaml:"brightness"`
	Contrast   Contrast   `json:"contrast" yaml:"contrast"`
	Saturation Saturation `json:"saturation" yaml:"saturation"`
	Sharpness  Sharpness  `json:"sharpness" yaml:"sharpness"`

	Grayscale     bool `json:"grayscale" yaml:"grayscale"`
	Sepia         bool `json:"sepia" yaml:"sepia"`
	Negative      bool `json:"negative" yaml:"negative"`
	Blur          bool `json:"blur" yaml:"blur"`
	EdgeMagnitude bool `json:"sobel" yaml:"sobel"`
}

type CropRect struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

// TransformParameters drives the transform pathway.
type TransformParameters struct {
	Rotate int       `json:"rotate" yaml:"rotate"`
	Flip   string    `json:"flip,omitempty" yaml:"flip,omitempty"`
	Crop   *CropRect `json:"crop,omitempty" yaml:"crop,omitempty"`
}

// ProcessRequest is the body of POST /process.
type ProcessRequest struct {
	Image string `json:"image"`
	AdjustmentParameters
}

// TransformRequest is the body of POST /transform.
type TransformRequest struct {
	Image string `json:"image"`
	TransformParameters
}

func (r ProcessRequest) Validate() error {
	return requireImage(r.Image)
}

func (r TransformRequest) Validate() error {
	return requireImage(r.Image)
}

func requireImage(image string) error {
	if strings.TrimSpace(image) == "" {
		return fmt.Errorf("%w: image is required", ErrInvalidParameter)
	}
	return nil
}
