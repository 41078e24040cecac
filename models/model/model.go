// Package model - Definitions shared by every detection model.
package model

import (
	"github.com/nvr-ai/go-centernet/models/postprocess"
	"gorgonia.org/tensor"
)

// Family is the dataset family a model was trained on.
type Family string

const (
	// ModelFamilyCOCO is the COCO model family.
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyVOC is the Pascal VOC model family.
	ModelFamilyVOC Family = "voc"
	// ModelFamilyCustom is a model trained on a project specific class list.
	ModelFamilyCustom Family = "custom"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameCenterNet is the name of the CenterNet keypoint detector.
	ModelNameCenterNet Name = "centernet"
)

// Heads holds the three dense outputs of a CenterNet forward pass.
type Heads struct {
	// Heatmap is the (batch, classes, height, width) centre likelihood.
	Heatmap *tensor.Dense
	// Offset is the (batch, 2, height, width) sub-pixel centre offset.
	Offset *tensor.Dense
	// WH is the (batch, 2, height, width) box width and height.
	WH *tensor.Dense
}

// BaseModel describes how to run a model.
type BaseModel struct {
	Name        Name     `json:"name" yaml:"name"`
	Family      Family   `json:"family" yaml:"family"`
	Path        string   `json:"path" yaml:"path"`
	Inputs      []string `json:"inputs" yaml:"inputs"`
	Outputs     []string `json:"outputs" yaml:"outputs"`
	InputWidth  int      `json:"input_width" yaml:"input_width"`
	InputHeight int      `json:"input_height" yaml:"input_height"`
	// InputFrames is the number of consecutive RGB frames stacked on the channel axis.
	InputFrames int `json:"input_frames" yaml:"input_frames"`
	// NumClasses is the number of heatmap channels.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// Stride is the input-to-heatmap downsampling factor.
	Stride int `json:"stride" yaml:"stride"`
}

// Options is a marker interface for model-specific options.
type Options interface {
	IsOptions()
}

// Model decodes network outputs into fixed-size detection sets.
type Model interface {
	Options() BaseModel
	PostProcess(heads Heads) ([]postprocess.DetectionSet, error)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name        Name     `json:"name" yaml:"name"`
	Family      Family   `json:"family" yaml:"family"`
	Path        string   `json:"path" yaml:"path"`
	Inputs      []string `json:"inputs" yaml:"inputs"`
	Outputs     []string `json:"outputs" yaml:"outputs"`
	InputWidth  int      `json:"input_width" yaml:"input_width"`
	InputHeight int      `json:"input_height" yaml:"input_height"`
	InputFrames int      `json:"input_frames" yaml:"input_frames"`
	NumClasses  int      `json:"num_classes" yaml:"num_classes"`
	// Options carries the model-specific options, nil selects the model defaults.
	Options Options `json:"-" yaml:"-"`
}
