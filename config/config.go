// Package config loads the YAML configuration of the detector.
package config

import (
	"os"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-centernet/inference"
	"github.com/nvr-ai/go-centernet/models/centernet"
	"github.com/nvr-ai/go-centernet/models/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Model describes the network file and its input/output layout.
type Model struct {
	Name        model.Name   `yaml:"name"`
	Family      model.Family `yaml:"family"`
	Path        string       `yaml:"path"`
	InputWidth  int          `yaml:"input_width"`
	InputHeight int          `yaml:"input_height"`
	InputFrames int          `yaml:"input_frames"`
	NumClasses  int          `yaml:"num_classes"`
	Inputs      []string     `yaml:"inputs"`
	Outputs     []string     `yaml:"outputs"`
	Mean        [3]float32   `yaml:"mean"`
	Std         [3]float32   `yaml:"std"`
}

// Config is the complete detector configuration.
type Config struct {
	LogLevel string                  `yaml:"log_level"`
	Model    Model                   `yaml:"model"`
	Decoder  centernet.Config        `yaml:"decoder"`
	Runtime  inference.RuntimeConfig `yaml:"runtime"`
	// PlotThresh is the minimum score of a box drawn on annotated output images.
	PlotThresh float32 `yaml:"plot_thresh"`
}

// Default returns the configuration of a 512x512, two-frame COCO CenterNet.
func Default() Config {
	return Config{
		LogLevel: "info",
		Model: Model{
			Name:        model.ModelNameCenterNet,
			Family:      model.ModelFamilyCOCO,
			InputWidth:  512,
			InputHeight: 512,
			InputFrames: 2,
			NumClasses:  80,
			Inputs:      []string{"input"},
			Outputs:     []string{"heatmap", "offset", "wh"},
			Mean:        inference.ImageNetMean,
			Std:         inference.ImageNetStd,
		},
		Decoder:    centernet.DefaultConfig(),
		Runtime:    inference.RuntimeConfig{Backend: inference.BackendCPU},
		PlotThresh: 0.5,
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep their default.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The validated configuration.
//   - error: An error if the file can't be read, parsed or validated.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "can't read config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "can't parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the model section and delegates the decoder section to centernet.
func (c Config) Validate() error {
	m := c.Model
	if m.Name != model.ModelNameCenterNet {
		return errors.Errorf("unsupported model name: %s", m.Name)
	}
	if m.InputWidth <= 0 || m.InputHeight <= 0 {
		return errors.Errorf("model input size must be positive, got %dx%d", m.InputWidth, m.InputHeight)
	}
	// The session sizes its output grid as input / stride, so the scale must be a whole stride.
	scale := c.Decoder.Scale
	if math32.IsNaN(scale) || scale < 1 || scale != math32.Floor(scale) {
		return errors.Errorf("decoder scale must be a whole stride >= 1, got %v", scale)
	}
	stride := int(scale)
	if m.InputWidth%stride != 0 || m.InputHeight%stride != 0 {
		return errors.Errorf("model input %dx%d is not a multiple of the stride %d", m.InputWidth, m.InputHeight, stride)
	}
	if m.InputFrames <= 0 {
		return errors.Errorf("input_frames must be positive, got %d", m.InputFrames)
	}
	if m.NumClasses <= 0 {
		return errors.Errorf("num_classes must be positive, got %d", m.NumClasses)
	}
	if len(m.Inputs) != 1 || len(m.Outputs) != 3 {
		return errors.Errorf("expected 1 input and 3 outputs, got %d and %d", len(m.Inputs), len(m.Outputs))
	}
	for i, s := range m.Std {
		if s <= 0 {
			return errors.Errorf("std[%d] must be positive, got %v", i, s)
		}
	}
	if c.PlotThresh < 0 || c.PlotThresh > 1 {
		return errors.Errorf("plot_thresh must be in [0, 1], got %v", c.PlotThresh)
	}
	return c.Decoder.Validate()
}

// ModelArgs returns the registry arguments for the configured model.
func (c Config) ModelArgs() model.NewModelArgs {
	return model.NewModelArgs{
		Name:        c.Model.Name,
		Family:      c.Model.Family,
		Path:        c.Model.Path,
		Inputs:      c.Model.Inputs,
		Outputs:     c.Model.Outputs,
		InputWidth:  c.Model.InputWidth,
		InputHeight: c.Model.InputHeight,
		InputFrames: c.Model.InputFrames,
		NumClasses:  c.Model.NumClasses,
		Options:     c.Decoder,
	}
}
