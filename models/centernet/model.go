package centernet

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-centernet/models/model"
	"github.com/nvr-ai/go-centernet/models/postprocess"
)

// Model adapts a Decoder to the model.Model interface.
type Model struct {
	base    model.BaseModel
	decoder *Decoder
}

// NewModel creates a CenterNet model.
//
// Arguments:
//   - args: The model arguments. args.Options may carry a Config, otherwise DefaultConfig is used.
//
// Returns:
//   - *Model: The model.
//   - error: A KindConfig *Error if the options are invalid.
func NewModel(args model.NewModelArgs) (*Model, error) {
	cfg := DefaultConfig()
	switch opts := args.Options.(type) {
	case Config:
		cfg = opts
	case *Config:
		if opts != nil {
			cfg = *opts
		}
	case nil:
	default:
		return nil, configErrorf("new model", "unsupported options type %T", args.Options)
	}

	decoder, err := NewDecoder(cfg)
	if err != nil {
		return nil, err
	}

	family := args.Family
	if family == "" {
		family = model.ModelFamilyCOCO
	}

	return &Model{
		base: model.BaseModel{
			Name:        model.ModelNameCenterNet,
			Family:      family,
			Path:        args.Path,
			Inputs:      args.Inputs,
			Outputs:     args.Outputs,
			InputWidth:  args.InputWidth,
			InputHeight: args.InputHeight,
			InputFrames: args.InputFrames,
			NumClasses:  args.NumClasses,
			Stride:      stride(cfg.Scale),
		},
		decoder: decoder,
	}, nil
}

// stride returns scale as a whole backbone stride, or 0 when scale is fractional and no
// integer output grid matches it.
func stride(scale float32) int {
	if scale < 1 || scale != math32.Floor(scale) {
		return 0
	}
	return int(scale)
}

// Options returns the model description.
func (m *Model) Options() model.BaseModel {
	return m.base
}

// Decoder returns the underlying decoder.
func (m *Model) Decoder() *Decoder {
	return m.decoder
}

// PostProcess decodes one forward pass.
func (m *Model) PostProcess(heads model.Heads) ([]postprocess.DetectionSet, error) {
	out, err := m.decoder.Decode(heads.Heatmap, heads.Offset, heads.WH)
	if err != nil {
		return nil, err
	}
	return out.Detections, nil
}

// Close releases the decoder resources.
func (m *Model) Close() error {
	return m.decoder.Close()
}
