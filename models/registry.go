// Package models - registry for models.
package models

import (
	"fmt"

	"github.com/nvr-ai/go-centernet/models/centernet"
	"github.com/nvr-ai/go-centernet/models/model"
)

// NewModel creates a new detection model instance based on the specified model name.
//
// Arguments:
//   - args: Configuration parameters specifying the model name, location and options.
//
// Returns:
//   - model.Model: A fully configured model instance implementing the Model interface.
//   - error: An error if the model name is unsupported or the options are invalid.
//
// Example:
//
//	m, err := NewModel(model.NewModelArgs{
//	    Name:    model.ModelNameCenterNet,
//	    Path:    "/models/centernet_coco.onnx",
//	    Options: centernet.DefaultConfig(),
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
func NewModel(args model.NewModelArgs) (model.Model, error) {
	switch args.Name {
	case model.ModelNameCenterNet:
		m, err := centernet.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model name: %s", args.Name)
	}
}
