package centernet

import (
	"gorgonia.org/tensor"
)

// dims is the (batch, channels, height, width) layout of an NCHW tensor.
type dims struct {
	batch, channels, height, width int
}

func (d dims) plane() int { return d.height * d.width }

func (d dims) item() int { return d.channels * d.plane() }

func (d dims) shape() tensor.Shape {
	return tensor.Shape{d.batch, d.channels, d.height, d.width}
}

// nchw checks that t is a dense Float32 rank-4 tensor with positive dimensions and returns its
// layout and backing data.
func nchw(op, name string, t *tensor.Dense) (dims, []float32, error) {
	if t == nil {
		return dims{}, nil, shapeErrorf(op, "%s tensor is nil", name)
	}
	if t.Dtype() != tensor.Float32 {
		return dims{}, nil, shapeErrorf(op, "%s tensor must be float32, got %v", name, t.Dtype())
	}

	shape := t.Shape()
	if len(shape) != 4 {
		return dims{}, nil, shapeErrorf(op, "%s tensor must have rank 4 (batch, channels, height, width), got shape %v", name, shape)
	}
	for i, v := range shape {
		if v <= 0 {
			return dims{}, nil, shapeErrorf(op, "%s tensor dimension %d must be > 0, got shape %v", name, i, shape)
		}
	}

	data, ok := t.Data().([]float32)
	if !ok || len(data) != shape.TotalSize() {
		return dims{}, nil, shapeErrorf(op, "%s tensor data is not a contiguous float32 slice of %d elements", name, shape.TotalSize())
	}

	return dims{batch: shape[0], channels: shape[1], height: shape[2], width: shape[3]}, data, nil
}

// regression checks that a 2-channel regression head matches the heatmap's batch and spatial
// dimensions.
func regression(op, name string, t *tensor.Dense, batch, height, width int) ([]float32, error) {
	d, data, err := nchw(op, name, t)
	if err != nil {
		return nil, err
	}
	if d.channels != 2 {
		return nil, shapeErrorf(op, "%s tensor must have 2 channels, got %d", name, d.channels)
	}
	if d.batch != batch {
		return nil, shapeErrorf(op, "%s batch %d does not match heatmap batch %d", name, d.batch, batch)
	}
	if d.height != height || d.width != width {
		return nil, shapeErrorf(op, "%s spatial size %dx%d does not match heatmap %dx%d",
			name, d.height, d.width, height, width)
	}
	return data, nil
}

// heads is the validated view of the three network outputs.
type heads struct {
	dims    dims
	heatmap []float32
	offset  []float32
	wh      []float32
}

// validateHeads performs every shape precondition before any computation starts.
func validateHeads(op string, heatmap, offset, wh *tensor.Dense) (*heads, error) {
	d, hm, err := nchw(op, "heatmap", heatmap)
	if err != nil {
		return nil, err
	}
	off, err := regression(op, "offset", offset, d.batch, d.height, d.width)
	if err != nil {
		return nil, err
	}
	size, err := regression(op, "wh", wh, d.batch, d.height, d.width)
	if err != nil {
		return nil, err
	}
	return &heads{dims: d, heatmap: hm, offset: off, wh: size}, nil
}
