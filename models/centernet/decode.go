package centernet

import (
	"github.com/nvr-ai/go-centernet/models/model"
	"github.com/nvr-ai/go-centernet/models/postprocess"
	"gorgonia.org/tensor"
)

// Decoder turns CenterNet heads into fixed-size detection sets.
//
// A Decoder is safe for concurrent use.
type Decoder struct {
	config Config
	filter PeakFilter
	nms    *postprocess.NMSConfig
}

// NewDecoder validates cfg and builds a decoder.
//
// Arguments:
//   - cfg: The decoder parameters.
//
// Returns:
//   - *Decoder: The decoder.
//   - error: A KindConfig *Error if cfg is invalid.
func NewDecoder(cfg Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var filter PeakFilter = NativePeakFilter{}
	if cfg.GraphPeakFilter {
		filter = NewGraphPeakFilter()
	}

	return &Decoder{config: cfg, filter: filter, nms: cfg.NMSConfig()}, nil
}

// Config returns the decoder parameters.
func (d *Decoder) Config() Config {
	return d.config
}

// Decode runs peak extraction, box reconstruction, gating and, when enabled, per-class
// suppression.
//
// Every shape precondition is checked before any computation starts.
//
// Arguments:
//   - heatmap: The (batch, classes, height, width) centre likelihood.
//   - offset: The (batch, 2, height, width) sub-pixel offset.
//   - wh: The (batch, 2, height, width) box size.
//
// Returns:
//   - *Output: Exactly TopK rows per batch item.
//   - error: A KindShape *Error for mismatched inputs.
func (d *Decoder) Decode(heatmap, offset, wh *tensor.Dense) (*Output, error) {
	if _, err := validateHeads("decode", heatmap, offset, wh); err != nil {
		return nil, err
	}

	filtered, err := d.filter.Filter(heatmap)
	if err != nil {
		return nil, err
	}

	peaks, err := selectPeaks(filtered, d.config.TopK, d.config.NumWorkers)
	if err != nil {
		return nil, err
	}

	candidates, err := reconstruct(peaks, offset, wh, d.config.NumWorkers)
	if err != nil {
		return nil, err
	}

	sets := Gate(candidates, d.config.ExceptClassThresh, d.config.Scale, d.config.TopK)
	if d.config.NMS {
		sets = postprocess.SuppressPerClass(sets, d.nms)
	}

	return &Output{Detections: sets, TopK: d.config.TopK}, nil
}

// Close releases the resources held by the peak filter.
func (d *Decoder) Close() error {
	if c, ok := d.filter.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Output is the decoded result of one batch.
type Output struct {
	// Detections holds one set of TopK rows per batch item.
	Detections []postprocess.DetectionSet
	// TopK is the number of rows per batch item.
	TopK int
}

// Tensors packs the detections into the dense layout of the exported graph.
//
// Returns:
//   - ids: (batch, TopK, 1) class ids, -1 for sentinels.
//   - scores: (batch, TopK, 1) scores, -1 for sentinels.
//   - boxes: (batch, TopK, 4) x1, y1, x2, y2, -1 for sentinels.
func (o *Output) Tensors() (ids, scores, boxes *tensor.Dense) {
	batch, k := len(o.Detections), o.TopK

	idData := make([]float32, batch*k)
	scoreData := make([]float32, batch*k)
	boxData := make([]float32, batch*k*4)
	for i := range idData {
		idData[i] = postprocess.SentinelValue
		scoreData[i] = postprocess.SentinelValue
	}
	for i := range boxData {
		boxData[i] = postprocess.SentinelValue
	}

	for b, set := range o.Detections {
		for j, r := range set {
			if j >= k || !r.Valid {
				continue
			}
			row := b*k + j
			idData[row] = float32(r.Class)
			scoreData[row] = r.Score
			copy(boxData[row*4:row*4+4], []float32{r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2})
		}
	}

	ids = tensor.New(tensor.WithShape(batch, k, 1), tensor.WithBacking(idData))
	scores = tensor.New(tensor.WithShape(batch, k, 1), tensor.WithBacking(scoreData))
	boxes = tensor.New(tensor.WithShape(batch, k, 4), tensor.WithBacking(boxData))
	return ids, scores, boxes
}

// Decode builds a decoder for cfg and decodes a single forward pass.
func Decode(cfg Config, heads model.Heads) (*Output, error) {
	d, err := NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	return d.Decode(heads.Heatmap, heads.Offset, heads.WH)
}
