// Package centernet - decodes CenterNet heatmap/offset/wh heads into ranked detections.
//
// Decoding runs three stages on a batch of same-shaped tensors:
//
//  1. Peak extraction: a 3x3 max-pool equality filter suppresses non-local-maxima, then the
//     top-K activations per batch item are selected jointly over (class, row, column).
//  2. Box reconstruction: each pick is mapped back to (class, row, column) and combined with
//     the offset and size regressions at its own position, then rescaled by the stride.
//  3. Per-class greedy suppression (optional).
//
// Every batch item always yields exactly TopK rows. Empty rows are sentinels (see
// postprocess.Sentinel).
package centernet

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-centernet/models/postprocess"
)

// Config holds the decoder parameters.
type Config struct {
	// TopK is the number of picks per batch item.
	TopK int `json:"top_k" yaml:"top_k"`
	// Scale maps heatmap grid coordinates to input-image pixels (the backbone stride).
	Scale float32 `json:"scale" yaml:"scale"`
	// NMS enables per-class greedy suppression.
	NMS bool `json:"nms" yaml:"nms"`
	// ExceptClassThresh is the confidence floor. Picks scoring at or below it become sentinels.
	ExceptClassThresh float32 `json:"except_class_thresh" yaml:"except_class_thresh"`
	// NMSThresh is the overlap above which a lower scoring box is suppressed.
	NMSThresh float32 `json:"nms_thresh" yaml:"nms_thresh"`
	// Overlap selects the overlap formula used by suppression.
	Overlap postprocess.OverlapMode `json:"overlap" yaml:"overlap"`
	// NumWorkers bounds the fan-out over batch items and classes. 0 uses runtime.NumCPU().
	NumWorkers int `json:"num_workers" yaml:"num_workers"`
	// GraphPeakFilter runs the 3x3 max-pool through a gorgonia graph instead of native loops.
	GraphPeakFilter bool `json:"graph_peak_filter" yaml:"graph_peak_filter"`
}

// IsOptions marks Config as model options for the model registry.
func (Config) IsOptions() {}

// DefaultConfig returns the defaults used when training CenterNet.
//
// Returns:
//   - Config: TopK 100, stride 4, NMS disabled, confidence floor 0.01, NMS threshold 0.5.
func DefaultConfig() Config {
	return Config{
		TopK:              100,
		Scale:             4,
		NMS:               false,
		ExceptClassThresh: 0.01,
		NMSThresh:         0.5,
		Overlap:           postprocess.OverlapIoU,
		NumWorkers:        0,
		GraphPeakFilter:   false,
	}
}

// Validate checks the configuration.
//
// Returns:
//   - error: A KindConfig *Error describing the first invalid field, nil otherwise.
func (c Config) Validate() error {
	const op = "validate"

	if c.TopK <= 0 {
		return configErrorf(op, "top_k must be greater than 0, got %d", c.TopK)
	}
	if math32.IsNaN(c.Scale) || c.Scale <= 0 {
		return configErrorf(op, "scale must be greater than 0, got %v", c.Scale)
	}
	if math32.IsNaN(c.ExceptClassThresh) || c.ExceptClassThresh < 0 || c.ExceptClassThresh > 1 {
		return configErrorf(op, "except_class_thresh must be in [0, 1], got %v", c.ExceptClassThresh)
	}
	if c.NMS && (math32.IsNaN(c.NMSThresh) || c.NMSThresh <= 0 || c.NMSThresh >= 1) {
		return configErrorf(op, "nms_thresh must be in (0, 1) when nms is enabled, got %v", c.NMSThresh)
	}
	if !c.Overlap.Known() {
		return configErrorf(op, "unknown overlap mode %q", c.Overlap)
	}
	if c.NumWorkers < 0 {
		return configErrorf(op, "num_workers must not be negative, got %d", c.NumWorkers)
	}

	return nil
}

// NMSConfig returns the suppression parameters derived from c.
func (c Config) NMSConfig() *postprocess.NMSConfig {
	return &postprocess.NMSConfig{
		IoUThreshold: c.NMSThresh,
		Overlap:      c.Overlap,
		NumWorkers:   c.NumWorkers,
	}
}
