// Package inference - Inference engine interface and implementation.
package inference

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/nvr-ai/go-centernet/logger"
	"github.com/nvr-ai/go-centernet/models"
	"github.com/nvr-ai/go-centernet/models/model"
	"github.com/nvr-ai/go-centernet/models/postprocess"
	"github.com/nvr-ai/go-centernet/profiler"
	"github.com/pkg/errors"
)

// Engine runs detection on a window of consecutive frames.
type Engine interface {
	Predict(ctx context.Context, frames []image.Image) (postprocess.DetectionSet, error)
	Model() model.BaseModel
	Close() error
}

// EngineBuilder assembles an Engine with a fluent API.
type EngineBuilder struct {
	runtime RuntimeConfig
	model   model.Model
	runner  Runner
	mean    [3]float32
	std     [3]float32
	log     *slog.Logger
	timings *profiler.Tracker
	err     error
}

// NewEngineBuilder creates a new engine builder with ImageNet normalisation.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{mean: ImageNetMean, std: ImageNetStd}
}

// WithRuntime sets the onnxruntime settings used when the builder creates the session.
func (b *EngineBuilder) WithRuntime(rt RuntimeConfig) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.runtime = rt
	return b
}

// WithModel sets the model for the engine.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args model.NewModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}
	m, err := models.NewModel(args)
	if err != nil {
		b.err = err
		return b
	}
	b.model = m
	return b
}

// WithNormalization overrides the per-channel mean and standard deviation.
func (b *EngineBuilder) WithNormalization(mean, std [3]float32) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.mean, b.std = mean, std
	return b
}

// WithRunner uses r instead of creating an onnxruntime session.
func (b *EngineBuilder) WithRunner(r Runner) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.runner = r
	return b
}

// WithLogger sets the engine logger. The global logger is used otherwise.
func (b *EngineBuilder) WithLogger(l *slog.Logger) *EngineBuilder {
	b.log = l
	return b
}

// WithProfiler records the preprocess, inference and decode time of every prediction in t.
func (b *EngineBuilder) WithProfiler(t *profiler.Tracker) *EngineBuilder {
	b.timings = t
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - Engine: The engine.
func (b *EngineBuilder) MustBuild() Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine.
//
// Returns:
//   - Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.model == nil {
		return nil, errors.New("model not configured")
	}

	opts := b.model.Options()
	if opts.InputFrames <= 0 || opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return nil, errors.Errorf("invalid model input %dx%d with %d frames",
			opts.InputWidth, opts.InputHeight, opts.InputFrames)
	}
	if opts.Stride <= 0 {
		return nil, errors.New("model stride must be a positive whole number, check the decoder scale")
	}

	runner := b.runner
	if runner == nil {
		s, err := NewSession(SessionArgs{Model: opts, Runtime: b.runtime})
		if err != nil {
			return nil, err
		}
		runner = s
	}

	log := b.log
	if log == nil {
		log = logger.L()
	}

	return &engine{
		model:   b.model,
		runner:  runner,
		mean:    b.mean,
		std:     b.std,
		log:     log.With("model", string(opts.Name)),
		timings: b.timings,
	}, nil
}

// engine implements the Engine interface.
type engine struct {
	// mu serialises access to the preallocated tensors of runner.
	mu      sync.Mutex
	model   model.Model
	runner  Runner
	mean    [3]float32
	std     [3]float32
	log     *slog.Logger
	timings *profiler.Tracker
}

// Predict detects objects in the newest frame of a window.
//
// Arguments:
//   - ctx: The context for the prediction.
//   - frames: Exactly InputFrames consecutive frames, oldest first. All frames must share one size.
//
// Returns:
//   - postprocess.DetectionSet: TopK rows with boxes in the pixel space of the frames.
//   - error: The error if any.
func (e *engine) Predict(ctx context.Context, frames []image.Image) (postprocess.DetectionSet, error) {
	opts := e.model.Options()
	if len(frames) != opts.InputFrames {
		return nil, errors.Errorf("model takes %d frames, got %d", opts.InputFrames, len(frames))
	}
	for i, f := range frames {
		if f == nil {
			return nil, errors.Errorf("frame %d is nil", i)
		}
	}
	size := frames[0].Bounds().Size()
	for i, f := range frames[1:] {
		if s := f.Bounds().Size(); s != size {
			return nil, errors.Errorf("frame %d is %dx%d, frame 0 is %dx%d", i+1, s.X, s.Y, size.X, size.Y)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "predict cancelled")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if err := PrepareInput(frames, opts.InputWidth, opts.InputHeight, e.mean, e.std, e.runner.Input()); err != nil {
		return nil, errors.Wrap(err, "error preparing input")
	}
	prepared := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "predict cancelled")
	}
	if err := e.runner.Run(); err != nil {
		return nil, err
	}
	ran := time.Now()

	sets, err := e.model.PostProcess(e.runner.Heads())
	if err != nil {
		return nil, errors.Wrap(err, "error decoding outputs")
	}
	if len(sets) != 1 {
		return nil, errors.Errorf("expected 1 batch item, got %d", len(sets))
	}

	set := postprocess.ResizeBoxes(sets[0], image.Pt(opts.InputWidth, opts.InputHeight), size)

	decoded := time.Now()

	if e.timings != nil {
		e.timings.Record("preprocess", prepared.Sub(start))
		e.timings.Record("inference", ran.Sub(prepared))
		e.timings.Record("decode", decoded.Sub(ran))
	}
	e.log.Debug("predicted",
		"detections", set.CountValid(),
		"preprocess", prepared.Sub(start),
		"inference", ran.Sub(prepared),
		"decode", decoded.Sub(ran),
	)
	return set, nil
}

// Model returns the model description.
func (e *engine) Model() model.BaseModel {
	return e.model.Options()
}

// Close releases the runner.
func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runner.Close()
	if c, ok := e.model.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
