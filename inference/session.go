// Package inference - Inference sessions.
package inference

import (
	"github.com/nvr-ai/go-centernet/models/model"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Backend selects the ONNX Runtime execution provider.
type Backend string

const (
	// BackendCPU runs on the default CPU provider.
	BackendCPU Backend = "cpu"
	// BackendCUDA runs on the CUDA provider.
	BackendCUDA Backend = "cuda"
	// BackendCoreML runs on the CoreML provider.
	BackendCoreML Backend = "coreml"
)

// RuntimeConfig holds the ONNX Runtime settings.
type RuntimeConfig struct {
	// SharedLibrary overrides the onnxruntime shared library search path.
	SharedLibrary string `json:"shared_library" yaml:"shared_library"`
	// Backend is the execution provider, empty means CPU.
	Backend Backend `json:"backend" yaml:"backend"`
	// IntraOpThreads parallelises work inside a node. 0 lets onnxruntime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelises independent nodes. 0 lets onnxruntime decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// SessionArgs describes the tensors bound to a session.
type SessionArgs struct {
	Model   model.BaseModel
	Runtime RuntimeConfig
}

// Runner is a forward pass over preallocated tensors.
type Runner interface {
	// Input returns the flat input buffer, frame-major CHW.
	Input() []float32
	// Run executes the forward pass.
	Run() error
	// Heads copies the outputs of the last run.
	Heads() model.Heads
	// Close releases the tensors and the session.
	Close()
}

// Session binds a CenterNet ONNX graph to one input tensor and the heatmap, offset and wh
// output tensors.
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	heatmap *ort.Tensor[float32]
	offset  *ort.Tensor[float32]
	wh      *ort.Tensor[float32]
}

// NewSession loads the model and preallocates every tensor.
//
// Arguments:
//   - args: The model description and runtime settings.
//
// Returns:
//   - *Session: The session. The caller must Close it.
//   - error: An error if the description is invalid or onnxruntime fails.
func NewSession(args SessionArgs) (*Session, error) {
	m := args.Model
	if len(m.Inputs) != 1 {
		return nil, errors.Errorf("centernet takes exactly 1 input, got %d", len(m.Inputs))
	}
	if len(m.Outputs) != 3 {
		return nil, errors.Errorf("centernet produces 3 outputs (heatmap, offset, wh), got %d", len(m.Outputs))
	}
	if m.InputWidth <= 0 || m.InputHeight <= 0 || m.InputFrames <= 0 || m.NumClasses <= 0 || m.Stride <= 0 {
		return nil, errors.Errorf("invalid model geometry %dx%d, %d frames, %d classes, stride %d",
			m.InputWidth, m.InputHeight, m.InputFrames, m.NumClasses, m.Stride)
	}

	// Required once per process; it loads the native library and prepares internal state.
	if !ort.IsInitialized() {
		if args.Runtime.SharedLibrary != "" {
			ort.SetSharedLibraryPath(args.Runtime.SharedLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "error initializing ORT environment")
		}
	}

	s := &Session{}
	var err error

	inH, inW := int64(m.InputHeight), int64(m.InputWidth)
	outH, outW := inH/int64(m.Stride), inW/int64(m.Stride)

	if s.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(3*m.InputFrames), inH, inW)); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	if s.heatmap, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(m.NumClasses), outH, outW)); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating heatmap tensor")
	}
	if s.offset, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 2, outH, outW)); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating offset tensor")
	}
	if s.wh, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 2, outH, outW)); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating wh tensor")
	}

	options, err := sessionOptions(args.Runtime)
	if err != nil {
		s.Close()
		return nil, err
	}
	defer options.Destroy()

	s.session, err = ort.NewAdvancedSession(
		m.Path,
		m.Inputs,
		m.Outputs,
		[]ort.Value{s.input},
		[]ort.Value{s.heatmap, s.offset, s.wh},
		options,
	)
	if err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "error creating ORT session for %s", m.Path)
	}

	return s, nil
}

// sessionOptions configures threading, graph optimisation and the execution provider.
func sessionOptions(rt RuntimeConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := options.SetIntraOpNumThreads(rt.IntraOpThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(rt.InterOpThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	switch rt.Backend {
	case "", BackendCPU:
	case BackendCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "error enabling CoreML")
		}
	case BackendCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "error creating CUDA options")
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "error enabling CUDA")
		}
	default:
		options.Destroy()
		return nil, errors.Errorf("unknown backend %q", rt.Backend)
	}

	return options, nil
}

// Input returns the flat input buffer.
func (s *Session) Input() []float32 {
	return s.input.GetData()
}

// Run executes the forward pass.
func (s *Session) Run() error {
	if err := s.session.Run(); err != nil {
		return errors.Wrap(err, "error running ORT session")
	}
	return nil
}

// Heads copies the three outputs into dense tensors.
func (s *Session) Heads() model.Heads {
	return model.Heads{
		Heatmap: toDense(s.heatmap),
		Offset:  toDense(s.offset),
		WH:      toDense(s.wh),
	}
}

func toDense(t *ort.Tensor[float32]) *tensor.Dense {
	shape := t.GetShape()
	dims := make([]int, len(shape))
	for i, v := range shape {
		dims[i] = int(v)
	}
	data := append([]float32(nil), t.GetData()...)
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(data))
}

// Close releases the resources associated with the Session.
func (s *Session) Close() {
	for _, t := range []*ort.Tensor[float32]{s.input, s.heatmap, s.offset, s.wh} {
		if t != nil {
			t.Destroy()
		}
	}
	s.input, s.heatmap, s.offset, s.wh = nil, nil, nil, nil
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}
