package centernet

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// poolGraph is a compiled 3x3 max-pool for one input shape.
type poolGraph struct {
	g      *G.ExprGraph
	input  *G.Node
	pooled *G.Node
	vm     G.VM
}

// GraphPeakFilter runs the 3x3 max-pool of the peak filter as a gorgonia expression graph,
// the same operation the network export uses (MaxPool2d, kernel 3, stride 1, padding 1).
//
// A graph and tape machine are built lazily for every distinct heatmap shape and reused. At most
// MaxCachedGraphs shapes are kept, the least recently used one is closed when a new shape
// arrives. Filter is safe for concurrent use. Calls are serialised.
type GraphPeakFilter struct {
	mu     sync.Mutex
	graphs map[string]*poolGraph
	// recent lists cached shape keys, least recently used first.
	recent    []string
	maxGraphs int
}

// MaxCachedGraphs bounds the number of compiled shapes a GraphPeakFilter keeps.
const MaxCachedGraphs = 8

// NewGraphPeakFilter creates an empty graph filter.
func NewGraphPeakFilter() *GraphPeakFilter {
	return &GraphPeakFilter{graphs: make(map[string]*poolGraph), maxGraphs: MaxCachedGraphs}
}

// Filter keeps every value equal to its pooled maximum and zeroes the rest.
//
// Arguments:
//   - heatmap: The (batch, classes, height, width) heatmap. Not modified.
//
// Returns:
//   - *tensor.Dense: A new tensor of the same shape.
//   - error: A KindShape *Error for invalid input, or the graph execution error.
func (f *GraphPeakFilter) Filter(heatmap *tensor.Dense) (*tensor.Dense, error) {
	d, src, err := nchw("filter", "heatmap", heatmap)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	pg, err := f.graph(d)
	if err != nil {
		return nil, err
	}
	defer pg.vm.Reset()

	input := tensor.New(tensor.WithShape(d.shape()...), tensor.WithBacking(src))
	if err := G.Let(pg.input, input); err != nil {
		return nil, errors.Wrap(err, "can't bind heatmap to max-pool graph")
	}
	if err := pg.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "can't run max-pool graph")
	}

	pooled, ok := pg.pooled.Value().Data().([]float32)
	if !ok || len(pooled) != len(src) {
		return nil, errors.Errorf("max-pool graph produced %T, expected %d float32 values", pg.pooled.Value().Data(), len(src))
	}

	dst := make([]float32, len(src))
	for i, v := range src {
		if v == pooled[i] {
			dst[i] = v
		}
	}

	return tensor.New(tensor.WithShape(d.shape()...), tensor.WithBacking(dst)), nil
}

// graph returns the cached graph for d, building it on first use. f.mu must be held.
func (f *GraphPeakFilter) graph(d dims) (*poolGraph, error) {
	key := fmt.Sprint(d.shape())
	if pg, ok := f.graphs[key]; ok {
		f.touch(key)
		return pg, nil
	}

	g := G.NewGraph()
	input := G.NewTensor(g, tensor.Float32, 4, G.WithShape(d.shape()...), G.WithName("heatmap"))
	pooled, err := G.MaxPool2D(input, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, errors.Wrapf(err, "can't build max-pool graph for shape %v", d.shape())
	}

	for len(f.recent) >= f.maxGraphs && len(f.recent) > 0 {
		oldest := f.recent[0]
		f.recent = f.recent[1:]
		if old, ok := f.graphs[oldest]; ok {
			old.vm.Close()
			delete(f.graphs, oldest)
		}
	}

	pg := &poolGraph{g: g, input: input, pooled: pooled, vm: G.NewTapeMachine(g)}
	f.graphs[key] = pg
	f.recent = append(f.recent, key)
	return pg, nil
}

// touch marks key as most recently used. f.mu must be held.
func (f *GraphPeakFilter) touch(key string) {
	for i, k := range f.recent {
		if k == key {
			f.recent = append(append(f.recent[:i:i], f.recent[i+1:]...), key)
			return
		}
	}
}

// Close releases every cached tape machine.
func (f *GraphPeakFilter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var first error
	for key, pg := range f.graphs {
		if err := pg.vm.Close(); err != nil && first == nil {
			first = err
		}
		delete(f.graphs, key)
	}
	f.recent = nil
	return first
}
