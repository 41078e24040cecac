package centernet

import (
	"container/heap"
	"runtime"
	"sort"
	"sync"

	"gorgonia.org/tensor"
)

// PeakFilter suppresses non-local-maxima in a (batch, classes, height, width) heatmap.
type PeakFilter interface {
	Filter(heatmap *tensor.Dense) (*tensor.Dense, error)
}

// NativePeakFilter implements the 3x3 max-pool equality filter with plain loops.
type NativePeakFilter struct{}

// Filter keeps every value equal to the maximum of its 3x3 neighbourhood and zeroes the rest.
//
// The neighbourhood is clipped at the borders (max-pool with padding 1 and stride 1, padded
// cells never win). Equal neighbours are all kept, so flat plateaus survive whole.
//
// Arguments:
//   - heatmap: The (batch, classes, height, width) heatmap. Not modified.
//
// Returns:
//   - *tensor.Dense: A new tensor of the same shape.
//   - error: A KindShape *Error if heatmap is not a valid NCHW float32 tensor.
func (NativePeakFilter) Filter(heatmap *tensor.Dense) (*tensor.Dense, error) {
	d, src, err := nchw("filter", "heatmap", heatmap)
	if err != nil {
		return nil, err
	}

	dst := make([]float32, len(src))
	plane := d.plane()
	for p := 0; p < d.batch*d.channels; p++ {
		filterPlane(src[p*plane:(p+1)*plane], dst[p*plane:(p+1)*plane], d.height, d.width)
	}

	return tensor.New(tensor.WithShape(d.shape()...), tensor.WithBacking(dst)), nil
}

func filterPlane(src, dst []float32, height, width int) {
	for y := 0; y < height; y++ {
		y0, y1 := max(y-1, 0), min(y+1, height-1)
		for x := 0; x < width; x++ {
			x0, x1 := max(x-1, 0), min(x+1, width-1)

			v := src[y*width+x]
			peak := v
			for yy := y0; yy <= y1; yy++ {
				row := src[yy*width : (yy+1)*width]
				for xx := x0; xx <= x1; xx++ {
					if row[xx] > peak {
						peak = row[xx]
					}
				}
			}

			if v == peak {
				dst[y*width+x] = v
			}
		}
	}
}

// FilterPeaks applies the native 3x3 max-pool equality filter.
func FilterPeaks(heatmap *tensor.Dense) (*tensor.Dense, error) {
	return NativePeakFilter{}.Filter(heatmap)
}

// Peaks holds the top-K picks of every batch item.
type Peaks struct {
	// Scores[b] is sorted in descending order.
	Scores [][]float32
	// Indices[b][k] is the flat index of Scores[b][k] in the (class, height, width) space.
	Indices [][]int
	// Classes, Height and Width describe the heatmap the indices refer to.
	Classes, Height, Width int
}

// Batch returns the number of batch items.
func (p *Peaks) Batch() int {
	return len(p.Scores)
}

// ExtractPeaks filters the heatmap and selects the topK strongest activations per batch item
// across all classes and positions jointly.
//
// Picks are sorted by descending score. Equal scores are ordered by ascending flat index.
// When topK exceeds classes*height*width, each item yields every position. Zero-valued
// positions fill the ranking once the non-zero survivors run out.
//
// Arguments:
//   - heatmap: The (batch, classes, height, width) heatmap.
//   - topK: The number of picks per batch item.
//
// Returns:
//   - *Peaks: The selected scores and flat indices.
//   - error: A KindShape or KindConfig *Error.
func ExtractPeaks(heatmap *tensor.Dense, topK int) (*Peaks, error) {
	if topK <= 0 {
		return nil, configErrorf("extract", "top_k must be greater than 0, got %d", topK)
	}

	filtered, err := FilterPeaks(heatmap)
	if err != nil {
		return nil, err
	}

	return selectPeaks(filtered, topK, 0)
}

// selectPeaks ranks an already filtered heatmap, one goroutine per batch item up to workers.
func selectPeaks(filtered *tensor.Dense, topK, workers int) (*Peaks, error) {
	d, data, err := nchw("extract", "heatmap", filtered)
	if err != nil {
		return nil, err
	}

	peaks := &Peaks{
		Scores:  make([][]float32, d.batch),
		Indices: make([][]int, d.batch),
		Classes: d.channels,
		Height:  d.height,
		Width:   d.width,
	}

	item := d.item()
	forEach(d.batch, workers, func(b int) {
		peaks.Scores[b], peaks.Indices[b] = selectTopK(data[b*item:(b+1)*item], topK)
	})

	return peaks, nil
}

// peak is a candidate position in the flattened ranking axis.
type peak struct {
	score float32
	index int
}

// better orders peaks by descending score, then ascending index.
func (p peak) better(o peak) bool {
	if p.score != o.score {
		return p.score > o.score
	}
	return p.index < o.index
}

// peakHeap is a min-heap whose root is the worst of the current top-K.
type peakHeap []peak

func (h peakHeap) Len() int            { return len(h) }
func (h peakHeap) Less(i, j int) bool  { return h[j].better(h[i]) }
func (h peakHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *peakHeap) Push(x interface{}) { *h = append(*h, x.(peak)) }
func (h *peakHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// selectTopK returns the k best values of a flat ranking axis in descending order.
func selectTopK(values []float32, k int) ([]float32, []int) {
	if k > len(values) {
		k = len(values)
	}

	h := make(peakHeap, 0, k)
	for i, v := range values {
		p := peak{score: v, index: i}
		if len(h) < k {
			heap.Push(&h, p)
			continue
		}
		if p.better(h[0]) {
			h[0] = p
			heap.Fix(&h, 0)
		}
	}

	sort.Slice(h, func(i, j int) bool { return h[i].better(h[j]) })

	scores := make([]float32, len(h))
	indices := make([]int, len(h))
	for i, p := range h {
		scores[i] = p.score
		indices[i] = p.index
	}
	return scores, indices
}

// forEach runs fn for every i in [0, n) on a bounded pool of goroutines.
func forEach(n, workers int, fn func(i int)) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	wg.Wait()
}
