package centernet

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func dense(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func randomHeatmap(rng *rand.Rand, shape ...int) *tensor.Dense {
	n := 1
	for _, v := range shape {
		n *= v
	}
	data := make([]float32, n)
	for i := range data {
		// Coarse quantisation produces plateaus and ties.
		data[i] = float32(rng.Intn(20)) / 20
	}
	return dense(data, shape...)
}

func TestFilterPeaks(t *testing.T) {
	tests := []struct {
		name   string
		height int
		width  int
		input  []float32
		want   []float32
	}{
		{
			name:   "isolated peak",
			height: 3, width: 3,
			input: []float32{
				0.1, 0.2, 0.1,
				0.2, 0.9, 0.2,
				0.1, 0.2, 0.1,
			},
			want: []float32{
				0, 0, 0,
				0, 0.9, 0,
				0, 0, 0,
			},
		},
		{
			name:   "border peaks use clipped windows",
			height: 3, width: 4,
			input: []float32{
				0.8, 0.1, 0.1, 0.7,
				0.1, 0.1, 0.1, 0.1,
				0.1, 0.1, 0.1, 0.6,
			},
			want: []float32{
				0.8, 0, 0, 0.7,
				0, 0, 0, 0,
				0, 0, 0, 0.6,
			},
		},
		{
			name:   "adjacent equal peaks both survive",
			height: 3, width: 4,
			input: []float32{
				0, 0, 0, 0,
				0, 0.8, 0.8, 0,
				0, 0, 0, 0,
			},
			want: []float32{
				0, 0, 0, 0,
				0, 0.8, 0.8, 0,
				0, 0, 0, 0,
			},
		},
		{
			name:   "flat plateau is kept whole",
			height: 2, width: 2,
			input:  []float32{0.3, 0.3, 0.3, 0.3},
			want:   []float32{0.3, 0.3, 0.3, 0.3},
		},
		{
			name:   "single cell",
			height: 1, width: 1,
			input:  []float32{0.4},
			want:   []float32{0.4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]float32(nil), tt.input...)
			out, err := FilterPeaks(dense(in, 1, 1, tt.height, tt.width))
			require.NoError(t, err)

			assert.Equal(t, tensor.Shape{1, 1, tt.height, tt.width}, out.Shape())
			assert.Equal(t, tt.want, out.Data())
			assert.Equal(t, tt.input, in, "input must not be modified")
		})
	}
}

func TestFilterPeaksPlanesAreIndependent(t *testing.T) {
	// Channel 1 holds a larger value next to channel 0's peak. Pooling never crosses planes.
	data := []float32{
		0.5, 0,
		0, 0,

		0, 0.9,
		0, 0,
	}
	out, err := FilterPeaks(dense(data, 1, 2, 2, 2))
	require.NoError(t, err)

	assert.Equal(t, []float32{0.5, 0, 0, 0, 0, 0.9, 0, 0}, out.Data())
}

func TestFilterPeaksIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 20; i++ {
		hm := randomHeatmap(rng, 2, 3, 7, 9)

		once, err := FilterPeaks(hm)
		require.NoError(t, err)
		twice, err := FilterPeaks(once)
		require.NoError(t, err)

		assert.Equal(t, once.Data(), twice.Data())
	}
}

func TestGraphPeakFilterMatchesNative(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	graph := NewGraphPeakFilter()
	defer graph.Close()

	shapes := [][]int{{1, 1, 4, 4}, {2, 3, 6, 5}, {1, 2, 3, 7}}
	for _, shape := range shapes {
		for i := 0; i < 3; i++ {
			hm := randomHeatmap(rng, shape...)

			want, err := NativePeakFilter{}.Filter(hm)
			require.NoError(t, err)
			got, err := graph.Filter(hm)
			require.NoError(t, err)

			assert.Equal(t, want.Data(), got.Data(), "shape %v", shape)
		}
	}

	assert.Len(t, graph.graphs, len(shapes), "one compiled graph per shape")
}

func TestSelectTopK(t *testing.T) {
	tests := []struct {
		name        string
		values      []float32
		k           int
		wantScores  []float32
		wantIndices []int
	}{
		{
			name:        "descending scores",
			values:      []float32{0.1, 0.7, 0.3, 0.9},
			k:           2,
			wantScores:  []float32{0.9, 0.7},
			wantIndices: []int{3, 1},
		},
		{
			name:        "ties ordered by ascending index",
			values:      []float32{0.5, 0.9, 0.5, 0.9},
			k:           3,
			wantScores:  []float32{0.9, 0.9, 0.5},
			wantIndices: []int{1, 3, 0},
		},
		{
			name:        "k larger than axis",
			values:      []float32{0.2, 0.4},
			k:           5,
			wantScores:  []float32{0.4, 0.2},
			wantIndices: []int{1, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, indices := selectTopK(tt.values, tt.k)
			assert.Equal(t, tt.wantScores, scores)
			assert.Equal(t, tt.wantIndices, indices)
		})
	}
}

func TestExtractPeaks(t *testing.T) {
	// Two classes on a 3x3 grid. Class 1 holds the strongest peak.
	data := []float32{
		0.6, 0, 0,
		0, 0, 0,
		0, 0, 0.3,

		0, 0, 0,
		0, 0.8, 0,
		0, 0, 0,
	}

	peaks, err := ExtractPeaks(dense(data, 1, 2, 3, 3), 3)
	require.NoError(t, err)

	assert.Equal(t, 1, peaks.Batch())
	assert.Equal(t, 2, peaks.Classes)
	assert.Equal(t, 3, peaks.Height)
	assert.Equal(t, 3, peaks.Width)
	assert.Equal(t, []float32{0.8, 0.6, 0.3}, peaks.Scores[0])
	assert.Equal(t, []int{13, 0, 8}, peaks.Indices[0])
}

func TestExtractPeaksCountAndOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for _, topK := range []int{1, 5, 40, 500} {
		hm := randomHeatmap(rng, 3, 2, 5, 6)
		peaks, err := ExtractPeaks(hm, topK)
		require.NoError(t, err)

		want := min(topK, 2*5*6)
		for b := 0; b < 3; b++ {
			require.Len(t, peaks.Scores[b], want)
			require.Len(t, peaks.Indices[b], want)
			for k := 1; k < want; k++ {
				assert.GreaterOrEqual(t, peaks.Scores[b][k-1], peaks.Scores[b][k])
				if peaks.Scores[b][k-1] == peaks.Scores[b][k] {
					assert.Less(t, peaks.Indices[b][k-1], peaks.Indices[b][k])
				}
			}
		}
	}
}

func TestExtractPeaksErrors(t *testing.T) {
	_, err := ExtractPeaks(dense(make([]float32, 4), 1, 1, 2, 2), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = ExtractPeaks(dense(make([]float32, 4), 1, 2, 2), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShape)
}

func TestForEach(t *testing.T) {
	for _, workers := range []int{0, 1, 4, 64} {
		seen := make([]int, 50)
		forEach(len(seen), workers, func(i int) { seen[i]++ })
		for i, n := range seen {
			assert.Equal(t, 1, n, "workers=%d index=%d", workers, i)
		}
	}
}

func TestGraphPeakFilterCacheIsBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	graph := NewGraphPeakFilter()
	graph.maxGraphs = 2
	defer graph.Close()

	a, b, c := randomHeatmap(rng, 1, 1, 4, 4), randomHeatmap(rng, 1, 1, 5, 5), randomHeatmap(rng, 1, 1, 6, 6)
	for _, hm := range []*tensor.Dense{a, b, a, c} {
		_, err := graph.Filter(hm)
		require.NoError(t, err)
	}

	// b was least recently used when c arrived.
	assert.Len(t, graph.graphs, 2)
	assert.Equal(t, []string{fmt.Sprint(a.Shape()), fmt.Sprint(c.Shape())}, graph.recent)

	// An evicted shape is rebuilt on demand.
	want, err := FilterPeaks(b)
	require.NoError(t, err)
	got, err := graph.Filter(b)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Data())
	assert.Len(t, graph.graphs, 2)
}
