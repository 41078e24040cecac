package centernet

import (
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-centernet/images"
	"github.com/nvr-ai/go-centernet/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestReconstruct(t *testing.T) {
	// Batch of 2 on a 2x3 grid with 2 classes. Offsets and sizes differ per cell and per item so
	// a lookup at the wrong position shows up.
	const h, w = 2, 3
	plane := h * w

	offset := make([]float32, 2*2*plane)
	wh := make([]float32, 2*2*plane)
	for b := 0; b < 2; b++ {
		for i := 0; i < plane; i++ {
			base := b * 2 * plane
			offset[base+i] = 0.1 * float32(i+1)
			offset[base+plane+i] = 0.01 * float32(i+1)
			wh[base+i] = float32(b*10 + i + 1)
			wh[base+plane+i] = float32(b*10 + i + 2)
		}
	}

	peaks := &Peaks{
		Scores:  [][]float32{{0.9, 0.4}, {0.7}},
		Indices: [][]int{{1*plane + 1*w + 2, 0}, {4}},
		Classes: 2,
		Height:  h,
		Width:   w,
	}

	got, err := Reconstruct(peaks, dense(offset, 2, 2, h, w), dense(wh, 2, 2, h, w))
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Item 0, pick 0: class 1, row 1, col 2, spatial 5.
	first := got[0][0]
	assert.Equal(t, 1, first.ClassID)
	assert.Equal(t, float32(0.9), first.Score)
	assert.InDelta(t, 2.6, first.CX, 1e-6)
	assert.InDelta(t, 1.06, first.CY, 1e-6)
	assert.Equal(t, float32(6), first.W)
	assert.Equal(t, float32(7), first.H)

	// Item 0, pick 1: class 0, row 0, col 0.
	second := got[0][1]
	assert.Equal(t, 0, second.ClassID)
	assert.InDelta(t, 0.1, second.CX, 1e-6)
	assert.InDelta(t, 0.01, second.CY, 1e-6)

	// Item 1 reads its own regressions: spatial 4 is row 1, col 1.
	third := got[1][0]
	assert.Equal(t, 0, third.ClassID)
	assert.InDelta(t, 1.5, third.CX, 1e-6)
	assert.InDelta(t, 1.05, third.CY, 1e-6)
	assert.Equal(t, float32(15), third.W)
	assert.Equal(t, float32(16), third.H)
}

func TestReconstructErrors(t *testing.T) {
	good := dense(make([]float32, 2*4), 1, 2, 2, 2)
	peaks := func(indices ...int) *Peaks {
		return &Peaks{
			Scores:  [][]float32{make([]float32, len(indices))},
			Indices: [][]int{indices},
			Classes: 1, Height: 2, Width: 2,
		}
	}

	tests := []struct {
		name   string
		peaks  *Peaks
		offset *tensor.Dense
	}{
		{"nil peaks", nil, good},
		{"index out of range", peaks(4), good},
		{"negative index", peaks(-1), good},
		{"offset with 3 channels", peaks(0), dense(make([]float32, 3*4), 1, 3, 2, 2)},
		{"offset with wrong spatial size", peaks(0), dense(make([]float32, 2*6), 1, 2, 3, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconstruct(tt.peaks, tt.offset, good)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrShape)
		})
	}
}

func TestCandidateBox(t *testing.T) {
	c := Candidate{CX: 2, CY: 1, W: 2, H: 2}
	assert.Equal(t, images.Rect{X1: 1, Y1: 0, X2: 3, Y2: 2}, c.Box())
}

func TestGate(t *testing.T) {
	candidates := [][]Candidate{{
		{ClassID: 3, Score: 0.8, CX: 2, CY: 2, W: 2, H: 4},
		{ClassID: 1, Score: 0.01, CX: 5, CY: 5, W: 1, H: 1},
		{ClassID: 2, Score: 0.5, CX: 1, CY: 1, W: 2, H: 2},
	}}

	sets := Gate(candidates, 0.01, 4, 5)
	require.Len(t, sets, 1)
	set := sets[0]
	require.Len(t, set, 5)

	assert.Equal(t, postprocess.Result{
		Box: images.Rect{X1: 4, Y1: 0, X2: 12, Y2: 16}, Score: 0.8, Class: 3, Valid: true,
	}, set[0])
	assert.Equal(t, postprocess.Sentinel(), set[1], "score equal to the floor is gated")
	assert.Equal(t, postprocess.Result{
		Box: images.Rect{X1: 0, Y1: 0, X2: 8, Y2: 8}, Score: 0.5, Class: 2, Valid: true,
	}, set[2])
	assert.Equal(t, postprocess.Sentinel(), set[3], "padding")
	assert.Equal(t, postprocess.Sentinel(), set[4], "padding")
}

func TestReconstructAcrossWorkers(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	heatmap, offset, wh := randomHeads(rng, 6, 2, 5, 5)

	peaks, err := ExtractPeaks(heatmap, 12)
	require.NoError(t, err)

	want, err := reconstruct(peaks, offset, wh, 1)
	require.NoError(t, err)
	require.Len(t, want, 6)

	for _, workers := range []int{0, 3, 16} {
		got, err := reconstruct(peaks, offset, wh, workers)
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers=%d", workers)
	}

	// A bad index in a later batch item still fails the whole call.
	peaks.Indices[5][0] = 2 * 5 * 5
	_, err = reconstruct(peaks, offset, wh, 4)
	assert.ErrorIs(t, err, ErrShape)
}
