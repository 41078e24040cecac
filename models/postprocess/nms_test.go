package postprocess

import (
	"image"
	"testing"

	"github.com/nvr-ai/go-centernet/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det(class int, score float32, x1, y1, x2, y2 float32) Result {
	return Result{
		Box:   images.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Score: score,
		Class: class,
		Valid: true,
	}
}

func TestSuppressPerClass(t *testing.T) {
	config := &NMSConfig{IoUThreshold: 0.5, Overlap: OverlapIoU, NumWorkers: 2}

	tests := []struct {
		name     string
		input    DetectionSet
		expected DetectionSet
	}{
		{
			// Boxes overlap with IoU = 90/100.
			name: "High overlap keeps the higher score",
			input: DetectionSet{
				det(0, 0.9, 0, 0, 10, 10),
				det(0, 0.7, 0, 0, 10, 9),
			},
			expected: DetectionSet{
				det(0, 0.9, 0, 0, 10, 10),
				Sentinel(),
			},
		},
		{
			name: "Slot order is not score order",
			input: DetectionSet{
				det(0, 0.7, 0, 0, 10, 9),
				det(0, 0.9, 0, 0, 10, 10),
			},
			expected: DetectionSet{
				Sentinel(),
				det(0, 0.9, 0, 0, 10, 10),
			},
		},
		{
			name: "Different classes never suppress each other",
			input: DetectionSet{
				det(0, 0.9, 0, 0, 10, 10),
				det(1, 0.7, 0, 0, 10, 10),
			},
			expected: DetectionSet{
				det(0, 0.9, 0, 0, 10, 10),
				det(1, 0.7, 0, 0, 10, 10),
			},
		},
		{
			name: "Low overlap survives",
			input: DetectionSet{
				det(0, 0.9, 0, 0, 10, 10),
				det(0, 0.8, 5, 5, 15, 15),
			},
			expected: DetectionSet{
				det(0, 0.9, 0, 0, 10, 10),
				det(0, 0.8, 5, 5, 15, 15),
			},
		},
		{
			name: "Suppressed boxes do not suppress others",
			input: DetectionSet{
				det(2, 0.9, 0, 0, 10, 10),
				det(2, 0.8, 2, 0, 12, 10), // IoU with first = 80/120
				det(2, 0.7, 6, 0, 16, 10), // IoU with first = 40/160, with second = 60/140
			},
			expected: DetectionSet{
				det(2, 0.9, 0, 0, 10, 10),
				Sentinel(),
				det(2, 0.7, 6, 0, 16, 10),
			},
		},
		{
			name: "Sentinels are ignored and kept in place",
			input: DetectionSet{
				det(0, 0.9, 0, 0, 10, 10),
				Sentinel(),
				det(0, 0.6, 0, 0, 10, 10),
				Sentinel(),
			},
			expected: DetectionSet{
				det(0, 0.9, 0, 0, 10, 10),
				Sentinel(),
				Sentinel(),
				Sentinel(),
			},
		},
		{
			name:     "Single member class is unchanged",
			input:    DetectionSet{det(3, 0.2, 1, 1, 2, 2)},
			expected: DetectionSet{det(3, 0.2, 1, 1, 2, 2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.input.Clone()

			out := SuppressPerClass([]DetectionSet{tt.input}, config)

			require.Len(t, out, 1)
			assert.Equal(t, tt.expected, out[0])
			assert.Equal(t, original, tt.input, "input must not be modified")
		})
	}
}

func TestSuppressPerClass_Batch(t *testing.T) {
	sets := []DetectionSet{
		{det(0, 0.9, 0, 0, 10, 10), det(0, 0.7, 0, 0, 10, 9), det(1, 0.6, 0, 0, 4, 4)},
		{det(1, 0.5, 0, 0, 4, 4), det(1, 0.4, 0, 0, 4, 4), Sentinel()},
		{Sentinel(), Sentinel(), Sentinel()},
	}

	for _, workers := range []int{0, 1, 3, 16} {
		out := SuppressPerClass(sets, &NMSConfig{IoUThreshold: 0.5, NumWorkers: workers})

		require.Len(t, out, 3)
		for b := range out {
			assert.Len(t, out[b], 3, "batch item %d must keep its size", b)
		}
		assert.Equal(t, 2, out[0].CountValid())
		assert.False(t, out[0][1].Valid)
		assert.Equal(t, 1, out[1].CountValid())
		assert.Equal(t, float32(0.5), out[1][0].Score)
		assert.Equal(t, 0, out[2].CountValid())
	}
}

func TestSuppressPerClass_Overlap(t *testing.T) {
	// IoU = 80/120 but the legacy ratio is 80/(10+12-80) < 0.
	input := DetectionSet{
		det(0, 0.9, 10, 10, 20, 20),
		det(0, 0.8, 12, 10, 22, 20),
	}

	iou := SuppressPerClass([]DetectionSet{input}, &NMSConfig{IoUThreshold: 0.5, Overlap: OverlapIoU})
	assert.Equal(t, 1, iou[0].CountValid())

	legacy := SuppressPerClass([]DetectionSet{input}, &NMSConfig{IoUThreshold: 0.5, Overlap: OverlapLegacy})
	assert.Equal(t, 2, legacy[0].CountValid())
}

func TestOverlapMode(t *testing.T) {
	a := images.Rect{X1: 10, Y1: 10, X2: 20, Y2: 20}
	b := images.Rect{X1: 12, Y1: 10, X2: 22, Y2: 20}

	assert.Equal(t, images.CalculateIoU(a, b), OverlapIoU.Func()(a, b))
	assert.Equal(t, images.CalculateIoU(a, b), OverlapMode("").Func()(a, b))
	assert.Equal(t, images.CalculateLegacyOverlap(a, b), OverlapLegacy.Func()(a, b))

	assert.True(t, OverlapMode("").Known())
	assert.True(t, OverlapIoU.Known())
	assert.True(t, OverlapLegacy.Known())
	assert.False(t, OverlapMode("giou").Known())
}

func TestDetectionSet(t *testing.T) {
	set := NewDetectionSet(4)
	require.Len(t, set, 4)
	assert.Equal(t, 0, set.CountValid())

	set[1] = det(2, 0.5, 0, 0, 1, 1)
	set[3] = det(2, 0.4, 0, 0, 1, 1)

	assert.Equal(t, 2, set.CountValid())
	assert.Equal(t, map[int]int{2: 2}, set.CountByClass())
	assert.Equal(t, []Result{set[1], set[3]}, set.Valid())

	s := Sentinel()
	assert.Equal(t, -1, s.Class)
	assert.Equal(t, float32(-1), s.Score)
	assert.Equal(t, images.Rect{X1: -1, Y1: -1, X2: -1, Y2: -1}, s.Box)
	assert.Equal(t, "Result <empty>", s.String())
}

func TestResizeBoxes(t *testing.T) {
	set := DetectionSet{det(0, 0.9, 10, 20, 30, 40), Sentinel()}

	out := ResizeBoxes(set, image.Pt(100, 200), image.Pt(200, 100))

	assert.Equal(t, images.Rect{X1: 20, Y1: 10, X2: 60, Y2: 20}, out[0].Box)
	assert.Equal(t, Sentinel(), out[1])
	assert.Equal(t, images.Rect{X1: 10, Y1: 20, X2: 30, Y2: 40}, set[0].Box, "input must not be modified")

	assert.Equal(t, set, ResizeBoxes(set, image.Point{}, image.Pt(10, 10)))
}
