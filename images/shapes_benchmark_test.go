package images

import (
	"math/rand"
	"testing"
)

// BenchmarkIoU_NonOverlapping tests performance with rectangles that don't overlap.
// This is the early-return path of Intersection.
func BenchmarkIoU_NonOverlapping(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 200, Y1: 200, X2: 300, Y2: 300}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

// BenchmarkIoU_PartialOverlap tests the common suppression case of 0.3-0.7 IoU.
func BenchmarkIoU_PartialOverlap(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 50, Y1: 50, X2: 150, Y2: 150}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

// BenchmarkLegacyOverlap_PartialOverlap measures the legacy overlap formula on the same pair.
func BenchmarkLegacyOverlap_PartialOverlap(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 50, Y1: 50, X2: 150, Y2: 150}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = CalculateLegacyOverlap(rect1, rect2)
	}
}

// BenchmarkIoU_RandomPairs benchmarks with random rectangle pairs on a 128x128 output grid
// scaled by a stride of 4, the typical CenterNet decode range.
func BenchmarkIoU_RandomPairs(b *testing.B) {
	rng := rand.New(rand.NewSource(42))
	pairs := make([]struct{ r1, r2 Rect }, 1000)
	for i := range pairs {
		x1, y1 := rng.Float32()*512, rng.Float32()*512
		w1, h1 := rng.Float32()*120+4, rng.Float32()*120+4
		x2, y2 := rng.Float32()*512, rng.Float32()*512
		w2, h2 := rng.Float32()*120+4, rng.Float32()*120+4

		pairs[i].r1 = Rect{X1: x1, Y1: y1, X2: x1 + w1, Y2: y1 + h1}
		pairs[i].r2 = Rect{X1: x2, Y1: y2, X2: x2 + w2, Y2: y2 + h2}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		pair := pairs[i%len(pairs)]
		_ = CalculateIoU(pair.r1, pair.r2)
	}
}
