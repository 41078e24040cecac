// Package images - Geometry helpers for detection boxes.
package images

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Rect is an axis-aligned box in continuous pixel coordinates.
//
// Boxes produced by the decoder live on a sub-pixel grid, so the corners are float32 and
// X2,Y2 are the far edges (not exclusive pixel indices like image.Rectangle).
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float32 {
	return r.X2 - r.X1
}

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float32 {
	return r.Y2 - r.Y1
}

// Area returns the area of the rectangle, or 0 for a degenerate rectangle.
func (r Rect) Area() float32 {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Scale multiplies every corner by f.
//
// Arguments:
//   - f: The factor to scale by (typically the backbone stride).
//
// Returns:
//   - The scaled rectangle.
func (r Rect) Scale(f float32) Rect {
	return Rect{X1: r.X1 * f, Y1: r.Y1 * f, X2: r.X2 * f, Y2: r.Y2 * f}
}

// ScaleXY multiplies the horizontal and vertical corners by independent factors.
func (r Rect) ScaleXY(fx, fy float32) Rect {
	return Rect{X1: r.X1 * fx, Y1: r.Y1 * fy, X2: r.X2 * fx, Y2: r.Y2 * fy}
}

// Intersection returns the overlapping area of r and o (0 when they do not overlap).
func (r Rect) Intersection(o Rect) float32 {
	w := math32.Min(r.X2, o.X2) - math32.Max(r.X1, o.X1)
	h := math32.Min(r.Y2, o.Y2) - math32.Max(r.Y1, o.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f)-(%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU computes the Intersection over Union of two rectangles.
//
//	IoU = Area of Intersection / Area of Union
//
// The union uses inclusion-exclusion: Area(A) + Area(B) - Area(Intersection).
// Non-overlapping or touching rectangles return 0 without dividing, and so does a
// degenerate union.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - A value between 0.0 and 1.0.
//
// Example:
//
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	inter := r.Intersection(o)
	if inter == 0 {
		return 0
	}

	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}

	return inter / union
}

// CalculateLegacyOverlap reproduces the overlap ratio used by the original CenterNet
// training code, where the denominator sums the two boxes' left edges instead of their areas:
//
//	overlap = inter / (anchor.X1 + other.X1 - inter)
//
// This is not IoU and depends on absolute position. The division is left unguarded so a zero
// or negative denominator gives the same IEEE result (+Inf, NaN or a negative ratio) as the
// original.
//
// Arguments:
//   - anchor: The higher scoring box that may suppress other.
//   - other: The candidate box.
//
// Returns:
//   - The legacy overlap ratio.
func CalculateLegacyOverlap(anchor, other Rect) float32 {
	inter := anchor.Intersection(other)
	return inter / (anchor.X1 + other.X1 - inter)
}
