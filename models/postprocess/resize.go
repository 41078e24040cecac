package postprocess

import (
	"image"
)

// ResizeBoxes maps detections from the network input resolution back to the resolution of
// the original image.
//
// Arguments:
//   - set: The detections in network-input pixels.
//   - from: The network input size (width, height).
//   - to: The original image size (width, height).
//
// Returns:
//   - A new set with valid boxes rescaled. Sentinels are left untouched.
//
// @example
// resized := ResizeBoxes(set, image.Pt(512, 512), image.Pt(1920, 1080))
func ResizeBoxes(set DetectionSet, from, to image.Point) DetectionSet {
	out := set.Clone()
	if from.X <= 0 || from.Y <= 0 {
		return out
	}

	fx := float32(to.X) / float32(from.X)
	fy := float32(to.Y) / float32(from.Y)
	for i, r := range out {
		if r.Valid {
			out[i].Box = r.Box.ScaleXY(fx, fy)
		}
	}
	return out
}
