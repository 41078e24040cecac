package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

var (
	// ImageNetMean is the per-channel RGB mean the backbone was trained with.
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	// ImageNetStd is the per-channel RGB standard deviation the backbone was trained with.
	ImageNetStd = [3]float32{0.229, 0.224, 0.225}
)

// PrepareInput fills the network input with consecutive frames stacked on the channel axis.
//
// Every frame is resized to width x height (bilinear), scaled to [0, 1] and normalised with
// mean and std. Frame f occupies channels 3f (red), 3f+1 (green) and 3f+2 (blue).
//
// Arguments:
//   - frames: The frames, oldest first.
//   - width: The network input width.
//   - height: The network input height.
//   - mean: The per-channel mean.
//   - std: The per-channel standard deviation.
//   - dst: The destination buffer, at least len(frames)*3*width*height floats.
//
// Returns:
//   - error: An error if the arguments are inconsistent.
func PrepareInput(frames []image.Image, width, height int, mean, std [3]float32, dst []float32) error {
	if len(frames) == 0 {
		return errors.New("no frames to prepare")
	}
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid input size %dx%d", width, height)
	}
	for c, s := range std {
		if s == 0 {
			return errors.Errorf("std of channel %d is zero", c)
		}
	}

	channelSize := width * height
	if need := len(frames) * 3 * channelSize; len(dst) < need {
		return errors.Errorf("destination tensor only holds %d floats, needs %d (make sure it's the right shape!)",
			len(dst), need)
	}

	for f, frame := range frames {
		if frame == nil {
			return errors.Errorf("frame %d is nil", f)
		}

		base := f * 3 * channelSize
		red := dst[base : base+channelSize]
		green := dst[base+channelSize : base+2*channelSize]
		blue := dst[base+2*channelSize : base+3*channelSize]

		img := resize.Resize(uint(width), uint(height), frame, resize.Bilinear)
		bounds := img.Bounds()

		i := 0
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				red[i] = (float32(r>>8)/255 - mean[0]) / std[0]
				green[i] = (float32(g>>8)/255 - mean[1]) / std[1]
				blue[i] = (float32(b>>8)/255 - mean[2]) / std[2]
				i++
			}
		}
	}
	return nil
}
