package centernet

import (
	"github.com/nvr-ai/go-centernet/images"
	"github.com/nvr-ai/go-centernet/models/postprocess"
	"gorgonia.org/tensor"
)

// Candidate is a reconstructed pick in heatmap-grid coordinates.
type Candidate struct {
	ClassID int
	Score   float32
	// CX, CY is the sub-pixel centre: grid position plus the predicted offset.
	CX, CY float32
	// W, H is the predicted box size.
	W, H float32
}

// Box returns the axis-aligned box centred on the candidate.
func (c Candidate) Box() images.Rect {
	halfW, halfH := c.W/2, c.H/2
	return images.Rect{
		X1: c.CX - halfW,
		Y1: c.CY - halfH,
		X2: c.CX + halfW,
		Y2: c.CY + halfH,
	}
}

// Reconstruct maps every pick back to (class, row, column) and gathers the offset and size
// regressions at that pick's own position.
//
//	classId = index / (H*W), row = (index % (H*W)) / W, col = index % W
//	cx = col + offset[b,0,row,col], cy = row + offset[b,1,row,col]
//	w  = wh[b,0,row,col],           h  = wh[b,1,row,col]
//
// Arguments:
//   - peaks: The picks returned by ExtractPeaks.
//   - offset: The (batch, 2, height, width) sub-pixel offset head.
//   - wh: The (batch, 2, height, width) size head.
//
// Returns:
//   - [][]Candidate: One slice per batch item, in pick order.
//   - error: A KindShape *Error if the heads disagree with the peaks.
func Reconstruct(peaks *Peaks, offset, wh *tensor.Dense) ([][]Candidate, error) {
	return reconstruct(peaks, offset, wh, 0)
}

// reconstruct gathers every batch item on its own goroutine, up to workers.
func reconstruct(peaks *Peaks, offset, wh *tensor.Dense, workers int) ([][]Candidate, error) {
	const op = "reconstruct"

	if peaks == nil || len(peaks.Indices) != len(peaks.Scores) {
		return nil, shapeErrorf(op, "peaks are missing or have mismatched scores and indices")
	}
	off, err := regression(op, "offset", offset, peaks.Batch(), peaks.Height, peaks.Width)
	if err != nil {
		return nil, err
	}
	size, err := regression(op, "wh", wh, peaks.Batch(), peaks.Height, peaks.Width)
	if err != nil {
		return nil, err
	}

	return gather(peaks, off, size, workers)
}

// gather performs the per-pick lookups on validated data. Batch items write disjoint rows.
func gather(peaks *Peaks, off, size []float32, workers int) ([][]Candidate, error) {
	plane := peaks.Height * peaks.Width
	limit := peaks.Classes * plane

	out := make([][]Candidate, peaks.Batch())
	errs := make([]error, peaks.Batch())
	forEach(peaks.Batch(), workers, func(b int) {
		if len(peaks.Indices[b]) != len(peaks.Scores[b]) {
			errs[b] = shapeErrorf("reconstruct", "batch item %d has %d indices for %d scores",
				b, len(peaks.Indices[b]), len(peaks.Scores[b]))
			return
		}

		// Channel 0 (x / width) and channel 1 (y / height) of batch item b.
		base := b * 2 * plane
		offX, offY := off[base:base+plane], off[base+plane:base+2*plane]
		sizeW, sizeH := size[base:base+plane], size[base+plane:base+2*plane]

		cands := make([]Candidate, 0, len(peaks.Indices[b]))
		for k, index := range peaks.Indices[b] {
			if index < 0 || index >= limit {
				errs[b] = shapeErrorf("reconstruct", "flat index %d outside [0, %d)", index, limit)
				return
			}
			spatial := index % plane
			row, col := spatial/peaks.Width, spatial%peaks.Width

			cands = append(cands, Candidate{
				ClassID: index / plane,
				Score:   peaks.Scores[b][k],
				CX:      float32(col) + offX[spatial],
				CY:      float32(row) + offY[spatial],
				W:       sizeW[spatial],
				H:       sizeH[spatial],
			})
		}
		out[b] = cands
	})

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Gate applies the confidence floor and the grid-to-image scale, and pads each batch item to
// exactly topK rows.
//
// Candidates scoring at or below thresh become sentinels. Valid boxes are multiplied by scale.
//
// Arguments:
//   - candidates: The reconstructed picks per batch item.
//   - thresh: The confidence floor (ExceptClassThresh).
//   - scale: The grid-to-image factor.
//   - topK: The number of rows per batch item.
//
// Returns:
//   - One DetectionSet of length topK per batch item.
func Gate(candidates [][]Candidate, thresh, scale float32, topK int) []postprocess.DetectionSet {
	sets := make([]postprocess.DetectionSet, len(candidates))
	for b, cands := range candidates {
		set := postprocess.NewDetectionSet(topK)
		for k, c := range cands {
			if k >= topK {
				break
			}
			if !(c.Score > thresh) {
				continue
			}
			set[k] = postprocess.Result{
				Box:   c.Box().Scale(scale),
				Score: c.Score,
				Class: c.ClassID,
				Valid: true,
			}
		}
		sets[b] = set
	}
	return sets
}
