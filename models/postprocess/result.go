// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-centernet/images"
)

// SentinelValue fills every field of an empty detection slot.
const SentinelValue = -1

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result, in output-image pixels.
	Box images.Rect `json:"box" yaml:"box"`
	// The confidence score of the result.
	Score float32 `json:"score" yaml:"score"`
	// The predicted class index of the result.
	Class int `json:"class" yaml:"class"`
	// Valid is false for padding slots (below the confidence floor or suppressed).
	Valid bool `json:"valid" yaml:"valid"`
}

// Sentinel returns an empty detection slot.
//
// Returns:
//   - A Result with Valid=false and every numeric field set to -1.
func Sentinel() Result {
	return Result{
		Box:   images.Rect{X1: SentinelValue, Y1: SentinelValue, X2: SentinelValue, Y2: SentinelValue},
		Score: SentinelValue,
		Class: SentinelValue,
		Valid: false,
	}
}

func (r Result) String() string {
	if !r.Valid {
		return "Result <empty>"
	}
	return fmt.Sprintf("Result class=%d score=%.4f box=%s", r.Class, r.Score, r.Box)
}

// DetectionSet is the fixed-size list of detections decoded for a single batch item.
type DetectionSet []Result

// NewDetectionSet returns a set of n sentinel slots.
func NewDetectionSet(n int) DetectionSet {
	set := make(DetectionSet, n)
	for i := range set {
		set[i] = Sentinel()
	}
	return set
}

// Valid returns the populated detections in slot order.
func (s DetectionSet) Valid() []Result {
	valid := make([]Result, 0, len(s))
	for _, r := range s {
		if r.Valid {
			valid = append(valid, r)
		}
	}
	return valid
}

// CountValid returns the number of populated slots.
func (s DetectionSet) CountValid() int {
	n := 0
	for _, r := range s {
		if r.Valid {
			n++
		}
	}
	return n
}

// CountByClass returns the number of populated slots per class id.
func (s DetectionSet) CountByClass() map[int]int {
	counts := make(map[int]int)
	for _, r := range s {
		if r.Valid {
			counts[r.Class]++
		}
	}
	return counts
}

// Clone returns a deep copy of the set.
func (s DetectionSet) Clone() DetectionSet {
	out := make(DetectionSet, len(s))
	copy(out, s)
	return out
}
