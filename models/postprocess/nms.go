// Package postprocess - provides per-class Non-Maximum Suppression for decoded detections.
package postprocess

import (
	"runtime"
	"sort"
	"sync"

	"github.com/nvr-ai/go-centernet/images"
)

// OverlapMode selects the overlap ratio compared against the suppression threshold.
type OverlapMode string

const (
	// OverlapIoU is the standard Intersection over Union.
	OverlapIoU OverlapMode = "iou"
	// OverlapLegacy is the ratio used by the original CenterNet training code
	// (see images.CalculateLegacyOverlap). Only useful for parity with old checkpoints.
	OverlapLegacy OverlapMode = "legacy"
)

// OverlapFunc computes the overlap between a kept anchor box and a candidate box.
type OverlapFunc func(anchor, other images.Rect) float32

// Func returns the overlap function for the mode. Unknown modes fall back to IoU.
func (m OverlapMode) Func() OverlapFunc {
	if m == OverlapLegacy {
		return images.CalculateLegacyOverlap
	}
	return images.CalculateIoU
}

// Known reports whether m is a supported mode. The empty mode means IoU.
func (m OverlapMode) Known() bool {
	switch m {
	case "", OverlapIoU, OverlapLegacy:
		return true
	}
	return false
}

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32     `json:"iou_threshold" yaml:"iou_threshold"` // Overlap threshold for suppression.
	Overlap      OverlapMode `json:"overlap" yaml:"overlap"`             // Overlap formula.
	NumWorkers   int         `json:"num_workers" yaml:"num_workers"`     // Goroutines for the fan-out, 0 = NumCPU.
}

// workers returns the pool size for n units of work.
func (c *NMSConfig) workers(n int) int {
	w := c.NumWorkers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if w > n {
		w = n
	}
	return w
}

// unit is one independent piece of suppression work: the slots of a single class within a
// single batch item.
type unit struct {
	set   int
	slots []int
}

// SuppressPerClass runs greedy Non-Maximum Suppression independently for every class of every
// batch item.
//
// Each (batch item, class) pair is a unit of work dispatched to a worker pool. A unit only
// writes the slots of its own class, so workers never share output elements. Suppressed
// detections are replaced in place by a sentinel, which keeps every set at its original length
// and the survivors at their original positions.
//
// Arguments:
//   - sets: One detection set per batch item. Not modified.
//   - config: NMS configuration.
//
// Returns:
//   - New detection sets with suppressed slots turned into sentinels.
func SuppressPerClass(sets []DetectionSet, config *NMSConfig) []DetectionSet {
	out := make([]DetectionSet, len(sets))
	units := make([]unit, 0, len(sets))
	for b, set := range sets {
		out[b] = set.Clone()
		for _, slots := range groupByClass(set) {
			// A class with a single member has nothing to compare against.
			if len(slots) > 1 {
				units = append(units, unit{set: b, slots: slots})
			}
		}
	}
	if len(units) == 0 {
		return out
	}

	overlap := config.Overlap.Func()
	jobs := make(chan unit, len(units))

	var wg sync.WaitGroup
	for w := 0; w < config.workers(len(units)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				suppress(out[u.set], u.slots, config.IoUThreshold, overlap)
			}
		}()
	}

	for _, u := range units {
		jobs <- u
	}
	close(jobs)
	wg.Wait()

	return out
}

// groupByClass returns the slot indices of each valid class, ordered by first appearance.
func groupByClass(set DetectionSet) [][]int {
	index := make(map[int]int)
	var groups [][]int
	for i, r := range set {
		if !r.Valid {
			continue
		}
		g, ok := index[r.Class]
		if !ok {
			g = len(groups)
			index[r.Class] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

// suppress performs standard greedy suppression over the given slots of set.
func suppress(set DetectionSet, slots []int, threshold float32, overlap OverlapFunc) {
	order := make([]int, len(slots))
	copy(order, slots)
	sort.SliceStable(order, func(a, b int) bool {
		return set[order[a]].Score > set[order[b]].Score
	})

	used := make([]bool, len(order))
	for i := range order {
		if used[i] {
			continue
		}
		anchor := set[order[i]].Box

		for j := i + 1; j < len(order); j++ {
			if used[j] {
				continue
			}
			if overlap(anchor, set[order[j]].Box) > threshold {
				used[j] = true
			}
		}
	}

	for i, suppressed := range used {
		if suppressed {
			set[order[i]] = Sentinel()
		}
	}
}
