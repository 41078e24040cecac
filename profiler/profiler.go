// Package profiler tracks per-stage timings of the detection pipeline.
package profiler

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Stat summarises the timings of one stage.
type Stat struct {
	Name  string
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Mean returns the average duration, 0 when nothing was recorded.
func (s Stat) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Tracker records stage durations. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	stages map[string]*Stat
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{stages: make(map[string]*Stat)}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the stage to track.
//
// Returns:
//   - A function to call when the operation completes.
func (t *Tracker) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		t.Record(name, time.Since(start))
	}
}

// Record adds one duration to a stage.
func (t *Tracker) Record(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stages[name]
	if !ok {
		s = &Stat{Name: name, Min: d, Max: d}
		t.stages[name] = s
	}
	s.Count++
	s.Total += d
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

// Stats returns a snapshot of every stage, sorted by name.
func (t *Tracker) Stats() []Stat {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Stat, 0, len(t.stages))
	for _, s := range t.stages {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Report logs one line per stage.
func (t *Tracker) Report(log *slog.Logger) {
	for _, s := range t.Stats() {
		log.Info("stage timing",
			"stage", s.Name,
			"count", s.Count,
			"mean", s.Mean(),
			"min", s.Min,
			"max", s.Max,
		)
	}
}
