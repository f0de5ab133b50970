// Package monitor tracks control-cycle timing so operators can see whether
// the bridge is holding its 2 ms budget: per-cycle durations feed a rolling
// window with percentile summaries and an HTML chart.
package monitor

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// CycleStats accumulates per-cycle wall durations over a rolling window.
type CycleStats struct {
	mu sync.Mutex

	period    time.Duration
	durations []float64 // seconds, ring buffer
	next      int
	filled    bool

	count    uint64
	overruns uint64
}

// NewCycleStats creates a CycleStats with the nominal cycle period (used for
// overrun accounting) and a rolling window of the given size.
func NewCycleStats(period time.Duration, window int) *CycleStats {
	if window <= 0 {
		window = 2048
	}
	return &CycleStats{
		period:    period,
		durations: make([]float64, window),
	}
}

// Record adds one cycle's wall duration.
func (s *CycleStats) Record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if s.period > 0 && d > s.period {
		s.overruns++
	}
	s.durations[s.next] = d.Seconds()
	s.next++
	if s.next == len(s.durations) {
		s.next = 0
		s.filled = true
	}
}

// window returns a copy of the recorded durations, oldest data not ordered.
func (s *CycleStats) window() []float64 {
	n := s.next
	if s.filled {
		n = len(s.durations)
	}
	out := make([]float64, n)
	copy(out, s.durations[:n])
	return out
}

// Summary holds aggregate cycle timing in microseconds.
type Summary struct {
	Count    uint64  `json:"count"`
	Overruns uint64  `json:"overruns"`
	Mean     float64 `json:"mean_micros"`
	P50      float64 `json:"p50_micros"`
	P95      float64 `json:"p95_micros"`
	P99      float64 `json:"p99_micros"`
	Max      float64 `json:"max_micros"`
}

// Summarize computes timing percentiles over the rolling window.
func (s *CycleStats) Summarize() Summary {
	s.mu.Lock()
	window := s.window()
	summary := Summary{Count: s.count, Overruns: s.overruns}
	s.mu.Unlock()

	if len(window) == 0 {
		return summary
	}

	sort.Float64s(window)
	const micros = 1e6
	summary.Mean = stat.Mean(window, nil) * micros
	summary.P50 = stat.Quantile(0.50, stat.Empirical, window, nil) * micros
	summary.P95 = stat.Quantile(0.95, stat.Empirical, window, nil) * micros
	summary.P99 = stat.Quantile(0.99, stat.Empirical, window, nil) * micros
	summary.Max = window[len(window)-1] * micros
	return summary
}

// RecentMicros returns up to limit recent durations in microseconds, in ring
// order, for charting.
func (s *CycleStats) RecentMicros(limit int) []float64 {
	s.mu.Lock()
	window := s.window()
	s.mu.Unlock()

	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	out := make([]float64, len(window))
	for i, v := range window {
		out[i] = v * 1e6
	}
	return out
}
