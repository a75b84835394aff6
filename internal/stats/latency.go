// Package stats keeps rolling latency windows for extraction work.
package stats

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

type sample struct {
	at     time.Time
	ms     float64
	failed bool
}

// Snapshot aggregates the samples currently inside the window.
type Snapshot struct {
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	MinMs    float64 `json:"min_ms"`
	MaxMs    float64 `json:"max_ms"`
	AvgMs    float64 `json:"avg_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
}

// Latency tracks recent page extraction latencies within a rolling window.
type Latency struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewLatency(maxAge time.Duration) *Latency {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Latency{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

// Record adds one extraction. Failed extractions count toward Failures but
// not toward the latency figures.
func (l *Latency) Record(d time.Duration, failed bool) {
	if d < 0 {
		d = 0
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)
	l.samples = append(l.samples, sample{
		at:     now,
		ms:     float64(d) / float64(time.Millisecond),
		failed: failed,
	})
}

func (l *Latency) Snapshot() Snapshot {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	var snap Snapshot
	values := make([]float64, 0, len(l.samples))
	for _, s := range l.samples {
		if s.failed {
			snap.Failures++
			continue
		}
		values = append(values, s.ms)
	}
	if len(values) == 0 {
		return snap
	}
	sort.Float64s(values)

	snap.Count = len(values)
	snap.MinMs = floats.Min(values)
	snap.MaxMs = floats.Max(values)
	snap.AvgMs = floats.Sum(values) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (l *Latency) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.maxAge)
	writeIdx := 0
	for _, s := range l.samples {
		if !s.at.Before(cutoff) {
			l.samples[writeIdx] = s
			writeIdx++
		}
	}
	l.samples = l.samples[:writeIdx]
}

// percentile interpolates linearly between closest ranks of sorted values.
func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 100 {
		return sorted[len(sorted)-1]
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}
