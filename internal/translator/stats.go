package translator

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	at      time.Time
	latency time.Duration
}

// StatsSnapshot aggregates recent API call latencies and chunk outcomes.
type StatsSnapshot struct {
	Calls int     `json:"calls"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`

	Translated int `json:"translated"`
	Blocked    int `json:"blocked"`
	Failed     int `json:"failed"`
	Retries    int `json:"retries"`
}

// LatencyStats tracks API call latencies within a rolling window, plus lifetime outcome counters.
type LatencyStats struct {
	mu       sync.Mutex
	samples  []sample
	window   time.Duration
	now      func() time.Time
	outcomes map[Outcome]int
	retries  int
}

func NewLatencyStats(window time.Duration) *LatencyStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LatencyStats{
		samples:  make([]sample, 0, 256),
		window:   window,
		now:      time.Now,
		outcomes: make(map[Outcome]int),
	}
}

// RecordCall adds the latency of one API call.
func (s *LatencyStats) RecordCall(latency time.Duration) {
	if latency < 0 {
		latency = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, latency: latency})
}

// RecordResult counts a chunk's final outcome and the retries it took.
func (s *LatencyStats) RecordResult(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[r.Outcome]++
	if r.Attempts > 1 {
		s.retries += r.Attempts - 1
	}
}

func (s *LatencyStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.now())
	snap := StatsSnapshot{
		Translated: s.outcomes[OutcomeTranslated],
		Blocked:    s.outcomes[OutcomeBlocked],
		Failed:     s.outcomes[OutcomeFailed],
		Retries:    s.retries,
	}
	if len(s.samples) == 0 {
		return snap
	}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		ms := sm.latency.Milliseconds()
		values = append(values, ms)
		sum += ms
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.Calls = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	return snap
}

func (s *LatencyStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	keep := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.at.Before(cutoff) {
			keep = append(keep, sm)
		}
	}
	s.samples = keep
}

func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo := float64(sorted[lower])
	hi := float64(sorted[upper])
	return lo + ((hi - lo) * weight)
}
