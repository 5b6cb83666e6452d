package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
)

const defaultHistoryCap = 4096

// History is a bounded, process-local rolling record of execution
// attempts, keyed by error kind and timestamp. It backs the executor's
// health reporting.
type History struct {
	mu      sync.Mutex
	window  time.Duration
	entries []histEntry
	maxSize int
}

type histEntry struct {
	kind    ErrorKind
	outcome domain.AttemptOutcome
	at      time.Time
}

// HistoryReport summarizes attempt outcomes within the window.
type HistoryReport struct {
	Window          time.Duration     `json:"window"`
	Total           int               `json:"total"`
	Failures        int               `json:"failures"`
	ByKind          map[ErrorKind]int `json:"by_kind"`
	Recommendations []string          `json:"recommendations,omitempty"`
}

// NewHistory creates a rolling history covering the given window
// (24h when zero).
func NewHistory(window time.Duration) *History {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &History{window: window, maxSize: defaultHistoryCap}
}

// Record appends one attempt outcome.
func (h *History) Record(kind ErrorKind, outcome domain.AttemptOutcome, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, histEntry{kind: kind, outcome: outcome, at: at})
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
}

// Report returns per-kind failure counts for the window plus
// threshold-driven recommendations.
func (h *History) Report() HistoryReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-h.window)
	report := HistoryReport{
		Window: h.window,
		ByKind: make(map[ErrorKind]int),
	}

	live := h.entries[:0]
	for _, e := range h.entries {
		if e.at.Before(cutoff) {
			continue
		}
		live = append(live, e)
		report.Total++
		if e.outcome == domain.AttemptFailure {
			report.Failures++
			report.ByKind[e.kind]++
		}
	}
	h.entries = live

	report.Recommendations = recommend(report.ByKind)
	return report
}

// recommendThresholds are the per-kind failure counts past which the
// report surfaces an operator hint.
var recommendThresholds = map[ErrorKind]struct {
	count int
	hint  string
}{
	KindConnection:  {10, "connection error rate exceeds threshold - investigate network or broker availability"},
	KindTimeout:     {10, "timeout rate exceeds threshold - check downstream latency or raise limits"},
	KindRateLimited: {5, "rate limiting persists - reduce request rate or raise provider quota"},
	KindPermission:  {1, "permission failures observed - verify credentials and scopes"},
	KindConfig:      {1, "configuration errors observed - fix before retrying, these never succeed"},
}

// recommendOrder fixes the ordering of recommendations across reports.
var recommendOrder = []ErrorKind{
	KindConnection,
	KindTimeout,
	KindRateLimited,
	KindPermission,
	KindConfig,
}

func recommend(byKind map[ErrorKind]int) []string {
	var recs []string
	for _, kind := range recommendOrder {
		threshold := recommendThresholds[kind]
		if byKind[kind] >= threshold.count {
			recs = append(recs, fmt.Sprintf("%s: %s", kind, threshold.hint))
		}
	}
	return recs
}
