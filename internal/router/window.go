package router

import (
	"sync"

	"github.com/vietddude/foreman/internal/core/domain"
)

// window accumulates result metrics between summary reports.
type window struct {
	mu        sync.Mutex
	count     int
	successes int
	totalMS   int64
}

// Stats is a point-in-time aggregate of the rolling window.
type Stats struct {
	Count     int
	Successes int
	TotalMS   int64
}

func newWindow() *window {
	return &window{}
}

func (w *window) record(result *domain.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	if result.Status == domain.ResultSuccess {
		w.successes++
	}
	if v, ok := result.Metrics["duration_ms"]; ok {
		switch d := v.(type) {
		case float64:
			w.totalMS += int64(d)
		case int64:
			w.totalMS += d
		case int:
			w.totalMS += int64(d)
		}
	}
}

// restore folds a snapshot back into the window after a failed
// summary dispatch.
func (w *window) restore(s Stats) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count += s.Count
	w.successes += s.Successes
	w.totalMS += s.TotalMS
}

func (w *window) snapshotAndReset() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := Stats{Count: w.count, Successes: w.successes, TotalMS: w.totalMS}
	w.count, w.successes, w.totalMS = 0, 0, 0
	return stats
}

// SuccessRate returns the fraction of successful tasks in [0, 1].
func (s Stats) SuccessRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Count)
}

// AvgDurationMillis returns the mean task duration in milliseconds.
func (s Stats) AvgDurationMillis() int64 {
	if s.Count == 0 {
		return 0
	}
	return s.TotalMS / int64(s.Count)
}
