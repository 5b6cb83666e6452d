package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
)

const defaultCap = 10000

// AttemptArchive keeps attempts in a bounded in-memory slice. Used when
// no database is configured.
type AttemptArchive struct {
	mu       sync.RWMutex
	attempts []domain.ExecutionAttempt
	maxSize  int
}

// NewAttemptArchive creates a bounded in-memory archive.
func NewAttemptArchive() *AttemptArchive {
	return &AttemptArchive{maxSize: defaultCap}
}

// Record appends one attempt, evicting the oldest past the bound.
func (a *AttemptArchive) Record(ctx context.Context, attempt domain.ExecutionAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, attempt)
	if len(a.attempts) > a.maxSize {
		a.attempts = a.attempts[len(a.attempts)-a.maxSize:]
	}
	return nil
}

// CountsByKind returns failure counts per error kind since the given time.
func (a *AttemptArchive) CountsByKind(ctx context.Context, since time.Time) (map[string]int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	counts := make(map[string]int)
	for _, attempt := range a.attempts {
		if attempt.Outcome != domain.AttemptFailure {
			continue
		}
		if attempt.FinishedAt.Before(since) {
			continue
		}
		counts[attempt.ErrorKind]++
	}
	return counts, nil
}

// Prune deletes attempts finished before the given time.
func (a *AttemptArchive) Prune(ctx context.Context, olderThan time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.attempts[:0]
	for _, attempt := range a.attempts {
		if attempt.FinishedAt.Before(olderThan) {
			continue
		}
		kept = append(kept, attempt)
	}
	a.attempts = kept
	return nil
}
