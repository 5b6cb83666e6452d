// Package storage defines the persistence boundary for execution
// attempt history.
package storage

import (
	"context"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
)

// AttemptArchive retains execution attempts beyond process memory so
// health reporting and the status command can look back over a window.
// Entries are append-only; Prune enforces the retention bound.
type AttemptArchive interface {
	// Record appends one execution attempt.
	Record(ctx context.Context, attempt domain.ExecutionAttempt) error

	// CountsByKind returns failure counts per error kind since the
	// given time.
	CountsByKind(ctx context.Context, since time.Time) (map[string]int, error)

	// Prune deletes attempts finished before the given time.
	Prune(ctx context.Context, olderThan time.Time) error
}
