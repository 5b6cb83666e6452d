package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
)

// AttemptArchive implements storage.AttemptArchive using PostgreSQL.
type AttemptArchive struct {
	db *DB
}

// NewAttemptArchive creates a PostgreSQL-backed attempt archive.
func NewAttemptArchive(db *DB) *AttemptArchive {
	return &AttemptArchive{db: db}
}

// Record appends one execution attempt.
func (a *AttemptArchive) Record(ctx context.Context, attempt domain.ExecutionAttempt) error {
	query := `
		INSERT INTO attempts (task_id, attempt, outcome, error_kind, error_msg, started_at, finished_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := a.db.ExecContext(
		ctx,
		query,
		attempt.TaskID,
		attempt.Attempt,
		string(attempt.Outcome),
		attempt.ErrorKind,
		attempt.Error,
		attempt.StartedAt,
		attempt.FinishedAt,
		attempt.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// CountsByKind returns failure counts per error kind since the given time.
func (a *AttemptArchive) CountsByKind(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT error_kind, COUNT(*) AS count
		FROM attempts
		WHERE outcome = 'failure' AND finished_at >= $1
		GROUP BY error_kind
	`

	var rows []struct {
		ErrorKind string `db:"error_kind"`
		Count     int    `db:"count"`
	}
	if err := a.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ErrorKind] = row.Count
	}
	return counts, nil
}

// Prune deletes attempts finished before the given time.
func (a *AttemptArchive) Prune(ctx context.Context, olderThan time.Time) error {
	query := `DELETE FROM attempts WHERE finished_at < $1`
	if _, err := a.db.ExecContext(ctx, query, olderThan); err != nil {
		return fmt.Errorf("failed to prune attempts: %w", err)
	}
	return nil
}
