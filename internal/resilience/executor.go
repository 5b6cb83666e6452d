package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/metrics"
)

// Status is the terminal status of an execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ExecutionResult is the structured outcome of running a function
// through the executor. Callers always receive one of these; errors
// never escape the executor's boundary.
type ExecutionResult struct {
	Status        Status
	Value         any
	Err           error
	ErrorKind     ErrorKind
	Attempts      []domain.ExecutionAttempt
	TotalDuration time.Duration
}

// TaskFunc is the unit of work the executor drives.
type TaskFunc func(ctx context.Context) (any, error)

// AttemptRecorder persists attempts beyond process memory. Optional.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt domain.ExecutionAttempt) error
}

// Executor wraps a task callable with classified, bounded retries and
// keeps a rolling history of outcomes for health reporting.
type Executor struct {
	classifier *Classifier
	history    *History
	archive    AttemptRecorder
	log        *slog.Logger
}

// NewExecutor creates an executor. archive may be nil; log defaults to
// slog.Default().
func NewExecutor(classifier *Classifier, history *History, archive AttemptRecorder, log *slog.Logger) *Executor {
	if classifier == nil {
		classifier = NewClassifier()
	}
	if history == nil {
		history = NewHistory(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{classifier: classifier, history: history, archive: archive, log: log}
}

// History exposes the rolling attempt history.
func (e *Executor) History() *History {
	return e.history
}

// Execute runs fn for taskID, retrying per the classified strategy of
// each failure. A non-retryable classification stops immediately.
func (e *Executor) Execute(ctx context.Context, taskID string, fn TaskFunc) ExecutionResult {
	start := time.Now()
	result := ExecutionResult{}

	for attempt := 1; ; attempt++ {
		attemptStart := time.Now()
		value, err := e.run(ctx, fn)
		attemptEnd := time.Now()

		rec := domain.ExecutionAttempt{
			TaskID:     taskID,
			Attempt:    attempt,
			StartedAt:  attemptStart,
			FinishedAt: attemptEnd,
			Duration:   attemptEnd.Sub(attemptStart),
		}

		if err == nil {
			rec.Outcome = domain.AttemptSuccess
			e.record(ctx, rec, KindUnknown)
			result.Status = StatusSuccess
			result.Value = value
			result.Attempts = append(result.Attempts, rec)
			result.TotalDuration = time.Since(start)
			return result
		}

		kind, retryable, strat := e.classifier.Classify(err)
		rec.Outcome = domain.AttemptFailure
		rec.ErrorKind = string(kind)
		rec.Error = err.Error()
		e.record(ctx, rec, kind)
		result.Attempts = append(result.Attempts, rec)
		result.Err = err
		result.ErrorKind = kind

		// The ceiling always follows the current failure's classification,
		// so an attempt count can never exceed the max of its kind.
		maxAttempts := strat.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}

		metrics.TaskRetries.WithLabelValues(string(kind)).Inc()

		if !retryable || attempt >= maxAttempts {
			result.Status = StatusFailure
			result.TotalDuration = time.Since(start)
			e.log.Error("task failed terminally",
				"task_id", taskID,
				"error_kind", string(kind),
				"attempts", attempt,
				"retryable", retryable,
				"error", err)
			return result
		}

		delay := strat.Delay(attempt)
		e.log.Warn("task attempt failed, retrying",
			"task_id", taskID,
			"error_kind", string(kind),
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			result.Status = StatusFailure
			result.Err = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		case <-time.After(delay):
		}
	}
}

// run invokes fn, converting a panic into an error so nothing escapes
// the executor's boundary.
func (e *Executor) run(ctx context.Context, fn TaskFunc) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (e *Executor) record(ctx context.Context, rec domain.ExecutionAttempt, kind ErrorKind) {
	h := kind
	if rec.Outcome == domain.AttemptSuccess {
		h = ErrorKind("")
	}
	e.history.Record(h, rec.Outcome, rec.FinishedAt)

	if e.archive != nil {
		if err := e.archive.Record(ctx, rec); err != nil {
			e.log.Warn("failed to archive attempt", "task_id", rec.TaskID, "error", err)
		}
	}
}
