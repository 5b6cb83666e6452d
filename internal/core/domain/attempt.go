package domain

import "time"

// AttemptOutcome is the outcome of a single execution attempt.
type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailure AttemptOutcome = "failure"
)

// ExecutionAttempt records one attempt at running a task. Appended by
// the executor and never mutated after creation.
type ExecutionAttempt struct {
	TaskID     string         `json:"task_id"     db:"task_id"`
	Attempt    int            `json:"attempt"     db:"attempt"`
	StartedAt  time.Time      `json:"started_at"  db:"started_at"`
	FinishedAt time.Time      `json:"finished_at" db:"finished_at"`
	Outcome    AttemptOutcome `json:"outcome"     db:"outcome"`
	ErrorKind  string         `json:"error_kind,omitempty" db:"error_kind"`
	Error      string         `json:"error,omitempty"      db:"error_msg"`
	Duration   time.Duration  `json:"duration"    db:"-"`
}
