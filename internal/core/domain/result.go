package domain

import (
	"encoding/json"
	"fmt"
)

// ResultStatus is the terminal status a worker assigns to a task.
type ResultStatus string

const (
	ResultSuccess  ResultStatus = "success"
	ResultFailure  ResultStatus = "failure"
	ResultNeedInfo ResultStatus = "need_info"
)

// Result is produced once per completed task and consumed exactly once
// by the result router. Terminal after notification dispatch.
type Result struct {
	TaskID   string         `json:"task_id"`
	WorkerID string         `json:"worker_id"`
	Status   ResultStatus   `json:"status"`
	Content  string         `json:"content"`
	Metrics  map[string]any `json:"metrics"`

	Extra map[string]json.RawMessage `json:"-"`
}

var resultKnownFields = map[string]bool{
	"task_id":   true,
	"worker_id": true,
	"status":    true,
	"content":   true,
	"metrics":   true,
}

// UnmarshalJSON decodes the wire format, keeping unknown fields in Extra.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := map[string]any{
		"task_id":   &r.TaskID,
		"worker_id": &r.WorkerID,
		"status":    &r.Status,
		"content":   &r.Content,
		"metrics":   &r.Metrics,
	}
	for key, dest := range fields {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, dest); err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
		}
	}

	for k, v := range raw {
		if resultKnownFields[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	return nil
}

// MarshalJSON encodes the wire format, emitting Extra fields alongside
// the known ones.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Extra)+5)
	for k, v := range r.Extra {
		out[k] = v
	}

	fields := map[string]any{
		"task_id":   r.TaskID,
		"worker_id": r.WorkerID,
		"status":    r.Status,
		"content":   r.Content,
		"metrics":   r.Metrics,
	}
	for key, value := range fields {
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		out[key] = b
	}
	return json.Marshal(out)
}

// DecodeResult parses and validates a result message body.
func DecodeResult(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	if r.TaskID == "" {
		return nil, fmt.Errorf("result missing task_id")
	}
	switch r.Status {
	case ResultSuccess, ResultFailure, ResultNeedInfo:
	default:
		return nil, fmt.Errorf("result %s has unknown status %q", r.TaskID, r.Status)
	}
	return &r, nil
}
