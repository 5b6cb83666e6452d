package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task is a unit of work accepted from the broker. Immutable once
// enqueued; owned by the producer until a worker acknowledges it.
type Task struct {
	TaskID    string         `json:"task_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Priority  int            `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`

	// Extra holds wire fields this version does not know about.
	// They survive a decode/encode round trip instead of being dropped.
	Extra map[string]json.RawMessage `json:"-"`
}

var taskKnownFields = map[string]bool{
	"task_id":    true,
	"type":       true,
	"payload":    true,
	"priority":   true,
	"created_at": true,
}

// UnmarshalJSON decodes the wire format, keeping unknown fields in Extra.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["task_id"]; ok {
		if err := json.Unmarshal(v, &t.TaskID); err != nil {
			return fmt.Errorf("invalid task_id: %w", err)
		}
	}
	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &t.Type); err != nil {
			return fmt.Errorf("invalid type: %w", err)
		}
	}
	if v, ok := raw["payload"]; ok {
		if err := json.Unmarshal(v, &t.Payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}
	if v, ok := raw["priority"]; ok {
		if err := json.Unmarshal(v, &t.Priority); err != nil {
			return fmt.Errorf("invalid priority: %w", err)
		}
	}
	if v, ok := raw["created_at"]; ok {
		if err := json.Unmarshal(v, &t.CreatedAt); err != nil {
			return fmt.Errorf("invalid created_at: %w", err)
		}
	}

	for k, v := range raw {
		if taskKnownFields[k] {
			continue
		}
		if t.Extra == nil {
			t.Extra = make(map[string]json.RawMessage)
		}
		t.Extra[k] = v
	}
	return nil
}

// MarshalJSON encodes the wire format, emitting Extra fields alongside
// the known ones.
func (t Task) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(t.Extra)+5)
	for k, v := range t.Extra {
		out[k] = v
	}

	put := func(key string, value any) error {
		b, err := json.Marshal(value)
		if err != nil {
			return err
		}
		out[key] = b
		return nil
	}

	if err := put("task_id", t.TaskID); err != nil {
		return nil, err
	}
	if err := put("type", t.Type); err != nil {
		return nil, err
	}
	if err := put("payload", t.Payload); err != nil {
		return nil, err
	}
	if err := put("priority", t.Priority); err != nil {
		return nil, err
	}
	if err := put("created_at", t.CreatedAt); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// DecodeTask parses and validates a task message body.
func DecodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	if t.TaskID == "" {
		return nil, fmt.Errorf("task missing task_id")
	}
	if t.Type == "" {
		return nil, fmt.Errorf("task %s missing type", t.TaskID)
	}
	return &t, nil
}
