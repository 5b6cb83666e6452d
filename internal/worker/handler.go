package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
)

// Handler executes the business function for one task type. The content
// and metrics it returns become the Result payload.
type Handler interface {
	Handle(ctx context.Context, task *domain.Task) (content string, metrics map[string]any, err error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *domain.Task) (string, map[string]any, error)

func (f HandlerFunc) Handle(ctx context.Context, task *domain.Task) (string, map[string]any, error) {
	return f(ctx, task)
}

// Registry maps task types to handlers.
type Registry struct {
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a task type.
func (r *Registry) Register(taskType string, h Handler) {
	r.handlers[taskType] = h
}

// SetFallback sets the handler used for unregistered task types.
func (r *Registry) SetFallback(h Handler) {
	r.fallback = h
}

// Resolve returns the handler for a task type, or false when the type
// is unknown and no fallback is set.
func (r *Registry) Resolve(taskType string) (Handler, bool) {
	if h, ok := r.handlers[taskType]; ok {
		return h, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// ExecHandler runs a configured command with the task payload JSON on
// stdin. The actual task logic lives in an external program; this is
// the bridge to it.
type ExecHandler struct {
	command []string
}

// NewExecHandler creates a handler around a start command.
func NewExecHandler(command []string) (*ExecHandler, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("exec handler requires a command")
	}
	return &ExecHandler{command: command}, nil
}

// Handle runs the command, feeding it the task as JSON and returning
// its stdout as the result content.
func (h *ExecHandler) Handle(ctx context.Context, task *domain.Task) (string, map[string]any, error) {
	input, err := json.Marshal(task)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode task: %w", err)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, h.command[0], h.command[1:]...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", nil, fmt.Errorf("task command failed: %s", msg)
	}

	metrics := map[string]any{
		"duration_ms":  time.Since(start).Milliseconds(),
		"output_bytes": stdout.Len(),
	}
	return stdout.String(), metrics, nil
}
