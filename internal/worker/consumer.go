package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/infra/broker"
	"github.com/vietddude/foreman/internal/metrics"
	"github.com/vietddude/foreman/internal/resilience"
)

// State is the consumer's lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConsuming    State = "consuming"
	StateExecuting    State = "executing"
	StateAcking       State = "acking"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
)

// Consumer is a single long-lived worker: it pulls one message at a
// time from its input queue, executes the task through the resilient
// executor, and ends every message in ack or nack.
type Consumer struct {
	id          string
	role        domain.WorkerRole
	source      Source
	publisher   Publisher
	registry    *Registry
	executor    *resilience.Executor
	resultQueue string
	log         *slog.Logger
	state       State
}

// NewConsumer creates a worker consumer. The id defaults to a fresh
// UUID when empty.
func NewConsumer(
	id string,
	role domain.WorkerRole,
	source Source,
	publisher Publisher,
	registry *Registry,
	executor *resilience.Executor,
	resultQueue string,
	log *slog.Logger,
) *Consumer {
	if id == "" {
		id = uuid.New().String()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		id:          id,
		role:        role,
		source:      source,
		publisher:   publisher,
		registry:    registry,
		executor:    executor,
		resultQueue: resultQueue,
		log:         log.With("worker_id", id, "role", string(role)),
		state:       StateDisconnected,
	}
}

// ID returns the worker id.
func (c *Consumer) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	return c.state
}

// Run drives the consume loop until the context is cancelled. The
// in-flight message, if any, is finished before returning.
func (c *Consumer) Run(ctx context.Context) error {
	c.state = StateConnecting

	if n, err := c.source.Recover(ctx); err != nil {
		// Connection-level failure at startup is fatal: the supervisor's
		// restart policy owns recovery, not a local retry loop.
		c.state = StateStopped
		return fmt.Errorf("failed to recover stranded messages: %w", err)
	} else if n > 0 {
		c.log.Info("requeued stranded messages", "count", n)
	}

	c.state = StateConsuming
	c.log.Info("worker consuming")

	for {
		if ctx.Err() != nil {
			break
		}

		delivery, err := c.source.Next(ctx)
		if errors.Is(err, broker.ErrQueueEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.log.Error("consume failed", "error", err)
			continue
		}

		metrics.LastConsume.WithLabelValues(string(c.role)).SetToCurrentTime()
		c.handle(ctx, delivery)
		c.state = StateConsuming
	}

	c.state = StateStopping
	c.log.Info("worker stopping")
	c.state = StateStopped
	return nil
}

// handle processes one delivery. Every code path ends in ack or nack;
// nothing raised here escapes the loop.
func (c *Consumer) handle(ctx context.Context, delivery Delivery) {
	// The in-flight message is finished even when shutdown has begun.
	finish := context.WithoutCancel(ctx)

	task, err := domain.DecodeTask(delivery.Body())
	if err != nil {
		// Poison-message escape valve: requeue so another worker (or a
		// later attempt) can try; the broker dead-letters past the bound.
		c.log.Warn("malformed task message, requeueing", "error", err)
		if nerr := delivery.Nack(finish, true); nerr != nil {
			c.log.Error("nack failed", "error", nerr)
		}
		return
	}

	handler, ok := c.registry.Resolve(task.Type)
	if !ok {
		// Unknown type never succeeds on retry; surface a terminal
		// failure result instead of bouncing the message forever.
		c.log.Error("no handler for task type", "task_id", task.TaskID, "type", task.Type)
		c.finish(finish, delivery, task, resilience.ExecutionResult{
			Status:    resilience.StatusFailure,
			Err:       fmt.Errorf("no handler registered for type %q", task.Type),
			ErrorKind: resilience.KindConfig,
		})
		return
	}

	c.state = StateExecuting
	c.log.Info("executing task", "task_id", task.TaskID, "type", task.Type)

	// Execute on the shielded context too: shutdown stops pulling new
	// messages but the task already started keeps running to completion,
	// bounded by the executor's attempt ceiling.
	var content string
	var taskMetrics map[string]any
	res := c.executor.Execute(finish, task.TaskID, func(ctx context.Context) (any, error) {
		out, m, err := handler.Handle(ctx, task)
		if err != nil {
			return nil, err
		}
		content = out
		taskMetrics = m
		return out, nil
	})
	res.Value = content

	metrics.TaskDuration.WithLabelValues(string(c.role)).Observe(res.TotalDuration.Seconds())
	c.finishWithMetrics(finish, delivery, task, res, taskMetrics)
}

func (c *Consumer) finish(ctx context.Context, delivery Delivery, task *domain.Task, res resilience.ExecutionResult) {
	c.finishWithMetrics(ctx, delivery, task, res, nil)
}

// finishWithMetrics publishes the Result and acknowledges the message.
// Both success and terminal failure ack: the task is complete either
// way, and re-running it would not change the outcome.
func (c *Consumer) finishWithMetrics(
	ctx context.Context,
	delivery Delivery,
	task *domain.Task,
	res resilience.ExecutionResult,
	taskMetrics map[string]any,
) {
	c.state = StateAcking

	result := c.buildResult(task, res, taskMetrics)
	body, err := json.Marshal(result)
	if err != nil {
		c.log.Error("failed to encode result", "task_id", task.TaskID, "error", err)
	} else if err := c.publisher.Publish(ctx, c.resultQueue, body, 0); err != nil {
		// A result-channel outage must not re-run a completed task.
		c.log.Error("failed to publish result", "task_id", task.TaskID, "error", err)
	}

	if err := delivery.Ack(ctx); err != nil {
		c.log.Error("ack failed", "task_id", task.TaskID, "error", err)
	}

	metrics.TasksProcessed.WithLabelValues(string(c.role), string(result.Status)).Inc()
}

func (c *Consumer) buildResult(task *domain.Task, res resilience.ExecutionResult, taskMetrics map[string]any) *domain.Result {
	status := domain.ResultSuccess
	content := ""
	if s, ok := res.Value.(string); ok {
		content = s
	}

	if res.Status == resilience.StatusFailure {
		status = domain.ResultFailure
		if res.Err != nil {
			content = res.Err.Error()
		}
	}

	m := make(map[string]any, len(taskMetrics)+3)
	for k, v := range taskMetrics {
		m[k] = v
	}
	m["attempts"] = len(res.Attempts)
	m["duration_ms"] = res.TotalDuration.Milliseconds()
	if res.ErrorKind != "" {
		m["error_kind"] = string(res.ErrorKind)
	}

	return &domain.Result{
		TaskID:   task.TaskID,
		WorkerID: c.id,
		Status:   status,
		Content:  content,
		Metrics:  m,
	}
}
