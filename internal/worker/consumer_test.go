package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/infra/broker"
	"github.com/vietddude/foreman/internal/resilience"
)

// =============================================================================
// Mocks
// =============================================================================

type mockDelivery struct {
	mu      sync.Mutex
	body    []byte
	acked   bool
	nacked  bool
	requeue bool
}

func (d *mockDelivery) Body() []byte { return d.body }

func (d *mockDelivery) Ack(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acked = true
	return nil
}

func (d *mockDelivery) Nack(ctx context.Context, requeue bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nacked = true
	d.requeue = requeue
	return nil
}

// mockSource yields queued deliveries, then reports empty until the
// context is cancelled.
type mockSource struct {
	mu         sync.Mutex
	deliveries []*mockDelivery
	cancel     context.CancelFunc
}

func (s *mockSource) Next(ctx context.Context) (Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deliveries) == 0 {
		// Out of messages: stop the consumer so tests terminate.
		if s.cancel != nil {
			s.cancel()
		}
		return nil, broker.ErrQueueEmpty
	}
	d := s.deliveries[0]
	s.deliveries = s.deliveries[1:]
	return d, nil
}

func (s *mockSource) Recover(ctx context.Context) (int, error) { return 0, nil }

type mockPublisher struct {
	mu        sync.Mutex
	published []struct {
		queue string
		body  []byte
	}
	err error
}

func (p *mockPublisher) Publish(ctx context.Context, queue string, body []byte, priority int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, struct {
		queue string
		body  []byte
	}{queue, body})
	return nil
}

func (p *mockPublisher) results(t *testing.T) []*domain.Result {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.Result, 0, len(p.published))
	for _, pub := range p.published {
		r, err := domain.DecodeResult(pub.body)
		if err != nil {
			t.Fatalf("published result does not decode: %v", err)
		}
		out = append(out, r)
	}
	return out
}

// =============================================================================
// Helpers
// =============================================================================

func taskBody(t *testing.T, id, taskType string) []byte {
	t.Helper()
	body, err := json.Marshal(&domain.Task{
		TaskID:    id,
		Type:      taskType,
		Payload:   map[string]any{},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	return body
}

func runConsumer(t *testing.T, source *mockSource, pub *mockPublisher, registry *Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	source.cancel = cancel

	exec := resilience.NewExecutor(resilience.NewClassifier(), resilience.NewHistory(0), nil, nil)
	c := NewConsumer("w-test", domain.RoleTask, source, pub, registry, exec, broker.ResultQueue, nil)
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if c.State() != StateStopped {
		t.Errorf("state = %s, want stopped", c.State())
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestConsumer_SuccessAcksAndPublishesResult(t *testing.T) {
	delivery := &mockDelivery{body: taskBody(t, "t-1", "generate")}
	source := &mockSource{deliveries: []*mockDelivery{delivery}}
	pub := &mockPublisher{}

	registry := NewRegistry()
	registry.Register("generate", HandlerFunc(func(ctx context.Context, task *domain.Task) (string, map[string]any, error) {
		return "generated output", map[string]any{"files_touched": 2}, nil
	}))

	runConsumer(t, source, pub, registry)

	if !delivery.acked {
		t.Error("delivery was not acked")
	}
	if delivery.nacked {
		t.Error("delivery should not be nacked on success")
	}

	results := pub.results(t)
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	r := results[0]
	if r.TaskID != "t-1" || r.Status != domain.ResultSuccess {
		t.Errorf("result = %s/%s, want t-1/success", r.TaskID, r.Status)
	}
	if r.Content != "generated output" {
		t.Errorf("content = %q", r.Content)
	}
	if r.Metrics["files_touched"] != float64(2) {
		t.Errorf("files_touched = %v", r.Metrics["files_touched"])
	}
	if r.Metrics["attempts"] != float64(1) {
		t.Errorf("attempts = %v, want 1", r.Metrics["attempts"])
	}
}

func TestConsumer_MalformedMessageNacksWithRequeue(t *testing.T) {
	delivery := &mockDelivery{body: []byte("{{{not json")}
	source := &mockSource{deliveries: []*mockDelivery{delivery}}
	pub := &mockPublisher{}

	runConsumer(t, source, pub, NewRegistry())

	if !delivery.nacked {
		t.Fatal("malformed message was not nacked")
	}
	if !delivery.requeue {
		t.Error("nack should request requeue")
	}
	if delivery.acked {
		t.Error("malformed message must not be acked")
	}
	if len(pub.results(t)) != 0 {
		t.Error("no result should be published for a malformed message")
	}
}

func TestConsumer_TerminalFailureAcksWithFailureResult(t *testing.T) {
	delivery := &mockDelivery{body: taskBody(t, "t-2", "generate")}
	source := &mockSource{deliveries: []*mockDelivery{delivery}}
	pub := &mockPublisher{}

	registry := NewRegistry()
	registry.Register("generate", HandlerFunc(func(ctx context.Context, task *domain.Task) (string, map[string]any, error) {
		return "", nil, errors.New("open model weights: permission denied")
	}))

	runConsumer(t, source, pub, registry)

	if !delivery.acked {
		t.Error("terminal failure must ack the message")
	}

	results := pub.results(t)
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	r := results[0]
	if r.Status != domain.ResultFailure {
		t.Errorf("status = %s, want failure", r.Status)
	}
	if r.Metrics["error_kind"] != string(resilience.KindPermission) {
		t.Errorf("error_kind = %v, want permission", r.Metrics["error_kind"])
	}
	if r.Metrics["attempts"] != float64(1) {
		t.Errorf("attempts = %v, want 1 for non-retryable", r.Metrics["attempts"])
	}
}

func TestConsumer_UnknownTypeFailsTerminally(t *testing.T) {
	delivery := &mockDelivery{body: taskBody(t, "t-3", "mystery")}
	source := &mockSource{deliveries: []*mockDelivery{delivery}}
	pub := &mockPublisher{}

	runConsumer(t, source, pub, NewRegistry())

	if !delivery.acked {
		t.Error("unknown task type must ack, not requeue forever")
	}
	results := pub.results(t)
	if len(results) != 1 || results[0].Status != domain.ResultFailure {
		t.Fatalf("expected one failure result, got %v", results)
	}
}

func TestConsumer_PublishFailureStillAcks(t *testing.T) {
	delivery := &mockDelivery{body: taskBody(t, "t-4", "generate")}
	source := &mockSource{deliveries: []*mockDelivery{delivery}}
	pub := &mockPublisher{err: errors.New("result queue unavailable")}

	registry := NewRegistry()
	registry.Register("generate", HandlerFunc(func(ctx context.Context, task *domain.Task) (string, map[string]any, error) {
		return "done", nil, nil
	}))

	runConsumer(t, source, pub, registry)

	if !delivery.acked {
		t.Error("a result-channel outage must not re-run a completed task")
	}
}

func TestConsumer_ShutdownFinishesInFlightTask(t *testing.T) {
	delivery := &mockDelivery{body: taskBody(t, "t-5", "generate")}
	source := &mockSource{deliveries: []*mockDelivery{delivery}}
	pub := &mockPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source.cancel = cancel

	registry := NewRegistry()
	registry.Register("generate", HandlerFunc(func(hctx context.Context, task *domain.Task) (string, map[string]any, error) {
		// Shutdown arrives while the task is running.
		cancel()
		if err := hctx.Err(); err != nil {
			return "", nil, err
		}
		return "finished", nil, nil
	}))

	exec := resilience.NewExecutor(resilience.NewClassifier(), resilience.NewHistory(0), nil, nil)
	c := NewConsumer("w-test", domain.RoleTask, source, pub, registry, exec, broker.ResultQueue, nil)
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !delivery.acked {
		t.Fatal("in-flight delivery was not acked")
	}
	results := pub.results(t)
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	if results[0].Status != domain.ResultSuccess || results[0].Content != "finished" {
		t.Errorf("result = %s/%q, want success/finished", results[0].Status, results[0].Content)
	}
}

func TestRegistry_Fallback(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Resolve("anything"); ok {
		t.Error("empty registry should not resolve")
	}

	r.SetFallback(HandlerFunc(func(ctx context.Context, task *domain.Task) (string, map[string]any, error) {
		return "fallback", nil, nil
	}))
	if _, ok := r.Resolve("anything"); !ok {
		t.Error("fallback should resolve unknown types")
	}
}
