package control

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vietddude/foreman/internal/core/config"
	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/infra/broker"
	"github.com/vietddude/foreman/internal/resilience"
	"github.com/vietddude/foreman/internal/worker"
)

// Worker bundles one consumer process's dependencies.
type Worker struct {
	consumer *worker.Consumer
	broker   *broker.Client
	log      *slog.Logger
}

// NewWorker wires a consumer for one role from the application config.
// A stable id scopes the broker processing list, letting a restarted
// worker recover its predecessor's in-flight message; when empty, a
// fresh one is generated and stranded messages wait for queue recovery.
func NewWorker(cfg *config.AppConfig, role domain.WorkerRole, id string) (*Worker, error) {
	if id == "" {
		id = uuid.New().String()
	}
	roleCfg, err := findRole(cfg.Workers, role)
	if err != nil {
		return nil, err
	}
	if roleCfg.ResultQueue == "" {
		roleCfg.ResultQueue = cfg.Router.ResultQueue
	}

	brokerClient, err := broker.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to init broker: %w", err)
	}

	archive, _, err := newArchive(cfg)
	if err != nil {
		brokerClient.Close()
		return nil, err
	}

	registry, err := buildRegistry(roleCfg)
	if err != nil {
		brokerClient.Close()
		return nil, err
	}

	log := slog.Default()
	exec := resilience.NewExecutor(resilience.NewClassifier(), resilience.NewHistory(0), archive, log)

	consumer := worker.NewConsumer(
		id,
		role,
		worker.NewSource(brokerClient.Subscribe(roleCfg.Queue, fmt.Sprintf("%s-%s", role, id))),
		brokerClient,
		registry,
		exec,
		roleCfg.ResultQueue,
		log,
	)

	return &Worker{consumer: consumer, broker: brokerClient, log: log}, nil
}

// Run drives the consume loop until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Run(ctx)
}

// Close releases the broker connection.
func (w *Worker) Close() error {
	return w.broker.Close()
}

func findRole(workers []config.WorkerRoleConfig, role domain.WorkerRole) (config.WorkerRoleConfig, error) {
	for _, w := range workers {
		if w.Role == role {
			return w, nil
		}
	}
	return config.WorkerRoleConfig{}, fmt.Errorf("no worker config for role %q", role)
}

// buildRegistry maps configured task types to exec handlers.
func buildRegistry(roleCfg config.WorkerRoleConfig) (*worker.Registry, error) {
	registry := worker.NewRegistry()

	for taskType, command := range roleCfg.Handlers {
		h, err := worker.NewExecHandler(strings.Fields(command))
		if err != nil {
			return nil, fmt.Errorf("handler for type %q: %w", taskType, err)
		}
		registry.Register(taskType, h)
	}

	if roleCfg.Fallback != "" {
		h, err := worker.NewExecHandler(strings.Fields(roleCfg.Fallback))
		if err != nil {
			return nil, fmt.Errorf("fallback handler: %w", err)
		}
		registry.SetFallback(h)
	}

	return registry, nil
}
