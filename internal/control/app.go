package control

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/foreman/internal/core/config"
	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/health"
	"github.com/vietddude/foreman/internal/infra/broker"
	"github.com/vietddude/foreman/internal/infra/notify"
	"github.com/vietddude/foreman/internal/infra/procs"
	"github.com/vietddude/foreman/internal/infra/storage"
	"github.com/vietddude/foreman/internal/infra/storage/memory"
	"github.com/vietddude/foreman/internal/infra/storage/postgres"
	"github.com/vietddude/foreman/internal/resilience"
	"github.com/vietddude/foreman/internal/router"
	"github.com/vietddude/foreman/internal/supervisor"
)

// Options selects which components the orchestrator process runs.
type Options struct {
	RunSupervisor bool
	RunRouter     bool
}

// App is the orchestrator: it owns the supervisor, the result router,
// the health server and the attempt archive pruner, sharing one broker
// connection and one failure history between them.
type App struct {
	cfg          *config.AppConfig
	opts         Options
	broker       *broker.Client
	db           *postgres.DB
	archive      storage.AttemptArchive
	history      *resilience.History
	supervisor   *supervisor.Supervisor
	router       *router.Router
	pruner       *storage.Pruner
	healthServer *health.Server
	log          *slog.Logger
}

// NewApp creates an orchestrator with all dependencies initialized.
func NewApp(cfg *config.AppConfig, opts Options) (*App, error) {
	log := slog.Default()

	brokerClient, err := broker.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to init broker: %w", err)
	}

	archive, db, err := newArchive(cfg)
	if err != nil {
		return nil, err
	}

	history := resilience.NewHistory(0)

	var scanner *procs.Scanner
	var sup *supervisor.Supervisor
	if opts.RunSupervisor {
		scanner, err = procs.NewScanner(rolePatterns(cfg.Workers))
		if err != nil {
			return nil, fmt.Errorf("failed to init process scanner: %w", err)
		}
		sup = supervisor.New(supervisor.Config{
			Roles:                roleTargets(cfg.Workers),
			ProtectedPatterns:    cfg.Supervisor.ProtectedPatterns,
			ReconcileInterval:    cfg.Supervisor.ReconcileInterval,
			GracePeriod:          cfg.Supervisor.GracePeriod,
			MaxSystemLoadPercent: cfg.Supervisor.MaxSystemLoadPercent,
			KeepNewest:           cfg.Supervisor.KeepNewest,
			LogDir:               cfg.Supervisor.LogDir,
		}, scanner, supervisor.NewOSController(), log)
	}

	var rtr *router.Router
	if opts.RunRouter {
		var sink notify.Sink
		if cfg.Router.WebhookURL != "" {
			sink = notify.NewWebhook(cfg.Router.WebhookURL)
		} else {
			slog.Info("No webhook configured, notifications go to the log")
			sink = &LogSink{}
		}

		sub := brokerClient.Subscribe(cfg.Router.ResultQueue, "router")
		exec := resilience.NewExecutor(router.SinkClassifier(), history, nil, log)
		rtr = router.New(router.Config{
			SummaryInterval: cfg.Router.SummaryInterval,
			PreviewLimit:    cfg.Router.PreviewLimit,
		}, router.NewSource(sub), sink, exec, log)
	}

	monitor := health.NewMonitor(
		monitoredQueues(cfg),
		brokerClient,
		scannerOrNil(scanner),
		targetsByRole(cfg.Workers),
		history,
	)

	return &App{
		cfg:          cfg,
		opts:         opts,
		broker:       brokerClient,
		db:           db,
		archive:      archive,
		history:      history,
		supervisor:   sup,
		router:       rtr,
		pruner:       storage.NewPruner(archive, cfg.Archive.RetentionPeriod),
		healthServer: health.NewServer(monitor, cfg.Server.Port),
		log:          log,
	}, nil
}

// Start starts the selected components.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.supervisor != nil {
		a.log.Info("Starting supervisor")
		go a.supervisor.Run(ctx)
	}

	if a.router != nil {
		a.log.Info("Starting result router")
		go func() {
			if err := a.router.Run(ctx); err != nil {
				a.log.Error("Result router failed", "error", err)
			}
		}()
	}

	go a.pruner.Start(ctx)

	return nil
}

// Stop stops the orchestrator.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping orchestrator...")

	if err := a.broker.Close(); err != nil {
		a.log.Warn("Failed to close broker", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	return a.healthServer.Stop(ctx)
}

// newArchive selects the attempt archive backend: PostgreSQL when a
// database URL is configured, in-memory otherwise.
func newArchive(cfg *config.AppConfig) (storage.AttemptArchive, *postgres.DB, error) {
	if cfg.Database.URL == "" {
		slog.Info("Using memory attempt archive")
		return memory.NewAttemptArchive(), nil, nil
	}

	db, err := postgres.NewDB(context.Background(), cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init db: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, nil, err
	}
	// Migrations are in the "migrations" folder relative to CWD
	if err := goose.Up(db.DB.DB, "migrations"); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	slog.Info("Using PostgreSQL attempt archive")
	return postgres.NewAttemptArchive(db), db, nil
}

func rolePatterns(workers []config.WorkerRoleConfig) []procs.RolePattern {
	patterns := make([]procs.RolePattern, 0, len(workers))
	for _, w := range workers {
		if w.Pattern == "" {
			continue
		}
		patterns = append(patterns, procs.RolePattern{Role: w.Role, Pattern: w.Pattern})
	}
	return patterns
}

func roleTargets(workers []config.WorkerRoleConfig) []supervisor.RoleTarget {
	targets := make([]supervisor.RoleTarget, 0, len(workers))
	for _, w := range workers {
		targets = append(targets, supervisor.RoleTarget{
			Role:         w.Role,
			Target:       w.Target,
			StartCommand: w.StartCommand,
		})
	}
	return targets
}

func targetsByRole(workers []config.WorkerRoleConfig) map[domain.WorkerRole]int {
	targets := make(map[domain.WorkerRole]int)
	for _, w := range workers {
		targets[w.Role] += w.Target
	}
	return targets
}

// monitoredQueues lists every distinct queue the config touches.
func monitoredQueues(cfg *config.AppConfig) []string {
	seen := make(map[string]bool)
	var queues []string
	add := func(q string) {
		if q != "" && !seen[q] {
			seen[q] = true
			queues = append(queues, q)
		}
	}
	for _, w := range cfg.Workers {
		add(w.Queue)
	}
	add(cfg.Router.ResultQueue)
	return queues
}

// scannerOrNil avoids handing the monitor a typed nil pointer.
func scannerOrNil(s *procs.Scanner) health.ProcessScanner {
	if s == nil {
		return nil
	}
	return s
}

// LogSink implements notify.Sink for local runs without a webhook.
type LogSink struct{}

func (s *LogSink) Send(ctx context.Context, message string) error {
	for _, line := range strings.Split(message, "\n") {
		fmt.Printf("[NOTIFY] %s\n", line)
	}
	return nil
}
