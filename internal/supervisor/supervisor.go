package supervisor

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/metrics"
)

// Scanner produces a fresh view of the host's worker processes. The
// procfs implementation lives in infra/procs; tests supply fakes.
type Scanner interface {
	Snapshot(ctx context.Context) ([]domain.WorkerDescriptor, error)
	Load(ctx context.Context) (domain.HostLoad, error)
}

// Controller performs process lifecycle actions.
type Controller interface {
	Terminate(pid int) error
	Kill(pid int) error
	Alive(pid int) bool
	Launch(role domain.WorkerRole, command []string, logPath string) (pid int, err error)
}

// RoleTarget configures one worker role's desired population.
type RoleTarget struct {
	Role         domain.WorkerRole
	Target       int
	StartCommand []string
}

// Config holds supervisor settings.
type Config struct {
	Roles                []RoleTarget
	ProtectedPatterns    []string
	ReconcileInterval    time.Duration
	GracePeriod          time.Duration
	MaxSystemLoadPercent float64
	KeepNewest           bool
	LogDir               string
}

// Plan is the outcome of comparing desired vs. actual worker counts.
type Plan struct {
	Keep      []domain.WorkerDescriptor
	Terminate []domain.WorkerDescriptor
	Launch    []domain.WorkerRole
}

// Supervisor keeps the worker pool within configured bounds. Each
// reconciliation cycle is independent and works only from a fresh scan;
// cycles are serialized by a mutex.
type Supervisor struct {
	cfg        Config
	scanner    Scanner
	controller Controller
	log        *slog.Logger
	mu         sync.Mutex
}

// New creates a supervisor.
func New(cfg Config, scanner Scanner, controller Controller, log *slog.Logger) *Supervisor {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 30 * time.Second
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{cfg: cfg, scanner: scanner, controller: controller, log: log}
}

// Run reconciles on a fixed interval until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	s.Reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reconcile(ctx)
		}
	}
}

// Reconcile runs one cycle: scan, plan, execute. A scan failure skips
// the cycle; the next interval retries.
func (s *Supervisor) Reconcile(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	descs, err := s.scanner.Snapshot(ctx)
	if err != nil {
		s.log.Error("process scan failed, skipping cycle", "error", err)
		return
	}

	load, err := s.scanner.Load(ctx)
	if err != nil {
		s.log.Warn("failed to read host load", "error", err)
	}

	plan := s.IdentifyTargets(descs, load)

	for role, count := range countByRole(descs) {
		metrics.WorkersRunning.WithLabelValues(string(role)).Set(float64(count))
	}

	for _, victim := range plan.Terminate {
		s.terminate(ctx, victim)
	}
	for _, role := range plan.Launch {
		s.launch(role)
	}

	s.log.Info("reconcile cycle complete",
		"workers", len(descs),
		"kept", len(plan.Keep),
		"terminated", len(plan.Terminate),
		"launched", len(plan.Launch),
		"cpu_percent", load.CPUPercent,
		"memory_percent", load.MemoryPercent)
}

// IdentifyTargets groups workers by role and plans the delta toward
// each role's target count. Protected processes are never candidates
// for termination.
func (s *Supervisor) IdentifyTargets(descs []domain.WorkerDescriptor, load domain.HostLoad) Plan {
	var plan Plan

	byRole := make(map[domain.WorkerRole][]domain.WorkerDescriptor)
	for _, d := range descs {
		byRole[d.Role] = append(byRole[d.Role], d)
	}

	overLoaded := s.cfg.MaxSystemLoadPercent > 0 &&
		(load.CPUPercent > s.cfg.MaxSystemLoadPercent || load.MemoryPercent > s.cfg.MaxSystemLoadPercent)

	for _, rt := range s.cfg.Roles {
		running := byRole[rt.Role]

		// Oldest first; duplicates are trimmed from the opposite end.
		sort.Slice(running, func(i, j int) bool {
			return running[i].StartedAt.Before(running[j].StartedAt)
		})
		if s.cfg.KeepNewest {
			reverse(running)
		}

		var keep, excess []domain.WorkerDescriptor
		for _, d := range running {
			if s.protected(d) || len(keep) < rt.Target {
				keep = append(keep, d)
				continue
			}
			excess = append(excess, d)
		}

		plan.Keep = append(plan.Keep, keep...)
		plan.Terminate = append(plan.Terminate, excess...)

		if missing := rt.Target - len(keep); missing > 0 && len(rt.StartCommand) > 0 {
			if overLoaded {
				s.log.Warn("host load exceeds limit, deferring launches",
					"role", string(rt.Role),
					"missing", missing,
					"max_load_percent", s.cfg.MaxSystemLoadPercent)
				continue
			}
			for i := 0; i < missing; i++ {
				plan.Launch = append(plan.Launch, rt.Role)
			}
		}
	}

	return plan
}

func (s *Supervisor) protected(d domain.WorkerDescriptor) bool {
	for _, p := range s.cfg.ProtectedPatterns {
		if strings.Contains(d.CommandLine, p) {
			return true
		}
	}
	return false
}

// terminate sends a graceful signal, waits the grace period, and
// force-kills the process if it is still alive.
func (s *Supervisor) terminate(ctx context.Context, d domain.WorkerDescriptor) {
	s.log.Info("terminating duplicate worker", "pid", d.PID, "role", string(d.Role))

	if err := s.controller.Terminate(d.PID); err != nil {
		s.log.Warn("graceful termination failed", "pid", d.PID, "error", err)
	}

	deadline := time.Now().Add(s.cfg.GracePeriod)
	for time.Now().Before(deadline) && s.controller.Alive(d.PID) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}

	if s.controller.Alive(d.PID) {
		s.log.Warn("worker did not exit within grace period, killing", "pid", d.PID)
		if err := s.controller.Kill(d.PID); err != nil {
			s.log.Error("force kill failed", "pid", d.PID, "error", err)
			return
		}
	}
	metrics.ReconcileActions.WithLabelValues("terminate").Inc()
}

func (s *Supervisor) launch(role domain.WorkerRole) {
	var command []string
	for _, rt := range s.cfg.Roles {
		if rt.Role == role {
			command = rt.StartCommand
			break
		}
	}

	logPath := logFilePath(s.cfg.LogDir, role, time.Now())
	pid, err := s.controller.Launch(role, command, logPath)
	if err != nil {
		s.log.Error("failed to launch worker", "role", string(role), "error", err)
		return
	}

	s.log.Info("launched worker", "role", string(role), "pid", pid, "log", logPath)
	metrics.ReconcileActions.WithLabelValues("launch").Inc()
}

func countByRole(descs []domain.WorkerDescriptor) map[domain.WorkerRole]int {
	counts := make(map[domain.WorkerRole]int)
	for _, d := range descs {
		counts[d.Role]++
	}
	return counts
}

func reverse(descs []domain.WorkerDescriptor) {
	for i, j := 0, len(descs)-1; i < j; i, j = i+1, j-1 {
		descs[i], descs[j] = descs[j], descs[i]
	}
}
