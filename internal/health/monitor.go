package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/metrics"
	"github.com/vietddude/foreman/internal/resilience"
)

// DepthReader reports queue depths from the broker.
type DepthReader interface {
	Depth(ctx context.Context, queue string) (int64, error)
	DeadDepth(ctx context.Context, queue string) (int64, error)
}

// ProcessScanner lists worker processes currently running on the host.
type ProcessScanner interface {
	Snapshot(ctx context.Context) ([]domain.WorkerDescriptor, error)
}

// Monitor aggregates health status from queues, worker processes and
// the execution failure history.
type Monitor struct {
	queues     []string
	depths     DepthReader
	scanner    ProcessScanner
	targets    map[domain.WorkerRole]int
	history    *resilience.History
	lastCheck  time.Time
	lastReport Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	queues []string,
	depths DepthReader,
	scanner ProcessScanner,
	targets map[domain.WorkerRole]int,
	history *resilience.History,
) *Monitor {
	return &Monitor{
		queues:  queues,
		depths:  depths,
		scanner: scanner,
		targets: targets,
		history: history,
	}
}

// CheckHealth performs a health check across all components.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (e.g. max once per 10s) to avoid hammering the broker
	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport.SystemStatus != "" {
		return m.lastReport
	}

	report := Report{
		SystemStatus: StatusHealthy,
		Queues:       make(map[string]QueueHealth),
		Roles:        make(map[string]RoleHealth),
	}

	for _, queue := range m.queues {
		report.Queues[queue] = m.checkQueue(ctx, queue)
	}
	for role, rh := range m.checkRoles(ctx) {
		report.Roles[role] = rh
	}
	if m.history != nil {
		report.Execution = m.history.Report()
	}

	// Aggregate status (worst case wins)
	for _, q := range report.Queues {
		report.SystemStatus = worse(report.SystemStatus, q.Status)
	}
	for _, r := range report.Roles {
		report.SystemStatus = worse(report.SystemStatus, r.Status)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) checkQueue(ctx context.Context, queue string) QueueHealth {
	qh := QueueHealth{Queue: queue, Status: StatusHealthy}

	depth, err := m.depths.Depth(ctx, queue)
	if err != nil {
		// If we can't reach the broker, that's degradation
		qh.Status = StatusDegraded
		qh.DepthError = err.Error()
		return qh
	}
	qh.Depth = depth
	metrics.QueueDepth.WithLabelValues(queue).Set(float64(depth))

	if dead, err := m.depths.DeadDepth(ctx, queue); err == nil {
		qh.DeadDepth = dead
	}

	if qh.Depth > 1000 || qh.DeadDepth > 50 {
		qh.Status = StatusCritical
	} else if qh.Depth > 100 || qh.DeadDepth > 0 {
		qh.Status = StatusDegraded
	}
	return qh
}

func (m *Monitor) checkRoles(ctx context.Context) map[string]RoleHealth {
	out := make(map[string]RoleHealth)
	if m.scanner == nil {
		return out
	}

	running := make(map[domain.WorkerRole]int)
	workers, err := m.scanner.Snapshot(ctx)
	if err == nil {
		for _, w := range workers {
			running[w.Role]++
		}
	}

	for role, target := range m.targets {
		rh := RoleHealth{
			Role:    string(role),
			Status:  StatusHealthy,
			Running: running[role],
			Target:  target,
		}
		if err != nil {
			rh.Status = StatusDegraded
		} else if rh.Running == 0 && target > 0 {
			rh.Status = StatusCritical
		} else if rh.Running < target {
			rh.Status = StatusDegraded
		}
		out[string(role)] = rh
	}
	return out
}

func worse(a, b SystemStatus) SystemStatus {
	if a == StatusCritical || b == StatusCritical {
		return StatusCritical
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
