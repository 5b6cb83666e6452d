// Package health provides system health monitoring and status reporting.
package health

import "github.com/vietddude/foreman/internal/resilience"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// QueueHealth contains health metrics for a single queue.
type QueueHealth struct {
	Queue      string       `json:"queue"`
	Status     SystemStatus `json:"status"`
	Depth      int64        `json:"depth"`
	DeadDepth  int64        `json:"dead_depth"`
	DepthError string       `json:"depth_error,omitempty"`
}

// RoleHealth compares running worker processes against the configured target.
type RoleHealth struct {
	Role    string       `json:"role"`
	Status  SystemStatus `json:"status"`
	Running int          `json:"running"`
	Target  int          `json:"target"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus             `json:"system_status"`
	Queues       map[string]QueueHealth   `json:"queues"`
	Roles        map[string]RoleHealth    `json:"roles"`
	Execution    resilience.HistoryReport `json:"execution"`
}
