package domain

import "time"

// WorkerRole identifies what a worker process does.
type WorkerRole string

const (
	RolePM     WorkerRole = "pm"
	RoleTask   WorkerRole = "task"
	RoleResult WorkerRole = "result"
	RoleDialog WorkerRole = "dialog"
)

// WorkerDescriptor describes one running worker process. Transient:
// rebuilt from a fresh process scan on every supervisor cycle.
type WorkerDescriptor struct {
	PID         int        `json:"pid"`
	Role        WorkerRole `json:"role"`
	CommandLine string     `json:"command_line"`
	StartedAt   time.Time  `json:"started_at"`
}

// Uptime returns how long the process has been running.
func (d WorkerDescriptor) Uptime(now time.Time) time.Duration {
	return now.Sub(d.StartedAt)
}

// HostLoad is an aggregate snapshot of host resource usage.
type HostLoad struct {
	Load1         float64 `json:"load1"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}
