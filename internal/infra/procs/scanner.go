// Package procs enumerates host processes through the proc filesystem.
package procs

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/procfs"

	"github.com/vietddude/foreman/internal/core/domain"
)

// RolePattern maps a command-line substring to a worker role. Patterns
// are checked in order; the first match wins.
type RolePattern struct {
	Role    domain.WorkerRole
	Pattern string
}

// Scanner builds worker descriptors from /proc. Every snapshot is a
// fresh enumeration; nothing is cached between cycles.
type Scanner struct {
	fs       procfs.FS
	patterns []RolePattern
	selfPID  int
}

// NewScanner creates a procfs-backed scanner.
func NewScanner(patterns []RolePattern) (*Scanner, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}
	return &Scanner{fs: fs, patterns: patterns, selfPID: os.Getpid()}, nil
}

// Snapshot enumerates host processes matching a role pattern. The
// scanning process itself is excluded.
func (s *Scanner) Snapshot(ctx context.Context) ([]domain.WorkerDescriptor, error) {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate processes: %w", err)
	}

	var descs []domain.WorkerDescriptor
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.PID == s.selfPID {
			continue
		}

		args, err := p.CmdLine()
		if err != nil || len(args) == 0 {
			// Kernel threads and processes that exited mid-scan.
			continue
		}
		cmdline := strings.Join(args, " ")

		role, ok := s.matchRole(cmdline)
		if !ok {
			continue
		}

		started := time.Time{}
		if stat, err := p.Stat(); err == nil {
			if ts, err := stat.StartTime(); err == nil {
				sec := int64(ts)
				nsec := int64((ts - float64(sec)) * float64(time.Second))
				started = time.Unix(sec, nsec)
			}
		}

		descs = append(descs, domain.WorkerDescriptor{
			PID:         p.PID,
			Role:        role,
			CommandLine: cmdline,
			StartedAt:   started,
		})
	}
	return descs, nil
}

// Load reads host load average and memory pressure.
func (s *Scanner) Load(ctx context.Context) (domain.HostLoad, error) {
	var load domain.HostLoad

	avg, err := s.fs.LoadAvg()
	if err != nil {
		return load, fmt.Errorf("failed to read loadavg: %w", err)
	}
	load.Load1 = avg.Load1
	load.CPUPercent = avg.Load1 / float64(runtime.NumCPU()) * 100

	mem, err := s.fs.Meminfo()
	if err != nil {
		return load, fmt.Errorf("failed to read meminfo: %w", err)
	}
	if mem.MemTotal != nil && mem.MemAvailable != nil && *mem.MemTotal > 0 {
		used := *mem.MemTotal - *mem.MemAvailable
		load.MemoryPercent = float64(used) / float64(*mem.MemTotal) * 100
	}

	return load, nil
}

func (s *Scanner) matchRole(cmdline string) (domain.WorkerRole, bool) {
	for _, rp := range s.patterns {
		if strings.Contains(cmdline, rp.Pattern) {
			return rp.Role, true
		}
	}
	return "", false
}
