package storage

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes archived attempts past the retention window.
type Pruner struct {
	archive   AttemptArchive
	retention time.Duration
}

// NewPruner creates a new Pruner.
func NewPruner(archive AttemptArchive, retention time.Duration) *Pruner {
	return &Pruner{archive: archive, retention: retention}
}

// Start runs the pruner loop until the context is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of retention, clamped to [1m, 1h].
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := time.Now().Add(-p.retention)
	if err := p.archive.Prune(ctx, threshold); err != nil {
		slog.Error("failed to prune attempt archive", "error", err)
	}
}
