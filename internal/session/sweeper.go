package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the background sweeper runs. Expiry is
// also checked lazily on every lifecycle call, so the sweeper only bounds how
// long abandoned state can linger.
const DefaultSweepInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically sweeps expired
// sessions and orphaned state until ctx is cancelled.
func StartSweeper(ctx context.Context, m *Manager, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				if err := m.Sweep(ctx); err != nil {
					slog.Error("Session sweep failed", "error", err)
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
