package grant

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically archives expired grants. It runs on its own schedule,
// independent of request traffic, and a failed pass just waits for the next
// tick; the manager's CAS semantics make re-running safe.
type Sweeper struct {
	manager  *Manager
	logger   *slog.Logger
	interval time.Duration
}

// NewSweeper wires the background sweep worker.
func NewSweeper(manager *Manager, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{manager: manager, logger: logger, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("grant sweeper started", "interval", s.interval.String())
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("grant sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.manager.SweepExpired(ctx); err != nil {
		s.logger.ErrorContext(ctx, "grant sweep failed", "error", err)
	}
}
