// Package scheduler runs the dev backend's periodic maintenance.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/repository"
)

// Reaper periodically removes expired tokens, abandoned OAuth handshakes
// and login failures that fell out of the throttle window.
type Reaper struct {
	repo          repository.ExpiryRepository
	logger        *slog.Logger
	interval      time.Duration
	failureWindow time.Duration
	now           func() time.Time
}

func NewReaper(repo repository.ExpiryRepository, logger *slog.Logger, interval, failureWindow time.Duration) *Reaper {
	return &Reaper{
		repo:          repo,
		logger:        logger.With("component", "reaper"),
		interval:      interval,
		failureWindow: failureWindow,
		now:           time.Now,
	}
}

// Start blocks until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "failure_window", r.failureWindow)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) {
	now := r.now()
	n, err := r.repo.PurgeExpired(ctx, now, now.Add(-r.failureWindow))
	if err != nil {
		r.logger.ErrorContext(ctx, "purge expired", "error", err)
		return
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "purged expired rows", "count", n)
	}
}
