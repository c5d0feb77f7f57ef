package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const revalidateTimeout = 30 * time.Second

// Revalidator re-reads the profile on a cron schedule so a session revoked
// elsewhere is noticed without waiting for the next user action.
type Revalidator struct {
	mgr    *Manager
	sched  cron.Schedule
	spec   string
	logger *slog.Logger
}

func NewRevalidator(mgr *Manager, spec string, logger *slog.Logger) (*Revalidator, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Revalidator{
		mgr:    mgr,
		sched:  sched,
		spec:   spec,
		logger: logger.With("component", "revalidator"),
	}, nil
}

func (r *Revalidator) Start(ctx context.Context) {
	r.logger.Info("revalidator started", "schedule", r.spec)

	for {
		wait := time.Until(r.sched.Next(time.Now()))
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("revalidator shut down")
			return
		case <-timer.C:
			r.revalidate(ctx)
		}
	}
}

func (r *Revalidator) revalidate(ctx context.Context) {
	if !r.mgr.State().Authenticated() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, revalidateTimeout)
	defer cancel()

	if err := r.mgr.RefreshUser(ctx); err != nil {
		r.logger.Warn("revalidate session", "error", err)
		return
	}
	r.logger.Debug("session revalidated")
}
