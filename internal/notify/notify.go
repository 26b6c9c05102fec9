// Package notify runs the periodic notification check.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Checker looks for pending notifications (upcoming events, reminders).
// Implementations live outside the daemon; a nop checker keeps the loop
// wiring uniform when none is configured.
type Checker interface {
	Check(ctx context.Context) error
}

// NopChecker does nothing.
type NopChecker struct{}

func (NopChecker) Check(context.Context) error { return nil }

// Runner drives a Checker on a fixed interval until the context is
// cancelled. Check errors are logged and the loop continues.
type Runner struct {
	checker  Checker
	interval time.Duration
	logger   *zap.Logger
}

// NewRunner creates a runner. Interval defaults to 5 minutes; a nil
// checker gets the nop implementation.
func NewRunner(checker Checker, interval time.Duration, logger *zap.Logger) *Runner {
	if checker == nil {
		checker = NopChecker{}
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{checker: checker, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("notification check loop started",
		zap.Duration("interval", r.interval),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("notification check loop stopped")
			return
		case <-ticker.C:
			if err := r.checker.Check(ctx); err != nil {
				r.logger.Warn("notification check failed", zap.Error(err))
			}
		}
	}
}
