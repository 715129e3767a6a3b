// Package scheduler runs the Market-Maker Core's periodic reconciliation
// sweep: a fixed-interval safety net on top of the event-triggered
// reconciliation MMService already does inline on every bot fill, config
// change, and override change (spec §4.7's three triggers). The sweep
// exists to self-heal a bot whose quotes have drifted from its target curve
// for any reason those three triggers didn't catch — a crashed-and-restarted
// process, a manually edited curve row, clock skew between event handlers.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/satscex/exchange/internal/config"
	"github.com/satscex/exchange/internal/service"
)

// Scheduler wires together the services and runs the Market-Maker Core's
// background sweep goroutine. Call Start(ctx) once from main(); cancel the
// context to shut it down gracefully.
type Scheduler struct {
	mmSvc  *service.MMService
	cfg    *config.Config
	logger *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(mmSvc *service.MMService, cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{mmSvc: mmSvc, cfg: cfg, logger: logger}
}

// Start launches the reconciliation sweep goroutine. It returns immediately;
// the loop runs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.reconcileSweepLoop(ctx)
	s.logger.Info("scheduler started", "reconcile_interval", s.cfg.MM.ReconcileInterval)
}

// ──────────────────────────────────────────────────────────────────────────────
// reconcileSweepLoop
// ──────────────────────────────────────────────────────────────────────────────

// reconcileSweepLoop re-runs MM.Deploy on a fixed interval, reconciling every
// open bot-enabled market against its current curve/config regardless of
// whether a triggering event fired.
func (s *Scheduler) reconcileSweepLoop(ctx context.Context) {
	defer s.recoverAndLog("reconcileSweepLoop")

	interval := s.cfg.MM.ReconcileInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconcileSweepLoop: shutting down")
			return
		case <-ticker.C:
			if err := s.mmSvc.Deploy(ctx); err != nil {
				s.logger.Error("reconcileSweepLoop: deploy sweep failed", "err", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each goroutine to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
