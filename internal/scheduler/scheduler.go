// Package scheduler runs the periodic matching cycle: quarantine sweep, due
// target scan, worker reservation and job dispatch.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/davidnkusi/leadscout/internal/dispatcher"
	"github.com/davidnkusi/leadscout/internal/events"
	"github.com/davidnkusi/leadscout/internal/leadscout"
	"github.com/davidnkusi/leadscout/internal/metrics"
)

// DefaultBatchLimit bounds how many due targets one cycle picks up.
const DefaultBatchLimit = 50

// Config controls scheduler behavior.
type Config struct {
	// CycleSchedule is the cron expression for the scheduling cycle.
	CycleSchedule string
	// ResetSchedule is the cron expression for the daily counter reset.
	ResetSchedule string
	// BatchLimit caps due targets per cycle.
	BatchLimit int
}

// Scheduler drives scheduling cycles. Each cycle produces independent
// reservation+dispatch attempts, one per due target, which run concurrently;
// reservation atomicity in the worker store keeps them from colliding.
type Scheduler struct {
	workers  leadscout.WorkerStore
	targets  leadscout.TargetStore
	dispatch *dispatcher.Dispatcher
	clock    leadscout.Clock
	cfg      Config
	emitter  events.Emitter
	logger   *zap.Logger
}

// New constructs a Scheduler. The emitter may be nil.
func New(
	workers leadscout.WorkerStore,
	targets leadscout.TargetStore,
	dispatch *dispatcher.Dispatcher,
	clock leadscout.Clock,
	cfg Config,
	emitter events.Emitter,
	logger *zap.Logger,
) *Scheduler {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	if cfg.CycleSchedule == "" {
		cfg.CycleSchedule = "*/30 * * * *"
	}
	if cfg.ResetSchedule == "" {
		cfg.ResetSchedule = "0 0 * * *"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		workers:  workers,
		targets:  targets,
		dispatch: dispatch,
		clock:    clock,
		cfg:      cfg,
		emitter:  emitter,
		logger:   logger,
	}
}

// gaugeQuarantined refreshes the quarantined worker gauge. Best effort: a
// listing failure leaves the gauge stale rather than failing the cycle.
func (s *Scheduler) gaugeQuarantined(ctx context.Context) {
	workers, err := s.workers.List(ctx)
	if err != nil {
		s.logger.Warn("worker listing for gauge failed", zap.Error(err))
		return
	}
	quarantined := 0
	for _, w := range workers {
		if w.Status == leadscout.WorkerQuarantined {
			quarantined++
		}
	}
	metrics.SetQuarantinedWorkers(quarantined)
}

// RunCycle executes one scheduling pass. Per-target failures are logged and
// do not abort the rest of the batch.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	ctx, span := otel.Tracer("leadscout/scheduler").Start(ctx, "scheduler.RunCycle")
	defer span.End()

	now := s.clock.Now()
	s.emit(events.Event{Kind: events.KindCycleStarted, TS: now})

	released, err := s.workers.SweepQuarantine(ctx, now)
	if err != nil {
		return fmt.Errorf("quarantine sweep: %w", err)
	}
	if released > 0 {
		metrics.AddQuarantineReleases(released)
		s.logger.Info("quarantine sweep released workers", zap.Int("released", released))
	}
	s.gaugeQuarantined(ctx)

	due, err := s.targets.DueTargets(ctx, now, s.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("due target scan: %w", err)
	}
	metrics.ObserveDueTargets(len(due))
	span.SetAttributes(attribute.Int("due_targets", len(due)))
	if len(due) == 0 {
		s.logger.Debug("no targets due for scraping")
		s.emit(events.Event{Kind: events.KindCycleFinished, TS: s.clock.Now()})
		return nil
	}
	s.logger.Info("scheduling cycle started", zap.Int("due_targets", len(due)))

	var wg sync.WaitGroup
	for _, target := range due {
		wg.Add(1)
		go func(t leadscout.Target) {
			defer wg.Done()
			s.scheduleTarget(ctx, t, now)
		}(target)
	}
	wg.Wait()
	s.emit(events.Event{Kind: events.KindCycleFinished, TS: s.clock.Now()})
	return nil
}

func (s *Scheduler) emit(evt events.Event) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(evt)
}

func (s *Scheduler) scheduleTarget(ctx context.Context, target leadscout.Target, now time.Time) {
	worker, err := s.workers.Reserve(ctx, target.Platform, now)
	if err != nil {
		if errors.Is(err, leadscout.ErrNoIdleWorker) {
			// Not an error: the target stays due and is
			// reconsidered next cycle.
			metrics.ObserveReservation(string(target.Platform), "exhausted")
			s.logger.Info("no idle worker for platform",
				zap.String("platform", string(target.Platform)),
				zap.String("target_id", target.ID))
			return
		}
		metrics.ObserveReservation(string(target.Platform), "error")
		s.logger.Error("worker reservation failed",
			zap.String("target_id", target.ID),
			zap.Error(err))
		return
	}
	metrics.ObserveReservation(string(target.Platform), "ok")

	if _, err := s.dispatch.Dispatch(ctx, target, worker.ID); err != nil {
		s.logger.Error("dispatch failed",
			zap.String("target_id", target.ID),
			zap.String("worker_id", worker.ID),
			zap.Error(err))
	}
}

// resetDailyCounters zeroes per-worker request counters at the day boundary.
func (s *Scheduler) resetDailyCounters(ctx context.Context) {
	if err := s.workers.ResetDailyCounters(ctx); err != nil {
		s.logger.Error("daily counter reset failed", zap.Error(err))
		return
	}
	s.logger.Info("daily worker request counters reset")
}

// Run installs the cycle and reset cron entries and blocks until the context
// finishes. In-flight executor jobs are never canceled by a cycle boundary.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.CycleSchedule, func() {
		if err := s.RunCycle(ctx); err != nil {
			s.logger.Error("scheduling cycle failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("register cycle schedule %q: %w", s.cfg.CycleSchedule, err)
	}
	if _, err := c.AddFunc(s.cfg.ResetSchedule, func() {
		s.resetDailyCounters(ctx)
	}); err != nil {
		return fmt.Errorf("register reset schedule %q: %w", s.cfg.ResetSchedule, err)
	}

	c.Start()
	s.logger.Info("scheduler started",
		zap.String("cycle_schedule", s.cfg.CycleSchedule),
		zap.String("reset_schedule", s.cfg.ResetSchedule))

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}
