// Package dispatcher turns a worker reservation into a queued scrape job.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davidnkusi/leadscout/internal/events"
	"github.com/davidnkusi/leadscout/internal/leadscout"
	"github.com/davidnkusi/leadscout/internal/metrics"
)

// DefaultScrapeInterval is how far the dispatcher pushes a target's next
// scrape after queuing a job for it.
const DefaultScrapeInterval = 30 * time.Minute

// Dispatcher packages reservations into ScrapeJob messages. Advancing
// nextScrapeAt happens at dispatch time, not execution time: cadence is
// decoupled from execution success, so a slow executor cannot cause a target
// to be re-queued every cycle.
type Dispatcher struct {
	queue    leadscout.JobQueue
	workers  leadscout.WorkerStore
	targets  leadscout.TargetStore
	clock    leadscout.Clock
	interval time.Duration
	emitter  events.Emitter
	logger   *zap.Logger
}

// New constructs a Dispatcher. A non-positive interval falls back to
// DefaultScrapeInterval; the emitter may be nil.
func New(
	queue leadscout.JobQueue,
	workers leadscout.WorkerStore,
	targets leadscout.TargetStore,
	clock leadscout.Clock,
	interval time.Duration,
	emitter events.Emitter,
	logger *zap.Logger,
) *Dispatcher {
	if interval <= 0 {
		interval = DefaultScrapeInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:    queue,
		workers:  workers,
		targets:  targets,
		clock:    clock,
		interval: interval,
		emitter:  emitter,
		logger:   logger,
	}
}

// Dispatch enqueues a scrape job for the target against the reserved worker
// and advances the target's next scrape time. If the enqueue fails
// synchronously the reservation is released so the worker does not leak into
// permanent busy, and nextScrapeAt stays put, leaving the target due.
func (d *Dispatcher) Dispatch(ctx context.Context, target leadscout.Target, workerID string) (leadscout.ScrapeJob, error) {
	now := d.clock.Now()
	job := leadscout.ScrapeJob{
		TargetID:    target.ID,
		WorkerID:    workerID,
		Platform:    target.Platform,
		Type:        target.Type,
		Term:        target.Term,
		ScheduledAt: now,
	}

	if err := d.queue.Enqueue(ctx, job); err != nil {
		metrics.ObserveDispatch(string(target.Platform), "enqueue_error")
		if releaseErr := d.workers.Release(ctx, workerID); releaseErr != nil {
			d.logger.Error("compensating release failed, worker may be stuck busy",
				zap.String("worker_id", workerID),
				zap.Error(releaseErr))
		}
		return leadscout.ScrapeJob{}, fmt.Errorf("enqueue scrape job for target %s: %w", target.ID, err)
	}

	// The job is already in flight; a failed advance only risks an extra
	// dispatch next cycle, so log and keep going.
	if err := d.targets.AdvanceNextScrape(ctx, target.ID, now.Add(d.interval)); err != nil {
		d.logger.Error("advance next scrape failed",
			zap.String("target_id", target.ID),
			zap.Error(err))
	}

	metrics.ObserveDispatch(string(target.Platform), "ok")
	if d.emitter != nil {
		d.emitter.Emit(events.Event{
			Kind:     events.KindJobDispatched,
			TS:       now,
			TargetID: target.ID,
			WorkerID: workerID,
			Platform: string(target.Platform),
		})
	}
	d.logger.Debug("scrape job dispatched",
		zap.String("target_id", target.ID),
		zap.String("worker_id", workerID),
		zap.String("platform", string(target.Platform)))
	return job, nil
}
