// Package executor consumes scrape jobs and runs the platform scrape
// pipeline: credential decryption, the bounded platform call, idempotent
// post persistence and the worker's final state resolution.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/davidnkusi/leadscout/internal/events"
	"github.com/davidnkusi/leadscout/internal/leadscout"
	"github.com/davidnkusi/leadscout/internal/metrics"
)

// DefaultScrapeTimeout bounds one platform scrape call so a hung scrape
// cannot strand a worker in busy.
const DefaultScrapeTimeout = 60 * time.Second

// Limiter throttles scrapes per platform before the platform call.
type Limiter interface {
	Wait(ctx context.Context, platform string) error
}

// Config controls Executor behavior.
type Config struct {
	ScrapeTimeout time.Duration
	BlobPrefix    string
}

// Executor processes one ScrapeJob at a time. Distinct jobs run
// concurrently under the queue's delivery; worker-side disjointness comes
// from each reservation consuming a distinct worker.
type Executor struct {
	workers     leadscout.WorkerStore
	targets     leadscout.TargetStore
	posts       leadscout.PostStore
	credentials leadscout.CredentialStore
	scraper     leadscout.Scraper
	blobs       leadscout.BlobStore
	hasher      leadscout.Hasher
	limiter     Limiter
	clock       leadscout.Clock
	cfg         Config
	emitter     events.Emitter
	logger      *zap.Logger
}

// New constructs an Executor. The blob store, hasher, limiter and emitter
// may be nil: archival is skipped without a blob store, blob paths fall back
// to timestamps without a hasher, scrapes are unthrottled without a limiter
// and no lifecycle events are published without an emitter.
func New(
	workers leadscout.WorkerStore,
	targets leadscout.TargetStore,
	posts leadscout.PostStore,
	credentials leadscout.CredentialStore,
	scraper leadscout.Scraper,
	blobs leadscout.BlobStore,
	hasher leadscout.Hasher,
	limiter Limiter,
	clock leadscout.Clock,
	cfg Config,
	emitter events.Emitter,
	logger *zap.Logger,
) *Executor {
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = DefaultScrapeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		workers:     workers,
		targets:     targets,
		posts:       posts,
		credentials: credentials,
		scraper:     scraper,
		blobs:       blobs,
		hasher:      hasher,
		limiter:     limiter,
		clock:       clock,
		cfg:         cfg,
		emitter:     emitter,
		logger:      logger,
	}
}

// Execute runs one scrape job to completion. The returned error signals the
// queue to redeliver; terminal conditions (success, ban, missing worker)
// return nil so the message is acked. The worker's final status update is
// the last write in every branch that still has a worker record.
func (e *Executor) Execute(ctx context.Context, job leadscout.ScrapeJob) error {
	ctx, span := otel.Tracer("leadscout/executor").Start(ctx, "executor.Execute")
	span.SetAttributes(
		attribute.String("target.id", job.TargetID),
		attribute.String("worker.id", job.WorkerID),
		attribute.String("platform", string(job.Platform)),
	)
	defer span.End()

	worker, err := e.workers.Get(ctx, job.WorkerID)
	if err != nil {
		if errors.Is(err, leadscout.ErrWorkerNotFound) {
			// Registry corruption: fatal for this job, no retry.
			metrics.ObserveScrapeOutcome(string(job.Platform), "worker_missing")
			e.logger.Error("worker record missing, dropping job",
				zap.String("worker_id", job.WorkerID),
				zap.String("target_id", job.TargetID))
			return nil
		}
		return fmt.Errorf("look up worker %s: %w", job.WorkerID, err)
	}

	start := e.clock.Now()
	scraped, scrapeErr := e.runScrape(ctx, job, worker)
	if scrapeErr != nil {
		return e.resolveFailure(ctx, job, scrapeErr, e.clock.Now().Sub(start))
	}

	now := e.clock.Now()

	userID := ""
	if target, err := e.targets.Get(ctx, job.TargetID); err == nil {
		userID = target.UserID
	} else {
		e.logger.Warn("target lookup failed, posts stored without owner",
			zap.String("target_id", job.TargetID),
			zap.Error(err))
	}
	persisted := e.persistPosts(ctx, job, scraped, userID, now)

	if err := e.targets.MarkScraped(ctx, job.TargetID, now); err != nil {
		e.logger.Error("mark target scraped failed",
			zap.String("target_id", job.TargetID),
			zap.Error(err))
	}

	outcome := leadscout.Outcome{Kind: leadscout.OutcomeSuccess, PostCount: len(scraped)}
	if err := e.workers.Resolve(ctx, job.WorkerID, outcome, now); err != nil {
		e.logger.Error("worker resolution failed after successful scrape",
			zap.String("worker_id", job.WorkerID),
			zap.Error(err))
	}

	metrics.ObserveScrapeOutcome(string(job.Platform), "success")
	metrics.AddPostsStored(string(job.Platform), persisted)
	e.emit(events.Event{
		Kind:     events.KindScrapeSucceeded,
		TS:       now,
		TargetID: job.TargetID,
		WorkerID: job.WorkerID,
		Platform: string(job.Platform),
		Posts:    persisted,
		Dur:      now.Sub(start),
	})
	e.logger.Info("scrape job completed",
		zap.String("target_id", job.TargetID),
		zap.String("worker_id", job.WorkerID),
		zap.Int("posts", len(scraped)),
		zap.Int("persisted", persisted))
	return nil
}

func (e *Executor) runScrape(ctx context.Context, job leadscout.ScrapeJob, worker leadscout.Worker) ([]leadscout.ScrapedPost, error) {
	creds, err := e.credentials.Decrypt(ctx, worker.CredentialsRef)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials for worker %s: %w", worker.ID, err)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, string(job.Platform)); err != nil {
			return nil, fmt.Errorf("platform throttle: %w", err)
		}
	}

	scrapeCtx, cancel := context.WithTimeout(ctx, e.cfg.ScrapeTimeout)
	defer cancel()

	start := e.clock.Now()
	posts, err := e.scraper.Scrape(scrapeCtx, job.Platform, job.Type, job.Term, creds)
	metrics.ObserveScrapeDuration(string(job.Platform), e.clock.Now().Sub(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("scrape %s %q: %w", job.Platform, job.Term, err)
	}
	return posts, nil
}

// resolveFailure classifies the scrape error and applies the terminal worker
// write. A ban signal quarantines the worker and acks the job; anything else
// releases the worker to idle and returns the error so the queue's
// redelivery policy owns the retry.
func (e *Executor) resolveFailure(ctx context.Context, job leadscout.ScrapeJob, scrapeErr error, dur time.Duration) error {
	now := e.clock.Now()
	if leadscout.IsBanSignal(scrapeErr) {
		outcome := leadscout.Outcome{Kind: leadscout.OutcomeBan, BanReason: scrapeErr.Error()}
		if err := e.workers.Resolve(ctx, job.WorkerID, outcome, now); err != nil {
			e.logger.Error("quarantine write failed",
				zap.String("worker_id", job.WorkerID),
				zap.Error(err))
		}
		metrics.ObserveScrapeOutcome(string(job.Platform), "ban")
		e.emit(events.Event{
			Kind:     events.KindWorkerQuarantined,
			TS:       now,
			TargetID: job.TargetID,
			WorkerID: job.WorkerID,
			Platform: string(job.Platform),
			Dur:      dur,
			Note:     scrapeErr.Error(),
		})
		e.logger.Warn("ban signal detected, worker quarantined",
			zap.String("worker_id", job.WorkerID),
			zap.String("target_id", job.TargetID),
			zap.String("reason", scrapeErr.Error()))
		return nil
	}

	if err := e.workers.Resolve(ctx, job.WorkerID, leadscout.Outcome{Kind: leadscout.OutcomeTransient}, now); err != nil {
		e.logger.Error("worker release failed after transient error",
			zap.String("worker_id", job.WorkerID),
			zap.Error(err))
	}
	metrics.ObserveScrapeOutcome(string(job.Platform), "transient")
	e.emit(events.Event{
		Kind:     events.KindScrapeFailed,
		TS:       now,
		TargetID: job.TargetID,
		WorkerID: job.WorkerID,
		Platform: string(job.Platform),
		Dur:      dur,
		Note:     scrapeErr.Error(),
	})
	e.logger.Warn("scrape failed, worker released",
		zap.String("worker_id", job.WorkerID),
		zap.String("target_id", job.TargetID),
		zap.Error(scrapeErr))
	return scrapeErr
}

// persistPosts archives the raw payload and upserts each post. Persistence
// after a successful platform call is best effort: partial write failures
// are logged without failing the job, and the worker still resolves.
func (e *Executor) persistPosts(ctx context.Context, job leadscout.ScrapeJob, scraped []leadscout.ScrapedPost, userID string, now time.Time) int {
	if len(scraped) == 0 {
		return 0
	}

	blobURI := e.archivePayload(ctx, job, scraped, now)

	persisted := 0
	for _, p := range scraped {
		post := leadscout.RawPost{
			Platform:     job.Platform,
			PostID:       p.PostID,
			TargetID:     job.TargetID,
			UserID:       userID,
			Text:         p.Text,
			Author:       p.Author,
			AuthorHandle: p.AuthorHandle,
			PostedAt:     p.PostedAt,
			URL:          p.URL,
			Processed:    false,
			FetchedAt:    now,
			BlobURI:      blobURI,
		}
		if err := e.posts.UpsertPost(ctx, post); err != nil {
			e.logger.Error("persist raw post failed",
				zap.String("target_id", job.TargetID),
				zap.String("post_id", p.PostID),
				zap.Error(err))
			continue
		}
		persisted++
	}
	return persisted
}

func (e *Executor) archivePayload(ctx context.Context, job leadscout.ScrapeJob, scraped []leadscout.ScrapedPost, now time.Time) string {
	if e.blobs == nil {
		return ""
	}
	data, err := json.Marshal(scraped)
	if err != nil {
		e.logger.Error("marshal scrape payload failed", zap.Error(err))
		return ""
	}
	path := e.buildBlobPath(job.TargetID, data, now)
	uri, err := e.blobs.PutObject(ctx, path, "application/json", data)
	if err != nil {
		e.logger.Error("archive scrape payload failed",
			zap.String("path", path),
			zap.Error(err))
		return ""
	}
	return uri
}

// buildBlobPath content-addresses the payload when a hasher is configured,
// so a redelivered job re-writes the same object instead of growing the
// bucket. Without a hasher the name falls back to the wall clock.
func (e *Executor) buildBlobPath(targetID string, data []byte, now time.Time) string {
	prefix := strings.Trim(e.cfg.BlobPrefix, "/")
	name := fmt.Sprintf("%s/%d.json", targetID, now.UnixMilli())
	if e.hasher != nil {
		if digest, err := e.hasher.Hash(data); err == nil {
			name = fmt.Sprintf("%s/%s.json", targetID, digest)
		}
	}
	if prefix == "" {
		return name
	}
	return fmt.Sprintf("%s/%s", prefix, name)
}

func (e *Executor) emit(evt events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}
