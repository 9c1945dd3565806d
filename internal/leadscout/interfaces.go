package leadscout

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations.
var (
	// ErrNoIdleWorker means no eligible worker exists for the platform.
	// Not a failure: the target stays due and is reconsidered next cycle.
	ErrNoIdleWorker = errors.New("no idle worker available")

	// ErrWorkerNotFound indicates a missing registry record. For an executor
	// holding a job this is fatal and non-retryable.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrTargetNotFound indicates a missing target record.
	ErrTargetNotFound = errors.New("target not found")
)

// WorkerStore is the worker registry plus the reservation coordinator.
// Reserve is the only idle->busy transition and must be atomic: under
// concurrent scheduling runs no two callers may observe and take the same
// idle worker.
type WorkerStore interface {
	// Create registers a new worker. The caller supplies the id.
	Create(ctx context.Context, w Worker) error

	// Reserve atomically picks one eligible worker for the platform,
	// marks it busy, stamps LastUsedAt and returns it. Tie-break is
	// least-recently-used, then lowest id. Returns ErrNoIdleWorker when
	// the pool is exhausted.
	Reserve(ctx context.Context, platform Platform, now time.Time) (Worker, error)

	// Release is the dispatcher's compensation path: busy->idle after a
	// synchronous dispatch failure, so the worker does not leak into
	// permanent busy.
	Release(ctx context.Context, workerID string) error

	// Resolve applies a scrape outcome as the final authoritative write
	// for the worker, per ReduceWorker.
	Resolve(ctx context.Context, workerID string, outcome Outcome, now time.Time) error

	// SweepQuarantine returns expired quarantined workers to idle and
	// reports how many were released.
	SweepQuarantine(ctx context.Context, now time.Time) (int, error)

	// ResetDailyCounters zeroes RequestsToday across all workers.
	ResetDailyCounters(ctx context.Context) error

	Get(ctx context.Context, workerID string) (Worker, error)
	List(ctx context.Context) ([]Worker, error)
}

// TargetStore persists targets and serves the due-queue scan.
type TargetStore interface {
	// Create registers a new target. The caller supplies the id.
	Create(ctx context.Context, t Target) error

	// DueTargets returns active targets with NextScrapeAt <= now, oldest
	// due first, capped at limit. No side effects.
	DueTargets(ctx context.Context, now time.Time, limit int) ([]Target, error)

	// AdvanceNextScrape moves NextScrapeAt forward to the given instant.
	// The update is monotonic: an earlier instant never wins.
	AdvanceNextScrape(ctx context.Context, targetID string, to time.Time) error

	// MarkScraped stamps LastScrapedAt after a successful scrape.
	MarkScraped(ctx context.Context, targetID string, at time.Time) error

	// IncrementLeadsFound bumps the denormalized per-target lead counter.
	IncrementLeadsFound(ctx context.Context, targetID string, n int) error

	Get(ctx context.Context, targetID string) (Target, error)
	List(ctx context.Context) ([]Target, error)
}

// PostStore persists raw posts idempotently on (platform, post_id): writing
// the same key twice leaves exactly one record reflecting the latest write.
type PostStore interface {
	UpsertPost(ctx context.Context, post RawPost) error
}

// JobQueue carries ScrapeJob messages with at-least-once delivery.
type JobQueue interface {
	Enqueue(ctx context.Context, job ScrapeJob) error
	Close() error
}

// JobConsumer delivers queued jobs to a handler. Handler invocations may run
// concurrently; a handler error signals the queue to redeliver.
type JobConsumer interface {
	Consume(ctx context.Context, handle func(context.Context, ScrapeJob) error) error
}

// CredentialStore resolves a worker's opaque credentials reference into
// usable session material. Decryption happens outside this subsystem.
type CredentialStore interface {
	Decrypt(ctx context.Context, credentialsRef string) (Credentials, error)
}

// Scraper executes one platform-specific scrape. Errors may carry ban or
// rate-limit markers in their text, which the executor classifies.
type Scraper interface {
	Scrape(ctx context.Context, platform Platform, targetType TargetType, term string, creds Credentials) ([]ScrapedPost, error)
}

// BlobStore archives raw scrape payloads and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher produces stable content digests, used to address archived
// payloads.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
