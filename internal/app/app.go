// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the scheduling service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidnkusi/leadscout/internal/api"
	"github.com/davidnkusi/leadscout/internal/clock/system"
	"github.com/davidnkusi/leadscout/internal/config"
	"github.com/davidnkusi/leadscout/internal/credentials"
	"github.com/davidnkusi/leadscout/internal/dispatcher"
	"github.com/davidnkusi/leadscout/internal/events"
	eventsinks "github.com/davidnkusi/leadscout/internal/events/sinks"
	"github.com/davidnkusi/leadscout/internal/executor"
	"github.com/davidnkusi/leadscout/internal/id/uuid"
	sha256hash "github.com/davidnkusi/leadscout/internal/hash/sha256"
	"github.com/davidnkusi/leadscout/internal/leadscout"
	"github.com/davidnkusi/leadscout/internal/policy/ratelimit"
	"github.com/davidnkusi/leadscout/internal/queue"
	queuememory "github.com/davidnkusi/leadscout/internal/queue/memory"
	"github.com/davidnkusi/leadscout/internal/scheduler"
	"github.com/davidnkusi/leadscout/internal/scraper"
	"github.com/davidnkusi/leadscout/internal/storage/gcs"
	storagememory "github.com/davidnkusi/leadscout/internal/storage/memory"
	storememory "github.com/davidnkusi/leadscout/internal/store/memory"
	"github.com/davidnkusi/leadscout/internal/store/postgres"
)

// jobBus is the queue as both producer and consumer side.
type jobBus interface {
	leadscout.JobQueue
	leadscout.JobConsumer
}

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and fails fast if any critical service cannot
// be built.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	workers leadscout.WorkerStore
	targets leadscout.TargetStore
	posts   leadscout.PostStore

	bus       jobBus
	hub       *events.Hub
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	server    *api.Server

	pool *pgxpool.Pool
}

// New builds the full service graph from configuration. An empty db.dsn
// selects the in-memory stores, which is the local development mode; with a
// DSN every store runs against Postgres.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	if err := a.initBus(ctx); err != nil {
		return nil, err
	}
	blobs, err := a.initBlobs(ctx)
	if err != nil {
		return nil, err
	}
	creds, err := a.initCredentials()
	if err != nil {
		return nil, err
	}

	clock := system.New()

	a.hub = events.NewHub(events.Config{
		BufferSize: cfg.Events.BufferSize,
		MaxBatch:   cfg.Events.MaxBatch,
		MaxWait:    time.Duration(cfg.Events.MaxWaitMs) * time.Millisecond,
		Logger:     logger.Named("events"),
	}, eventsinks.NewLogSink(logger.Named("events_log")))

	var limiter executor.Limiter = ratelimit.None{}
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.RPS,
			DefaultBurst: cfg.RateLimit.Burst,
		})
	}

	dispatch := dispatcher.New(
		a.bus, a.workers, a.targets, clock,
		cfg.ScrapeInterval(), a.hub, logger.Named("dispatcher"))

	a.scheduler = scheduler.New(a.workers, a.targets, dispatch, clock, scheduler.Config{
		CycleSchedule: cfg.Scheduler.CycleSchedule,
		ResetSchedule: cfg.Scheduler.ResetSchedule,
		BatchLimit:    cfg.Scheduler.BatchLimit,
	}, a.hub, logger.Named("scheduler"))

	a.executor = executor.New(
		a.workers, a.targets, a.posts, creds, scraper.Static{}, blobs,
		sha256hash.New(), limiter, clock,
		executor.Config{
			ScrapeTimeout: cfg.ScrapeTimeout(),
			BlobPrefix:    cfg.Storage.Prefix,
		}, a.hub, logger.Named("executor"))

	a.server = api.NewServer(a.workers, a.targets, a.scheduler, uuid.NewGenerator(), clock, logger.Named("api"))

	logger.Info("application services initialized",
		zap.Bool("postgres", a.pool != nil),
		zap.String("queue", cfg.Queue.Provider),
		zap.String("storage", cfg.Storage.Provider))
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no database DSN configured, using in-memory stores")
		a.workers = storememory.NewWorkerStore()
		a.targets = storememory.NewTargetStore()
		a.posts = storememory.NewPostStore()
		return nil
	}

	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.pool = pool

	if a.workers, err = postgres.NewWorkerStore(pool); err != nil {
		return fmt.Errorf("init worker store: %w", err)
	}
	if a.targets, err = postgres.NewTargetStore(pool); err != nil {
		return fmt.Errorf("init target store: %w", err)
	}
	if a.posts, err = postgres.NewPostStore(pool); err != nil {
		return fmt.Errorf("init post store: %w", err)
	}
	return nil
}

func (a *App) initBus(ctx context.Context) error {
	switch a.cfg.Queue.Provider {
	case "pubsub":
		bus, err := queue.NewPubSub(ctx, queue.PubSubConfig{
			ProjectID:    a.cfg.Queue.ProjectID,
			TopicID:      a.cfg.Queue.Topic,
			Subscription: a.cfg.Queue.Subscription,
		}, a.logger.Named("queue"))
		if err != nil {
			return fmt.Errorf("init pubsub queue: %w", err)
		}
		a.bus = bus
	case "memory":
		a.bus = queuememory.NewQueue(a.cfg.Queue.Depth)
	default:
		return fmt.Errorf("unknown queue provider: %s", a.cfg.Queue.Provider)
	}
	return nil
}

func (a *App) initBlobs(ctx context.Context) (leadscout.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		return blobs, nil
	case "memory":
		return storagememory.NewBlobStore(), nil
	case "none":
		// Raw payload archival is optional; the executor skips it.
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", a.cfg.Storage.Provider)
	}
}

func (a *App) initCredentials() (leadscout.CredentialStore, error) {
	if key := a.cfg.CredentialsKey(); key != nil {
		store, err := credentials.NewAESGCM(key)
		if err != nil {
			return nil, fmt.Errorf("init credential store: %w", err)
		}
		return store, nil
	}
	a.logger.Warn("no credentials key configured, using empty static credentials")
	return &credentials.Static{}, nil
}

// Scheduler exposes the cycle runner, mainly for tests.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Handler returns the ops HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run starts the scheduler, the job consumers and the HTTP server, then
// blocks until the context finishes and everything has shut down.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.scheduler.Run(ctx); err != nil {
			a.logger.Error("scheduler stopped with error", zap.Error(err))
		}
	}()

	consumers := a.cfg.Executor.Concurrency
	if a.cfg.Queue.Provider == "pubsub" {
		// The Pub/Sub client fans out to goroutines internally.
		consumers = 1
	}
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			if err := a.bus.Consume(ctx, a.executor.Execute); err != nil &&
				!errors.Is(err, context.Canceled) {
				a.logger.Error("job consumer stopped with error",
					zap.Int("consumer", index), zap.Error(err))
			}
		}(i)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	wg.Wait()
	a.Close()
	a.logger.Info("shutdown complete")
	return nil
}

// Close releases queue, event hub and database resources.
func (a *App) Close() {
	if err := a.bus.Close(); err != nil {
		a.logger.Warn("error closing job queue", zap.Error(err))
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.hub.Close(closeCtx); err != nil {
		a.logger.Warn("error closing event hub", zap.Error(err))
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort; stderr may be gone already.
		_ = err
	}
}
