package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sha256hash "github.com/davidnkusi/leadscout/internal/hash/sha256"
	"github.com/davidnkusi/leadscout/internal/leadscout"
	storememory "github.com/davidnkusi/leadscout/internal/store/memory"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeCredentials struct {
	creds leadscout.Credentials
	err   error
}

func (f *fakeCredentials) Decrypt(_ context.Context, _ string) (leadscout.Credentials, error) {
	return f.creds, f.err
}

type fakeScraper struct {
	posts []leadscout.ScrapedPost
	err   error
}

func (f *fakeScraper) Scrape(_ context.Context, _ leadscout.Platform, _ leadscout.TargetType, _ string, _ leadscout.Credentials) ([]leadscout.ScrapedPost, error) {
	return f.posts, f.err
}

type fakeBlobStore struct {
	lastPath string
	err      error
}

func (f *fakeBlobStore) PutObject(_ context.Context, path string, _ string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.lastPath = path
	return "mem://scrapes/" + path, nil
}

type fixture struct {
	workers *storememory.WorkerStore
	targets *storememory.TargetStore
	posts   *storememory.PostStore
	clock   *fakeClock
	now     time.Time
	job     leadscout.ScrapeJob
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	workers := storememory.NewWorkerStore()
	targets := storememory.NewTargetStore()
	posts := storememory.NewPostStore()

	require.NoError(t, workers.Put(ctx, leadscout.Worker{
		ID:             "w-1",
		Platform:       leadscout.PlatformTwitter,
		Status:         leadscout.WorkerBusy,
		CredentialsRef: "cred-1",
	}))
	require.NoError(t, targets.Put(ctx, leadscout.Target{
		ID:           "t-1",
		UserID:       "u-1",
		Platform:     leadscout.PlatformTwitter,
		Type:         leadscout.TargetKeyword,
		Term:         "plumber kigali",
		Status:       leadscout.TargetActive,
		NextScrapeAt: now.Add(30 * time.Minute),
	}))

	return fixture{
		workers: workers,
		targets: targets,
		posts:   posts,
		clock:   &fakeClock{now: now},
		now:     now,
		job: leadscout.ScrapeJob{
			TargetID:    "t-1",
			WorkerID:    "w-1",
			Platform:    leadscout.PlatformTwitter,
			Type:        leadscout.TargetKeyword,
			Term:        "plumber kigali",
			ScheduledAt: now,
		},
	}
}

func (f fixture) executor(scraper leadscout.Scraper, creds leadscout.CredentialStore, blobs leadscout.BlobStore) *Executor {
	if creds == nil {
		creds = &fakeCredentials{}
	}
	return New(f.workers, f.targets, f.posts, creds, scraper, blobs, nil, nil, f.clock, Config{}, nil, zap.NewNop())
}

func TestExecuteSuccessPersistsPostsAndReleasesWorker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	scraper := &fakeScraper{posts: []leadscout.ScrapedPost{
		{PostID: "p1", Text: "need a plumber urgently", AuthorHandle: "user1", PostedAt: f.now.Add(-time.Hour)},
		{PostID: "p2", Text: "any plumber recommendations?", AuthorHandle: "user2", PostedAt: f.now.Add(-2 * time.Hour)},
	}}
	blobs := &fakeBlobStore{}

	require.NoError(t, f.executor(scraper, nil, blobs).Execute(ctx, f.job))

	require.Equal(t, 2, f.posts.Len())
	p1, ok := f.posts.Get(ctx, leadscout.PlatformTwitter, "p1")
	require.True(t, ok)
	require.False(t, p1.Processed)
	require.Equal(t, "t-1", p1.TargetID)
	require.Equal(t, "u-1", p1.UserID)
	require.Equal(t, f.now, p1.FetchedAt)
	require.NotEmpty(t, p1.BlobURI)

	w, err := f.workers.Get(ctx, "w-1")
	require.NoError(t, err)
	require.Equal(t, leadscout.WorkerIdle, w.Status)
	require.Equal(t, 2, w.RequestsToday)

	tgt, err := f.targets.Get(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, tgt.LastScrapedAt)
	require.Equal(t, f.now, *tgt.LastScrapedAt)
}

func TestExecuteBanSignalQuarantinesWorker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	scraper := &fakeScraper{err: errors.New("request failed with status 429")}

	// Ban is a terminal state transition, not a retryable error.
	require.NoError(t, f.executor(scraper, nil, nil).Execute(ctx, f.job))

	w, err := f.workers.Get(ctx, "w-1")
	require.NoError(t, err)
	require.Equal(t, leadscout.WorkerQuarantined, w.Status)
	require.NotNil(t, w.QuarantineUntil)
	require.True(t, w.QuarantineUntil.After(f.now.Add(23*time.Hour+59*time.Minute)))
	require.Contains(t, w.BanReason, "429")

	require.Zero(t, f.posts.Len())

	// Excluded from reservation until the window passes.
	_, err = f.workers.Reserve(ctx, leadscout.PlatformTwitter, f.now.Add(time.Hour))
	require.ErrorIs(t, err, leadscout.ErrNoIdleWorker)
}

func TestExecuteTransientFailureReleasesWorker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	scraper := &fakeScraper{err: errors.New("dial tcp: connection refused")}

	err := f.executor(scraper, nil, nil).Execute(ctx, f.job)
	require.Error(t, err) // surfaced so the queue's redelivery policy owns the retry

	w, getErr := f.workers.Get(ctx, "w-1")
	require.NoError(t, getErr)
	require.Equal(t, leadscout.WorkerIdle, w.Status)
	require.Zero(t, w.RequestsToday)

	// Immediately eligible again.
	reserved, reserveErr := f.workers.Reserve(ctx, leadscout.PlatformTwitter, f.now)
	require.NoError(t, reserveErr)
	require.Equal(t, "w-1", reserved.ID)
}

func TestExecuteCredentialFailureIsTransient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	creds := &fakeCredentials{err: errors.New("cipher: message authentication failed")}
	scraper := &fakeScraper{posts: []leadscout.ScrapedPost{{PostID: "p1"}}}

	err := f.executor(scraper, creds, nil).Execute(ctx, f.job)
	require.Error(t, err)

	w, getErr := f.workers.Get(ctx, "w-1")
	require.NoError(t, getErr)
	require.Equal(t, leadscout.WorkerIdle, w.Status)
	require.Zero(t, f.posts.Len())
}

func TestExecuteMissingWorkerDropsJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	scraper := &fakeScraper{posts: []leadscout.ScrapedPost{{PostID: "p1"}}}

	job := f.job
	job.WorkerID = "w-gone"

	// Nil means ack: a missing registry record is never retried.
	require.NoError(t, f.executor(scraper, nil, nil).Execute(ctx, job))
	require.Zero(t, f.posts.Len())
}

func TestExecuteReplayedJobDoesNotDuplicatePosts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	scraper := &fakeScraper{posts: []leadscout.ScrapedPost{
		{PostID: "p1", Text: "first delivery"},
	}}
	ex := f.executor(scraper, nil, nil)

	require.NoError(t, ex.Execute(ctx, f.job))

	// Simulate at-least-once redelivery with a changed payload; the
	// worker is busy again for the replay.
	_, err := f.workers.Reserve(ctx, leadscout.PlatformTwitter, f.now)
	require.NoError(t, err)
	scraper.posts = []leadscout.ScrapedPost{{PostID: "p1", Text: "second delivery"}}
	require.NoError(t, ex.Execute(ctx, f.job))

	require.Equal(t, 1, f.posts.Len())
	got, ok := f.posts.Get(ctx, leadscout.PlatformTwitter, "p1")
	require.True(t, ok)
	require.Equal(t, "second delivery", got.Text)
}

func TestExecuteBlobArchiveFailureDoesNotFailJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	scraper := &fakeScraper{posts: []leadscout.ScrapedPost{{PostID: "p1"}}}
	blobs := &fakeBlobStore{err: errors.New("bucket unavailable")}

	require.NoError(t, f.executor(scraper, nil, blobs).Execute(ctx, f.job))

	require.Equal(t, 1, f.posts.Len())
	got, ok := f.posts.Get(ctx, leadscout.PlatformTwitter, "p1")
	require.True(t, ok)
	require.Empty(t, got.BlobURI)

	w, err := f.workers.Get(ctx, "w-1")
	require.NoError(t, err)
	require.Equal(t, leadscout.WorkerIdle, w.Status)
}

func TestExecuteTimeoutBoundsScrape(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	slow := &ctxScraper{}
	ex := New(f.workers, f.targets, f.posts, &fakeCredentials{}, slow, nil, nil, nil, f.clock,
		Config{ScrapeTimeout: 10 * time.Millisecond}, nil, zap.NewNop())

	err := ex.Execute(ctx, f.job)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Timeout is a transient failure: the worker is back to idle.
	w, getErr := f.workers.Get(ctx, "w-1")
	require.NoError(t, getErr)
	require.Equal(t, leadscout.WorkerIdle, w.Status)
}

func TestExecuteContentAddressesBlobPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	scraper := &fakeScraper{posts: []leadscout.ScrapedPost{{PostID: "p1", Text: "need help"}}}
	blobs := &fakeBlobStore{}

	ex := New(f.workers, f.targets, f.posts, &fakeCredentials{}, scraper, blobs,
		sha256hash.New(), nil, f.clock, Config{BlobPrefix: "scrapes"}, nil, zap.NewNop())
	require.NoError(t, ex.Execute(ctx, f.job))
	firstPath := blobs.lastPath
	require.Regexp(t, `^scrapes/t-1/[0-9a-f]{64}\.json$`, firstPath)

	// Same payload on redelivery lands on the same object.
	require.NoError(t, f.workers.Put(ctx, leadscout.Worker{
		ID: "w-1", Platform: leadscout.PlatformTwitter,
		Status: leadscout.WorkerBusy, CredentialsRef: "cred-1",
	}))
	require.NoError(t, ex.Execute(ctx, f.job))
	require.Equal(t, firstPath, blobs.lastPath)
}

type countingLimiter struct {
	calls int
	err   error
}

func (l *countingLimiter) Wait(_ context.Context, _ string) error {
	l.calls++
	return l.err
}

func TestExecuteWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	scraper := &fakeScraper{posts: []leadscout.ScrapedPost{{PostID: "p1"}}}
	limiter := &countingLimiter{}

	ex := New(f.workers, f.targets, f.posts, &fakeCredentials{}, scraper, nil,
		nil, limiter, f.clock, Config{}, nil, zap.NewNop())
	require.NoError(t, ex.Execute(ctx, f.job))
	require.Equal(t, 1, limiter.calls)
}

func TestExecuteLimiterErrorIsTransient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	scraper := &fakeScraper{posts: []leadscout.ScrapedPost{{PostID: "p1"}}}
	limiter := &countingLimiter{err: context.Canceled}

	ex := New(f.workers, f.targets, f.posts, &fakeCredentials{}, scraper, nil,
		nil, limiter, f.clock, Config{}, nil, zap.NewNop())
	require.Error(t, ex.Execute(ctx, f.job))

	w, err := f.workers.Get(ctx, "w-1")
	require.NoError(t, err)
	require.Equal(t, leadscout.WorkerIdle, w.Status)
	require.Zero(t, f.posts.Len())
}

// ctxScraper blocks until its context expires.
type ctxScraper struct{}

func (ctxScraper) Scrape(ctx context.Context, _ leadscout.Platform, _ leadscout.TargetType, _ string, _ leadscout.Credentials) ([]leadscout.ScrapedPost, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
