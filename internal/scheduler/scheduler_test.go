package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidnkusi/leadscout/internal/dispatcher"
	"github.com/davidnkusi/leadscout/internal/leadscout"
	storememory "github.com/davidnkusi/leadscout/internal/store/memory"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type recordingQueue struct {
	mu   sync.Mutex
	jobs []leadscout.ScrapeJob
}

func (q *recordingQueue) Enqueue(_ context.Context, job leadscout.ScrapeJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Close() error { return nil }

func (q *recordingQueue) all() []leadscout.ScrapeJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]leadscout.ScrapeJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

func newFixture(t *testing.T, now time.Time) (*Scheduler, *storememory.WorkerStore, *storememory.TargetStore, *recordingQueue) {
	t.Helper()
	workers := storememory.NewWorkerStore()
	targets := storememory.NewTargetStore()
	queue := &recordingQueue{}
	clock := &fakeClock{now: now}
	d := dispatcher.New(queue, workers, targets, clock, dispatcher.DefaultScrapeInterval, nil, zap.NewNop())
	s := New(workers, targets, d, clock, Config{}, nil, zap.NewNop())
	return s, workers, targets, queue
}

func TestRunCycleDispatchesDueTarget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	s, workers, targets, queue := newFixture(t, now)

	require.NoError(t, workers.Put(ctx, leadscout.Worker{
		ID: "w-1", Platform: leadscout.PlatformTwitter, Status: leadscout.WorkerIdle,
	}))
	require.NoError(t, targets.Put(ctx, leadscout.Target{
		ID:           "t-1",
		Platform:     leadscout.PlatformTwitter,
		Type:         leadscout.TargetKeyword,
		Term:         "photographer kigali",
		Status:       leadscout.TargetActive,
		NextScrapeAt: now.Add(-time.Second),
	}))

	require.NoError(t, s.RunCycle(ctx))

	jobs := queue.all()
	require.Len(t, jobs, 1)
	require.Equal(t, "t-1", jobs[0].TargetID)
	require.Equal(t, "w-1", jobs[0].WorkerID)

	w, err := workers.Get(ctx, "w-1")
	require.NoError(t, err)
	require.Equal(t, leadscout.WorkerBusy, w.Status)

	tgt, err := targets.Get(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, now.Add(30*time.Minute), tgt.NextScrapeAt)
}

func TestRunCycleWithNoWorkersLeavesTargetDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	s, _, targets, queue := newFixture(t, now)

	require.NoError(t, targets.Put(ctx, leadscout.Target{
		ID:           "t-1",
		Platform:     leadscout.PlatformTwitter,
		Status:       leadscout.TargetActive,
		NextScrapeAt: now.Add(-time.Minute),
	}))

	require.NoError(t, s.RunCycle(ctx))

	require.Empty(t, queue.all())
	tgt, err := targets.Get(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, now.Add(-time.Minute), tgt.NextScrapeAt)
	require.True(t, tgt.Due(now))
}

func TestRunCycleMoreTargetsThanWorkers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	s, workers, targets, queue := newFixture(t, now)

	for _, id := range []string{"w-1", "w-2"} {
		require.NoError(t, workers.Put(ctx, leadscout.Worker{
			ID: id, Platform: leadscout.PlatformTwitter, Status: leadscout.WorkerIdle,
		}))
	}
	for _, id := range []string{"t-1", "t-2", "t-3", "t-4", "t-5"} {
		require.NoError(t, targets.Put(ctx, leadscout.Target{
			ID:           id,
			Platform:     leadscout.PlatformTwitter,
			Status:       leadscout.TargetActive,
			NextScrapeAt: now.Add(-time.Minute),
		}))
	}

	require.NoError(t, s.RunCycle(ctx))

	// Exactly as many dispatches as idle workers, and never the same
	// worker twice.
	jobs := queue.all()
	require.Len(t, jobs, 2)
	seen := map[string]bool{}
	for _, job := range jobs {
		require.False(t, seen[job.WorkerID], "worker %s double-assigned", job.WorkerID)
		seen[job.WorkerID] = true
	}
}

func TestRunCycleSweepsExpiredQuarantine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	s, workers, targets, queue := newFixture(t, now)

	expired := now.Add(-time.Minute)
	require.NoError(t, workers.Put(ctx, leadscout.Worker{
		ID:              "w-1",
		Platform:        leadscout.PlatformTwitter,
		Status:          leadscout.WorkerQuarantined,
		QuarantineUntil: &expired,
		BanReason:       "429",
	}))
	require.NoError(t, targets.Put(ctx, leadscout.Target{
		ID:           "t-1",
		Platform:     leadscout.PlatformTwitter,
		Status:       leadscout.TargetActive,
		NextScrapeAt: now.Add(-time.Second),
	}))

	// The sweep runs before reservation, so the freshly released worker
	// serves this same cycle.
	require.NoError(t, s.RunCycle(ctx))
	require.Len(t, queue.all(), 1)

	w, err := workers.Get(ctx, "w-1")
	require.NoError(t, err)
	require.Equal(t, leadscout.WorkerBusy, w.Status)
	require.Empty(t, w.BanReason)
}

func TestRunCycleRespectsBatchLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	workers := storememory.NewWorkerStore()
	targets := storememory.NewTargetStore()
	queue := &recordingQueue{}
	clock := &fakeClock{now: now}
	d := dispatcher.New(queue, workers, targets, clock, dispatcher.DefaultScrapeInterval, nil, zap.NewNop())
	s := New(workers, targets, d, clock, Config{BatchLimit: 2}, nil, zap.NewNop())

	for i := 0; i < 4; i++ {
		id := string(rune('a' + i))
		require.NoError(t, workers.Put(ctx, leadscout.Worker{
			ID: "w-" + id, Platform: leadscout.PlatformInstagram, Status: leadscout.WorkerIdle,
		}))
		require.NoError(t, targets.Put(ctx, leadscout.Target{
			ID:           "t-" + id,
			Platform:     leadscout.PlatformInstagram,
			Status:       leadscout.TargetActive,
			NextScrapeAt: now.Add(-time.Duration(i+1) * time.Minute),
		}))
	}

	require.NoError(t, s.RunCycle(ctx))
	require.Len(t, queue.all(), 2)
}
