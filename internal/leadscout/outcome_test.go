package leadscout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReduceWorkerSuccess(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	patch := ReduceWorker(Outcome{Kind: OutcomeSuccess, PostCount: 2}, now)

	require.Equal(t, WorkerIdle, patch.Status)
	require.Equal(t, 2, patch.RequestsTodayAdd)
	require.Nil(t, patch.QuarantineUntil)
	require.Nil(t, patch.BanReason)
}

func TestReduceWorkerBanQuarantines(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	patch := ReduceWorker(Outcome{Kind: OutcomeBan, BanReason: "429"}, now)

	require.Equal(t, WorkerQuarantined, patch.Status)
	require.NotNil(t, patch.QuarantineUntil)
	require.Equal(t, now.Add(QuarantineWindow), *patch.QuarantineUntil)
	require.NotNil(t, patch.BanReason)
	require.Equal(t, "429", *patch.BanReason)
	require.True(t, patch.QuarantineUntil.After(now.Add(23*time.Hour+59*time.Minute)))
}

func TestReduceWorkerBanDefaultsReason(t *testing.T) {
	t.Parallel()

	patch := ReduceWorker(Outcome{Kind: OutcomeBan}, time.Now().UTC())
	require.NotNil(t, patch.BanReason)
	require.NotEmpty(t, *patch.BanReason)
}

func TestReduceWorkerTransientReleasesToIdle(t *testing.T) {
	t.Parallel()

	patch := ReduceWorker(Outcome{Kind: OutcomeTransient}, time.Now().UTC())
	require.Equal(t, WorkerIdle, patch.Status)
	require.Zero(t, patch.RequestsTodayAdd)
	require.Nil(t, patch.QuarantineUntil)
}

func TestWorkerEligible(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name   string
		worker Worker
		want   bool
	}{
		{name: "idle", worker: Worker{Status: WorkerIdle}, want: true},
		{name: "busy", worker: Worker{Status: WorkerBusy}, want: false},
		{name: "quarantined", worker: Worker{Status: WorkerQuarantined}, want: false},
		{name: "idle with future quarantine", worker: Worker{Status: WorkerIdle, QuarantineUntil: &future}, want: false},
		{name: "idle with elapsed quarantine", worker: Worker{Status: WorkerIdle, QuarantineUntil: &past}, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.worker.Eligible(now))
		})
	}
}

func TestTargetDue(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()

	require.True(t, Target{Status: TargetActive, NextScrapeAt: now.Add(-time.Second)}.Due(now))
	require.True(t, Target{Status: TargetActive, NextScrapeAt: now}.Due(now))
	require.False(t, Target{Status: TargetActive, NextScrapeAt: now.Add(time.Second)}.Due(now))
	require.False(t, Target{Status: TargetPaused, NextScrapeAt: now.Add(-time.Hour)}.Due(now))
}
