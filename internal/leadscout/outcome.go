package leadscout

import "time"

// QuarantineWindow is how long a banned worker sits out before the sweep
// returns it to the pool.
const QuarantineWindow = 24 * time.Hour

// OutcomeKind classifies how a scrape job finished from the worker's point
// of view.
type OutcomeKind string

// Outcome kinds.
const (
	// OutcomeSuccess: the platform call succeeded; the worker goes back
	// to idle and its request counter grows by the post count.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeBan: the error text carried a ban or rate-limit marker; the
	// worker is quarantined for QuarantineWindow.
	OutcomeBan OutcomeKind = "ban"

	// OutcomeTransient: network, timeout or parse failure; the worker is
	// released to idle immediately so transient noise does not cost
	// scheduling capacity.
	OutcomeTransient OutcomeKind = "transient"
)

// Outcome is the event the executor emits once per job for the reserved
// worker. It is the input to the single reducer that owns all terminal
// worker-state writes.
type Outcome struct {
	Kind      OutcomeKind
	PostCount int
	BanReason string
}

// WorkerPatch is the update produced by reducing an Outcome. Fields with nil
// pointers are left untouched by the store.
type WorkerPatch struct {
	Status           WorkerStatus
	RequestsTodayAdd int
	QuarantineUntil  *time.Time
	BanReason        *string
}

// ReduceWorker maps a scrape outcome onto the patch applied to the reserved
// worker. Every terminal worker-state transition funnels through here so the
// stores cannot diverge on resolution semantics.
func ReduceWorker(outcome Outcome, now time.Time) WorkerPatch {
	switch outcome.Kind {
	case OutcomeBan:
		until := now.Add(QuarantineWindow)
		reason := outcome.BanReason
		if reason == "" {
			reason = "ban signal detected"
		}
		return WorkerPatch{
			Status:          WorkerQuarantined,
			QuarantineUntil: &until,
			BanReason:       &reason,
		}
	case OutcomeSuccess:
		return WorkerPatch{
			Status:           WorkerIdle,
			RequestsTodayAdd: outcome.PostCount,
		}
	default:
		return WorkerPatch{Status: WorkerIdle}
	}
}
