// Package events defines the scheduling lifecycle events emitted by the
// scheduler, dispatcher and executor, and the hub that fans them out to
// sinks.
package events

import (
	"errors"
	"fmt"
	"time"
)

// Kind denotes the type of milestone represented by an Event.
type Kind string

// Supported event kinds.
const (
	KindCycleStarted      Kind = "CYCLE_STARTED"
	KindCycleFinished     Kind = "CYCLE_FINISHED"
	KindJobDispatched     Kind = "JOB_DISPATCHED"
	KindScrapeSucceeded   Kind = "SCRAPE_SUCCEEDED"
	KindScrapeFailed      Kind = "SCRAPE_FAILED"
	KindWorkerQuarantined Kind = "WORKER_QUARANTINED"
)

// Event captures a single scheduling milestone.
type Event struct {
	// Kind denotes which milestone occurred.
	Kind Kind
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// TargetID scopes the event to a target where applicable.
	TargetID string
	// WorkerID scopes the event to a worker where applicable.
	WorkerID string
	// Platform labels the event's platform.
	Platform string
	// Posts carries the number of posts persisted for scrape completions.
	Posts int
	// Dur captures scrape latency for completion events.
	Dur time.Duration
	// Note attaches low-volume context such as ban reasons or error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindCycleStarted, KindCycleFinished:
	case KindJobDispatched, KindScrapeSucceeded, KindScrapeFailed:
		if e.TargetID == "" || e.WorkerID == "" {
			return fmt.Errorf("%s requires target and worker ids", e.Kind)
		}
	case KindWorkerQuarantined:
		if e.WorkerID == "" {
			return errors.New("quarantine event requires worker id")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
