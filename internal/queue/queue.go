// Package queue provides message queue implementations for ScrapeJob
// delivery. The abstraction keeps the scheduler and executor independent of
// a specific broker (GCP Pub/Sub in production, an in-memory channel queue
// for development and tests).
package queue

import (
	"context"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

// NoOpQueue swallows every job. Useful for running the scheduler without a
// real broker attached.
type NoOpQueue struct{}

// Enqueue for NoOpQueue does nothing and returns nil.
func (NoOpQueue) Enqueue(_ context.Context, _ leadscout.ScrapeJob) error { return nil }

// Close for NoOpQueue does nothing and returns nil.
func (NoOpQueue) Close() error { return nil }
