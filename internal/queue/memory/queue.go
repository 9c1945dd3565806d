// Package memory provides a queue implementation for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

// Queue is a bounded in-memory ScrapeJob queue with context-aware
// operations. Unlike the Pub/Sub queue it makes no redelivery promises: a
// failed handler drops the job.
type Queue struct {
	ch      chan leadscout.ScrapeJob
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan leadscout.ScrapeJob, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, job leadscout.ScrapeJob) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (leadscout.ScrapeJob, error) {
	select {
	case <-ctx.Done():
		return leadscout.ScrapeJob{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return leadscout.ScrapeJob{}, errors.New("queue closed")
		}
		return job, nil
	}
}

// Consume delivers jobs to the handler one at a time until the context
// finishes or the queue closes. Handler errors are the handler's problem to
// report; the job is not redelivered.
func (q *Queue) Consume(ctx context.Context, handle func(context.Context, leadscout.ScrapeJob) error) error {
	for {
		job, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		_ = handle(ctx, job)
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return nil
	}
	close(q.ch)
	q.closed = true
	return nil
}
