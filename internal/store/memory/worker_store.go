// Package memory provides store implementations for development/testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

// WorkerStore is an in-memory worker registry. Reservation atomicity comes
// from the store mutex: the eligible scan and the busy transition happen
// under one critical section.
type WorkerStore struct {
	mu      sync.RWMutex
	workers map[string]leadscout.Worker
}

// NewWorkerStore constructs an empty WorkerStore.
func NewWorkerStore() *WorkerStore {
	return &WorkerStore{workers: make(map[string]leadscout.Worker)}
}

// Put inserts or replaces a worker record. Used by tests and seeding.
func (s *WorkerStore) Put(_ context.Context, w leadscout.Worker) error {
	if w.ID == "" {
		return fmt.Errorf("worker id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.ID] = w
	return nil
}

// Create registers a new worker, rejecting duplicate ids.
func (s *WorkerStore) Create(_ context.Context, w leadscout.Worker) error {
	if w.ID == "" {
		return fmt.Errorf("worker id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workers[w.ID]; ok {
		return fmt.Errorf("worker %s already exists", w.ID)
	}
	s.workers[w.ID] = w
	return nil
}

// Reserve atomically takes one eligible worker for the platform,
// least-recently-used first, then lowest id.
func (s *WorkerStore) Reserve(_ context.Context, platform leadscout.Platform, now time.Time) (leadscout.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []leadscout.Worker
	for _, w := range s.workers {
		if w.Platform == platform && w.Eligible(now) {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return leadscout.Worker{}, leadscout.ErrNoIdleWorker
	}
	sort.Slice(candidates, func(i, j int) bool {
		return lessUsed(candidates[i], candidates[j])
	})

	picked := candidates[0]
	picked.Status = leadscout.WorkerBusy
	ts := now
	picked.LastUsedAt = &ts
	s.workers[picked.ID] = picked
	return picked, nil
}

func lessUsed(a, b leadscout.Worker) bool {
	switch {
	case a.LastUsedAt == nil && b.LastUsedAt == nil:
		return a.ID < b.ID
	case a.LastUsedAt == nil:
		return true
	case b.LastUsedAt == nil:
		return false
	case a.LastUsedAt.Equal(*b.LastUsedAt):
		return a.ID < b.ID
	default:
		return a.LastUsedAt.Before(*b.LastUsedAt)
	}
}

// Release returns a busy worker to idle. Compensation path only.
func (s *WorkerStore) Release(_ context.Context, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok {
		return leadscout.ErrWorkerNotFound
	}
	if w.Status != leadscout.WorkerBusy {
		return fmt.Errorf("release worker %s: status is %s, want busy", workerID, w.Status)
	}
	w.Status = leadscout.WorkerIdle
	s.workers[workerID] = w
	return nil
}

// Resolve applies the outcome reducer patch to the worker.
func (s *WorkerStore) Resolve(_ context.Context, workerID string, outcome leadscout.Outcome, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok {
		return leadscout.ErrWorkerNotFound
	}
	patch := leadscout.ReduceWorker(outcome, now)
	w.Status = patch.Status
	w.RequestsToday += patch.RequestsTodayAdd
	if patch.QuarantineUntil != nil {
		w.QuarantineUntil = patch.QuarantineUntil
	}
	if patch.BanReason != nil {
		w.BanReason = *patch.BanReason
	}
	s.workers[workerID] = w
	return nil
}

// SweepQuarantine returns expired quarantines to idle.
func (s *WorkerStore) SweepQuarantine(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	released := 0
	for id, w := range s.workers {
		if w.Status != leadscout.WorkerQuarantined {
			continue
		}
		if w.QuarantineUntil != nil && w.QuarantineUntil.After(now) {
			continue
		}
		w.Status = leadscout.WorkerIdle
		w.QuarantineUntil = nil
		w.BanReason = ""
		s.workers[id] = w
		released++
	}
	return released, nil
}

// ResetDailyCounters zeroes RequestsToday for every worker.
func (s *WorkerStore) ResetDailyCounters(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.workers {
		w.RequestsToday = 0
		s.workers[id] = w
	}
	return nil
}

// Get fetches a worker by ID.
func (s *WorkerStore) Get(_ context.Context, workerID string) (leadscout.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[workerID]
	if !ok {
		return leadscout.Worker{}, leadscout.ErrWorkerNotFound
	}
	return w, nil
}

// List returns all workers ordered by id.
func (s *WorkerStore) List(_ context.Context) ([]leadscout.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]leadscout.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
