package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

// TargetStore is an in-memory target collection.
type TargetStore struct {
	mu      sync.RWMutex
	targets map[string]leadscout.Target
}

// NewTargetStore constructs an empty TargetStore.
func NewTargetStore() *TargetStore {
	return &TargetStore{targets: make(map[string]leadscout.Target)}
}

// Put inserts or replaces a target record. Used by tests and seeding.
func (s *TargetStore) Put(_ context.Context, t leadscout.Target) error {
	if t.ID == "" {
		return fmt.Errorf("target id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[t.ID] = t
	return nil
}

// Create registers a new target, rejecting duplicate ids.
func (s *TargetStore) Create(_ context.Context, t leadscout.Target) error {
	if t.ID == "" {
		return fmt.Errorf("target id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[t.ID]; ok {
		return fmt.Errorf("target %s already exists", t.ID)
	}
	s.targets[t.ID] = t
	return nil
}

// DueTargets returns active targets due at now, oldest first, capped at limit.
func (s *TargetStore) DueTargets(_ context.Context, now time.Time, limit int) ([]leadscout.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []leadscout.Target
	for _, t := range s.targets {
		if t.Due(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextScrapeAt.Equal(due[j].NextScrapeAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextScrapeAt.Before(due[j].NextScrapeAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// AdvanceNextScrape moves NextScrapeAt forward, never backward.
func (s *TargetStore) AdvanceNextScrape(_ context.Context, targetID string, to time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[targetID]
	if !ok {
		return leadscout.ErrTargetNotFound
	}
	if to.After(t.NextScrapeAt) {
		t.NextScrapeAt = to
		s.targets[targetID] = t
	}
	return nil
}

// MarkScraped stamps LastScrapedAt.
func (s *TargetStore) MarkScraped(_ context.Context, targetID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[targetID]
	if !ok {
		return leadscout.ErrTargetNotFound
	}
	ts := at
	t.LastScrapedAt = &ts
	s.targets[targetID] = t
	return nil
}

// IncrementLeadsFound bumps the denormalized lead counter.
func (s *TargetStore) IncrementLeadsFound(_ context.Context, targetID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[targetID]
	if !ok {
		return leadscout.ErrTargetNotFound
	}
	t.LeadsFound += n
	s.targets[targetID] = t
	return nil
}

// Get fetches a target by ID.
func (s *TargetStore) Get(_ context.Context, targetID string) (leadscout.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[targetID]
	if !ok {
		return leadscout.Target{}, leadscout.ErrTargetNotFound
	}
	return t, nil
}

// List returns all targets ordered by id.
func (s *TargetStore) List(_ context.Context) ([]leadscout.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]leadscout.Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
