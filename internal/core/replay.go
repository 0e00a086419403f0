package core

import (
	"context"
	"sync"
	"time"

	"github.com/petsync/sureflap-sync/pkg/model"
)

// ReplayStore persists the small amount of state that must survive a
// restart: the last enabled curfew per device (so an enable command can
// restore the previous windows) and per-feed fetch timestamps (so
// history and report staggering resumes where it left off).
type ReplayStore interface {
	LastEnabledCurfew(ctx context.Context, deviceID int64) (model.Curfew, bool, error)
	SetLastEnabledCurfew(ctx context.Context, deviceID int64, c model.Curfew) error
	LastFetch(ctx context.Context, name string) (time.Time, bool, error)
	SetLastFetch(ctx context.Context, name string, t time.Time) error
	Close() error
}

// MemoryReplayStore is an in-memory ReplayStore for tests.
type MemoryReplayStore struct {
	mu      sync.Mutex
	curfews map[int64]model.Curfew
	fetches map[string]time.Time
}

// NewMemoryReplayStore creates an empty in-memory store.
func NewMemoryReplayStore() *MemoryReplayStore {
	return &MemoryReplayStore{
		curfews: make(map[int64]model.Curfew),
		fetches: make(map[string]time.Time),
	}
}

func (s *MemoryReplayStore) LastEnabledCurfew(_ context.Context, deviceID int64) (model.Curfew, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.curfews[deviceID]
	return c, ok, nil
}

func (s *MemoryReplayStore) SetLastEnabledCurfew(_ context.Context, deviceID int64, c model.Curfew) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curfews[deviceID] = c
	return nil
}

func (s *MemoryReplayStore) LastFetch(_ context.Context, name string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.fetches[name]
	return t, ok, nil
}

func (s *MemoryReplayStore) SetLastFetch(_ context.Context, name string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[name] = t
	return nil
}

func (s *MemoryReplayStore) Close() error { return nil }
