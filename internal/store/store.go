// Package store provides the hierarchical state store the sync core
// projects into: an in-memory implementation for tests and an MQTT
// retained-topic mirror for production.
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/petsync/sureflap-sync/pkg/model"
)

// Join builds a store path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split breaks a store path into segments.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// MemoryStore is an in-memory Store used in tests and as the readback
// cache behind the MQTT mirror. It records every Set call so tests can
// assert on write suppression.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string]any
	objects map[string]model.ObjectKind

	// SetCalls counts Set invocations per path.
	setCalls map[string]int

	intents chan model.WriteIntent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]any),
		objects:  make(map[string]model.ObjectKind),
		setCalls: make(map[string]int),
		intents:  make(chan model.WriteIntent, 16),
	}
}

// EnsureObject creates a structural node if missing.
func (s *MemoryStore) EnsureObject(_ context.Context, path string, kind model.ObjectKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		s.objects[path] = kind
	}
	return nil
}

// Exists reports whether a value or object exists at path.
func (s *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.values[path]; ok {
		return true, nil
	}
	_, ok := s.objects[path]
	return ok, nil
}

// Get reads back a previously written leaf value.
func (s *MemoryStore) Get(_ context.Context, path string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[path]
	return v, ok, nil
}

// Set writes a leaf value.
func (s *MemoryStore) Set(_ context.Context, path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[path] = value
	s.setCalls[path]++
	return nil
}

// Delete removes the value or subtree rooted at path.
func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := path + "/"
	for k := range s.values {
		if k == path || strings.HasPrefix(k, prefix) {
			delete(s.values, k)
		}
	}
	for k := range s.objects {
		if k == path || strings.HasPrefix(k, prefix) {
			delete(s.objects, k)
		}
	}
	return nil
}

// SetCalls returns how often Set was called for path.
func (s *MemoryStore) SetCalls(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.setCalls[path]
}

// ResetCounters clears the per-path Set counters.
func (s *MemoryStore) ResetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls = make(map[string]int)
}

// Paths returns all leaf paths currently holding a value.
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.values))
	for k := range s.values {
		paths = append(paths, k)
	}
	return paths
}

// Intents returns the write-intent channel.
func (s *MemoryStore) Intents() <-chan model.WriteIntent {
	return s.intents
}

// Submit injects a write intent, as an external caller would.
func (s *MemoryStore) Submit(intent model.WriteIntent) {
	s.intents <- intent
}
