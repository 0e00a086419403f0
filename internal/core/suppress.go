package core

import (
	"fmt"
	"log/slog"
	"sync"
)

// WarnKind classifies recurring data-gap warnings so each one fires
// once per transition instead of once per cycle.
type WarnKind int

const (
	WarnNoBattery WarnKind = iota
	WarnNoSignal
	WarnNoLockMode
	WarnNoCurfew
	WarnNoPosition
	WarnNoBowls
	WarnNoReport
	WarnNameCollision
	WarnStoreWrite
)

// SuppressionTable tracks which (kind, entity) warnings have already
// been logged. A warning re-arms when Clear is called for it, i.e. when
// the underlying data reappears.
//
// Exception: WarnNoSignal is never re-armed. The vendor API drops the
// RSSI fields intermittently, and re-arming would flood the log every
// few cycles.
// TODO: drop the WarnNoSignal exception if the upstream API ever stops
// omitting signal data intermittently.
type SuppressionTable struct {
	mu     sync.Mutex
	warned map[string]bool
	logger *slog.Logger
}

// NewSuppressionTable creates an empty table logging through logger.
func NewSuppressionTable(logger *slog.Logger) *SuppressionTable {
	return &SuppressionTable{
		warned: make(map[string]bool),
		logger: logger,
	}
}

func key(kind WarnKind, entity string) string {
	return fmt.Sprintf("%d:%s", kind, entity)
}

// Warn logs the message at warn level unless this (kind, entity) pair
// is already suppressed, and marks it suppressed. Returns whether the
// message was actually logged.
func (t *SuppressionTable) Warn(kind WarnKind, entity, msg string, args ...any) bool {
	t.mu.Lock()
	k := key(kind, entity)
	if t.warned[k] {
		t.mu.Unlock()
		return false
	}
	t.warned[k] = true
	t.mu.Unlock()

	t.logger.Warn(msg, args...)
	return true
}

// Clear re-arms the warning for this (kind, entity) pair. Clearing
// WarnNoSignal is a no-op; see the type comment.
func (t *SuppressionTable) Clear(kind WarnKind, entity string) {
	if kind == WarnNoSignal {
		return
	}
	t.mu.Lock()
	delete(t.warned, key(kind, entity))
	t.mu.Unlock()
}

// Suppressed reports whether the warning is currently suppressed.
func (t *SuppressionTable) Suppressed(kind WarnKind, entity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.warned[key(kind, entity)]
}
