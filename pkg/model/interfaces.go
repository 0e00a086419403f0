package model

import (
	"context"
	"time"
)

// APIClient is the contract the sync core consumes for talking to the
// Sure Petcare cloud. Implementations own transport details (timeouts,
// headers, token storage); the core only sees parsed payloads or errors.
type APIClient interface {
	// Login authenticates and stores the session token. Called again
	// whenever the session is considered dead.
	Login(ctx context.Context) error

	Households(ctx context.Context) ([]Household, error)
	DevicesForHousehold(ctx context.Context, householdID int64) ([]Device, error)
	Pets(ctx context.Context) ([]Pet, error)
	HistoryForHousehold(ctx context.Context, householdID int64) ([]HistoryEvent, error)
	ReportForPet(ctx context.Context, householdID, petID int64) (*Report, error)

	SetLockMode(ctx context.Context, deviceID int64, mode int) error
	SetLEDMode(ctx context.Context, deviceID int64, mode int) error
	SetCloseDelay(ctx context.Context, deviceID int64, delay int) error
	SetPetType(ctx context.Context, deviceID, tagID int64, profile int) error
	SetPetLocation(ctx context.Context, petID int64, where int, since time.Time) error
	// SetCurfew sends the full slot list (cat flaps).
	SetCurfew(ctx context.Context, deviceID int64, curfew Curfew) error
	// SetCurfewSingle sends a bare slot object (pet flaps).
	SetCurfewSingle(ctx context.Context, deviceID int64, slot CurfewSlot) error
	SetPetAssignment(ctx context.Context, deviceID, tagID int64, assigned bool) error
}

// ObjectKind classifies structural nodes in the state store hierarchy.
type ObjectKind int

const (
	KindFolder ObjectKind = iota
	KindDevice
	KindChannel
)

// Store is the hierarchical key-value state store the core projects into.
// Paths are slash-separated; Delete removes an entire subtree.
type Store interface {
	// EnsureObject creates a structural node if it does not exist yet.
	EnsureObject(ctx context.Context, path string, kind ObjectKind) error
	Exists(ctx context.Context, path string) (bool, error)
	// Get reads back a previously written leaf value.
	Get(ctx context.Context, path string) (any, bool, error)
	Set(ctx context.Context, path string, value any) error
	Delete(ctx context.Context, path string) error
}

// WriteIntent is an externally submitted control change: a hierarchy path
// plus the target value.
type WriteIntent struct {
	Path  []string
	Value any
}

// IntentSource delivers write intents to the command dispatcher.
type IntentSource interface {
	Intents() <-chan WriteIntent
}

// TestLoginRequest asks for a credential check without touching the
// running session. Used by configuration front ends.
type TestLoginRequest struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// TestLoginResponse reports the outcome of a credential check.
type TestLoginResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
