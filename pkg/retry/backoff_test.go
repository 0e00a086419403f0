package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	config := Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second}, // capped at MaxDelay
	}

	for _, tt := range tests {
		delay := config.Backoff(tt.attempt)
		if delay != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, delay)
		}
	}
}

func TestBackoffWithJitter(t *testing.T) {
	t.Parallel()

	config := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	// Jittered delay stays within [base, base*1.25].
	base := 200 * time.Millisecond
	for i := 0; i < 10; i++ {
		delay := config.Backoff(2)
		if delay < base || delay > base+base/4 {
			t.Errorf("jittered delay out of range: %v", delay)
		}
	}
}

func TestDo_Success(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.InitialDelay = 10 * time.Millisecond

	callCount := 0
	err := Do(context.Background(), config, func() error {
		callCount++
		return nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDo_RetryAndSuccess(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.InitialDelay = 10 * time.Millisecond
	config.MaxRetries = 3

	callCount := 0
	err := Do(context.Background(), config, func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary failure in name resolution")
		}
		return nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.InitialDelay = 10 * time.Millisecond
	config.MaxRetries = 2

	callCount := 0
	err := Do(context.Background(), config, func() error {
		callCount++
		return errors.New("connection refused")
	})
	if err == nil {
		t.Error("expected error, got nil")
	}

	// Initial attempt plus two retries.
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_NonRetriableError(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.InitialDelay = 10 * time.Millisecond

	callCount := 0
	err := Do(context.Background(), config, func() error {
		callCount++
		return errors.New("invalid credentials")
	})
	if err == nil {
		t.Error("expected error, got nil")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.InitialDelay = 100 * time.Millisecond
	config.MaxRetries = 5

	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	err := Do(ctx, config, func() error {
		callCount++
		if callCount == 2 {
			cancel()
		}
		return errors.New("connection refused")
	})
	if err == nil {
		t.Error("expected error, got nil")
	}
	if callCount > 3 {
		t.Errorf("expected at most 3 calls, got %d", callCount)
	}
}

func TestIsRetriable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"nil error", nil, false},
		{"timeout", errors.New("connection timeout"), true},
		{"connection refused", errors.New("connection refused"), true},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"dns failure", errors.New("temporary failure in name resolution"), true},
		{"auth failure", errors.New("unauthorized"), false},
		{"marked transient", Transient(errors.New("HTTP 500")), true},
		{"wrapped transient", fmt.Errorf("fetching: %w", Transient(errors.New("HTTP 502"))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetriable(tt.err); got != tt.retriable {
				t.Errorf("expected %v, got %v for error: %v", tt.retriable, got, tt.err)
			}
		})
	}
}

func TestRetriableStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code      int
		retriable bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		if got := RetriableStatus(tt.code); got != tt.retriable {
			t.Errorf("status %d: expected %v, got %v", tt.code, tt.retriable, got)
		}
	}
}
