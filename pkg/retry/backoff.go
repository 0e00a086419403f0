package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Config holds retry configuration parameters.
type Config struct {
	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration
	// Multiplier is the factor by which the delay grows each retry.
	Multiplier float64
	// Jitter adds randomness to the delay to avoid thundering herds.
	Jitter bool
}

// DefaultConfig returns the retry configuration used for idempotent
// vendor API reads. Control writes are never retried through this
// package; a duplicated write is worse than a failed one.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   2,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Backoff calculates the delay for a given retry attempt.
func (c Config) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.Jitter {
		// Up to 25% extra. Non-cryptographic randomness is fine here.
		delay += rand.Float64() * 0.25 * delay
	}

	return time.Duration(delay)
}

// Do executes fn, retrying transient failures per the configuration.
func Do(ctx context.Context, config Config, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(config.Backoff(attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetriable(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// transientError marks an error as retriable regardless of its message.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// Transient wraps an error so IsRetriable reports true for it. Callers
// use it to flag failures they know to be transient, such as HTTP 5xx
// responses from an otherwise healthy endpoint.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsRetriable reports whether an error looks like a transient network
// failure worth retrying.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	var te *transientError
	if errors.As(err, &te) {
		return true
	}

	msg := err.Error()
	for _, s := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"no such host",
		"TLS handshake timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}

// RetriableStatus reports whether an HTTP status code warrants a retry.
func RetriableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}
