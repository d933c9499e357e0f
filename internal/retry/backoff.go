// Package retry provides capped exponential backoff shared by the backend
// client (read retries) and the push connection (reconnects).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// Config holds backoff parameters.
type Config struct {
	// MaxRetries bounds Do; it is ignored by reconnect loops that retry forever.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter adds up to 25% random delay.
	Jitter bool
}

// DefaultConfig doubles from 1s up to 30s with jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   2,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Backoff returns the delay before retry number attempt (1-based).
func (c Config) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.Jitter {
		// #nosec G404 - jitter does not need a CSPRNG
		delay += rand.Float64() * 0.25 * delay
	}
	return time.Duration(delay)
}

// Wait sleeps for the backoff of attempt or until ctx is done.
func (c Config) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(c.Backoff(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, returns a non-retriable error, or MaxRetries
// retries have been spent.
func Do(ctx context.Context, config Config, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := config.Wait(ctx, attempt); err != nil {
				return fmt.Errorf("retry cancelled: %w", err)
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

// retriableError marks an error as worth retrying regardless of its cause.
type retriableError struct{ err error }

func (e retriableError) Error() string { return e.err.Error() }
func (e retriableError) Unwrap() error { return e.err }

// Retriable wraps err so IsRetriable reports true (e.g. HTTP 502/503/429).
func Retriable(err error) error {
	if err == nil {
		return nil
	}
	return retriableError{err: err}
}

// IsRetriable reports transient network failures.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	var re retriableError
	if errors.As(err, &re) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
