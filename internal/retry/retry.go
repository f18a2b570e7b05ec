// Package retry runs operations with exponential backoff. Outbound clients
// mark failures that must not be retried with Permanent.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps exponential growth.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the backoff after each retry. Default 2.
	BackoffFactor float64

	// Jitter adds rand(0, backoff) to every wait.
	Jitter bool
}

// DefaultConfig returns the configuration used by outbound HTTP clients.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// OnRetryFunc is called before each retry. attempt is 1-indexed.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with
// Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a permanent error, the retries run
// out, or ctx is done.
func Do[T any](ctx context.Context, cfg Config, onRetry OnRetryFunc, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 10 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 100 * time.Millisecond
	}

	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if cfg.Jitter {
				wait += rand.N(backoff)
			}

			if onRetry != nil {
				onRetry(attempt, lastErr, wait)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("context cancelled while retrying: %w", ctx.Err())
			case <-timer.C:
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("operation failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// DoVoid is Do for functions without a result.
func DoVoid(ctx context.Context, cfg Config, onRetry OnRetryFunc, fn func() error) error {
	_, err := Do(ctx, cfg, onRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
