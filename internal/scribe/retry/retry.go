// Package retry runs external calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxAttempts is the default number of calls made before giving up.
const DefaultMaxAttempts = 3

// DefaultBaseDelay is the delay before the first retry.
const DefaultBaseDelay = 1 * time.Second

// Policy configures Do.
type Policy struct {
	// MaxAttempts is the maximum number of times the operation runs.
	MaxAttempts int

	// BaseDelay is multiplied by 2^attempt to get the wait after a failed attempt.
	BaseDelay time.Duration

	// Retryable classifies errors. Defaults to DefaultRetryable.
	Retryable func(error) bool

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns a Policy with the default attempt count and delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// Delay returns the wait after the failed attempt with the given zero-based index.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * (1 << attempt)
}

// Do runs op until it succeeds, fails with a terminal error, or MaxAttempts
// calls have been made. Terminal errors are returned as-is; exhaustion wraps
// the last error so errors.Is and errors.As still see it.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == maxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, errors.Join(err, lastErr)
		}
	}

	return zero, fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as terminal so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// DefaultRetryable treats cancellation, Permanent errors and 4xx responses
// other than 408 and 429 as terminal. Everything else is retried, including
// per-request timeouts.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if IsPermanent(err) {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		status := sc.StatusCode()
		switch {
		case status == 408 || status == 429:
			return true
		case status >= 400 && status < 500:
			return false
		default:
			return true
		}
	}

	// Network failures, truncated bodies and anything unclassified are retried.
	return true
}
