package cache

import (
	"context"
	"errors"
	"time"
)

// Retry policy for network backends (Redis, MongoDB, remote stores).
const (
	retryAttempts = 3
	retryDelay    = time.Second
)

// RetryableError marks a failure that may succeed on a later attempt, such
// as a dropped connection or a 503.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as transient. It returns nil for a nil err.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err or anything it wraps was marked with
// [Retryable].
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryWithBackoff calls fn until it succeeds, fails permanently, or
// three attempts are spent. The delay starts at one second and doubles.
// The last error is returned as is, still marked retryable.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return retry(ctx, retryAttempts, retryDelay, fn)
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) || attempt >= attempts {
			return err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}
