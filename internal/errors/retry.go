package errors

import (
	"context"
	"errors"
	"net"
	"time"
)

const (
	MaxRetries  = 3
	BackoffStep = 200 * time.Millisecond
	MaxBackoff  = 5 * time.Second
)

// WithRetry runs fn, retrying only timeout failures with linear backoff.
// Non-timeout errors are returned immediately.
func WithRetry(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err = fn()
		if err == nil {
			return nil
		}

		if !IsTimeout(err) {
			return err
		}

		if attempt == MaxRetries {
			return err
		}

		backoff := linearBackoff(attempt + 1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return err
}

// IsTimeout reports whether err is a timeout, either by the net.Error contract
// or a context deadline buried in the chain.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsRetryable reports whether err carries the retryable flag of an AppError.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}

	return false
}

func linearBackoff(attempt int) time.Duration {
	backoff := time.Duration(attempt) * BackoffStep
	if backoff > MaxBackoff {
		return MaxBackoff
	}

	return backoff
}
