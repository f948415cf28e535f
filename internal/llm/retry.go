package llm

import (
	"context"
	"time"
)

// WithRetry runs fn up to maxRetries+1 times with capped exponential backoff
// (spec §4.D: "default max 2 retries, base 500ms"), doubling baseDelay each
// attempt. fn itself decides whether an error is retryable by returning a
// non-nil error only for transport/5xx-class failures; a non-retryable error
// should be returned wrapped by nonRetryableErr so WithRetry stops early.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if nr, ok := err.(nonRetryable); ok {
			return nr.err
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

// nonRetryable wraps an error that WithRetry should surface immediately
// without consuming further attempts (e.g. a 4xx client error).
type nonRetryable struct{ err error }

func (n nonRetryable) Error() string { return n.err.Error() }

func nonRetryableErr(err error) error {
	if err == nil {
		return nil
	}
	return nonRetryable{err: err}
}
