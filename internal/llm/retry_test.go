package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesUpToMaxThenReturnsLastError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls, "maxRetries=2 means 1 initial attempt + 2 retries")
}

func TestWithRetry_NonRetryableErrorStopsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("client error")
	err := WithRetry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return nonRetryableErr(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "a non-retryable error must not consume further attempts")
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ContextCancellationDuringBackoffStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cancel()
	err := WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		calls++
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
