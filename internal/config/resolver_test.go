package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *int, val any) Loader {
	return func(ctx context.Context, key string) (any, error) {
		*calls++
		return val, nil
	}
}

func TestResolver_GetCachesWithinTTL(t *testing.T) {
	calls := 0
	r := NewResolver(time.Minute, countingLoader(&calls, "v1"))

	v1, err := r.Get(context.Background(), "k")
	require.NoError(t, err)
	v2, err := r.Get(context.Background(), "k")
	require.NoError(t, err)

	assert.Equal(t, "v1", v1)
	assert.Equal(t, "v1", v2)
	assert.Equal(t, 1, calls, "a second Get within the TTL must not hit the Loader again")
}

func TestResolver_GetReloadsAfterTTLExpires(t *testing.T) {
	calls := 0
	r := NewResolver(time.Millisecond, countingLoader(&calls, "v1"))

	_, err := r.Get(context.Background(), "k")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = r.Get(context.Background(), "k")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestResolver_NonPositiveTTLDefaultsTo60s(t *testing.T) {
	r := NewResolver(0, func(ctx context.Context, key string) (any, error) { return nil, nil })
	assert.Equal(t, 60*time.Second, r.ttl)
}

func TestResolver_InvalidateForcesReload(t *testing.T) {
	calls := 0
	r := NewResolver(time.Hour, countingLoader(&calls, "v1"))

	_, err := r.Get(context.Background(), "k")
	require.NoError(t, err)
	r.Invalidate("k")
	_, err = r.Get(context.Background(), "k")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestResolver_InvalidateAllClearsEverything(t *testing.T) {
	calls := 0
	r := NewResolver(time.Hour, countingLoader(&calls, "v1"))

	_, _ = r.Get(context.Background(), "a")
	_, _ = r.Get(context.Background(), "b")
	assert.Equal(t, 2, calls)

	r.InvalidateAll()

	_, _ = r.Get(context.Background(), "a")
	_, _ = r.Get(context.Background(), "b")
	assert.Equal(t, 4, calls)
}

func TestResolver_KeysIndependentPerCacheEntry(t *testing.T) {
	calls := 0
	r := NewResolver(time.Hour, countingLoader(&calls, "shared"))

	_, _ = r.Get(context.Background(), "a")
	_, _ = r.Get(context.Background(), "b")
	_, _ = r.Get(context.Background(), "a")

	assert.Equal(t, 2, calls, "distinct keys cache independently")
}
