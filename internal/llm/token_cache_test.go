package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenCache_SetThenGetHits(t *testing.T) {
	c := NewTokenCache(TokenCacheConfig{MaxSize: 10, TTL: time.Hour})
	c.Set("disk usage high", 4)

	n, ok := c.Get("disk usage high")
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(0), misses)
}

func TestTokenCache_GetMissOnUnknownKey(t *testing.T) {
	c := NewTokenCache(TokenCacheConfig{MaxSize: 10, TTL: time.Hour})
	_, ok := c.Get("never set")
	assert.False(t, ok)

	_, misses := c.Stats()
	assert.Equal(t, int64(1), misses)
}

func TestTokenCache_ExpiredEntryIsTreatedAsMiss(t *testing.T) {
	c := NewTokenCache(TokenCacheConfig{MaxSize: 10, TTL: time.Millisecond})
	c.Set("short lived", 3)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("short lived")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size(), "an expired entry is evicted on lookup")
}

func TestTokenCache_EvictsOldestAtCapacity(t *testing.T) {
	c := NewTokenCache(TokenCacheConfig{MaxSize: 2, TTL: time.Hour})
	c.Set("a", 1)
	time.Sleep(time.Millisecond)
	c.Set("b", 2)
	time.Sleep(time.Millisecond)
	c.Set("c", 3) // should evict "a", the least recently accessed

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTokenCache_ClearRemovesAllEntries(t *testing.T) {
	c := NewTokenCache(TokenCacheConfig{MaxSize: 10, TTL: time.Hour})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestNewTokenCache_DefaultsAppliedForNonPositiveConfig(t *testing.T) {
	c := NewTokenCache(TokenCacheConfig{})
	assert.Equal(t, DefaultTokenCacheSize, c.maxSize)
	assert.Equal(t, DefaultTokenCacheTTL, c.ttl)
}
