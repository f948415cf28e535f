package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens_ApproximatesFourCharsPerToken(t *testing.T) {
	n := EstimateTokens(nil, "12345678") // 8 chars
	assert.Equal(t, 2, n)
}

func TestEstimateTokens_RoundsUpPartialToken(t *testing.T) {
	n := EstimateTokens(nil, "123") // 3 chars -> rounds up to 1 token
	assert.Equal(t, 1, n)
}

func TestEstimateTokens_NilCacheStillWorks(t *testing.T) {
	n := EstimateTokens(nil, "disk usage high")
	assert.Greater(t, n, 0)
}

func TestEstimateTokens_UsesCacheOnSecondCall(t *testing.T) {
	c := NewTokenCache(TokenCacheConfig{})
	first := EstimateTokens(c, "a stable template pattern")
	hitsBefore, _ := c.Stats()

	second := EstimateTokens(c, "a stable template pattern")
	hitsAfter, _ := c.Stats()

	assert.Equal(t, first, second)
	assert.Greater(t, hitsAfter, hitsBefore)
}
