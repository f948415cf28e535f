package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTokenMetrics_AccumulatesAcrossCalls(t *testing.T) {
	resetTokenMetricsState()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	recordTokenMetrics("gpt-4o", 100, 50, now)
	recordTokenMetrics("gpt-4o", 10, 5, now.Add(time.Second))

	totals := TokenTotalsSnapshot()
	require.Len(t, totals, 1)
	assert.Equal(t, "gpt-4o", totals[0].Model)
	assert.Equal(t, int64(110), totals[0].Prompt)
	assert.Equal(t, int64(55), totals[0].Completion)
	assert.Equal(t, int64(165), totals[0].Total)
}

func TestRecordTokenMetrics_EmptyModelOrZeroUsageIsIgnored(t *testing.T) {
	resetTokenMetricsState()
	now := time.Now()

	recordTokenMetrics("", 10, 10, now)
	recordTokenMetrics("gpt-4o", 0, 0, now)

	assert.Empty(t, TokenTotalsSnapshot())
}

func TestTokenTotalsSnapshot_SortsByTotalDescThenModelName(t *testing.T) {
	resetTokenMetricsState()
	now := time.Now()

	recordTokenMetrics("small", 1, 0, now)
	recordTokenMetrics("big", 100, 0, now)
	recordTokenMetrics("also-small", 1, 0, now)

	totals := TokenTotalsSnapshot()
	require.Len(t, totals, 3)
	assert.Equal(t, "big", totals[0].Model)
	assert.Equal(t, "also-small", totals[1].Model, "ties on total break by model name ascending")
	assert.Equal(t, "small", totals[2].Model)
}

func TestTokenTotalsForWindow_ExcludesBucketsOlderThanWindow(t *testing.T) {
	resetTokenMetricsState()
	origNow := timeNow
	defer func() { timeNow = origNow }()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recordTokenMetrics("gpt-4o", 100, 0, base)
	recordTokenMetrics("gpt-4o", 20, 0, base.Add(2*time.Hour))

	timeNow = func() time.Time { return base.Add(2 * time.Hour) }
	totals, _ := TokenTotalsForWindow(time.Hour)

	require.Len(t, totals, 1)
	assert.Equal(t, int64(20), totals[0].Prompt, "the window must exclude the bucket from 2h ago")
}

func TestTokenTotalsForWindow_ZeroWindowReturnsAllTimeTotals(t *testing.T) {
	resetTokenMetricsState()
	now := time.Now()
	recordTokenMetrics("gpt-4o", 5, 5, now)

	totals, applied := TokenTotalsForWindow(0)
	require.Len(t, totals, 1)
	assert.Equal(t, time.Duration(0), applied)
}

func TestBucketKey_TruncatesToResolution(t *testing.T) {
	a := time.Date(2026, 1, 1, 12, 30, 15, 0, time.UTC)
	b := time.Date(2026, 1, 1, 12, 30, 45, 0, time.UTC)
	assert.Equal(t, bucketKey(a), bucketKey(b), "same minute must hash to the same bucket")

	c := time.Date(2026, 1, 1, 12, 31, 0, 0, time.UTC)
	assert.NotEqual(t, bucketKey(a), bucketKey(c))
}

func TestConfigureLogging_TogglesShouldLog(t *testing.T) {
	ConfigureLogging(true, 256)
	enabled, truncate := shouldLog()
	assert.True(t, enabled)
	assert.Equal(t, 256, truncate)

	ConfigureLogging(false, 0)
	enabled, _ = shouldLog()
	assert.False(t, enabled)
}
