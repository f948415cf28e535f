package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost_KnownModelUsesExactTablePrice(t *testing.T) {
	cost := EstimateCost("gpt-4o-mini", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.15+0.60, cost, 1e-9)
}

func TestEstimateCost_DatedSnapshotFallsBackToPrefixFamily(t *testing.T) {
	cost := EstimateCost("claude-3-7-sonnet-20250219", 1_000_000, 0)
	assert.InDelta(t, 3.00, cost, 1e-9)
}

func TestEstimateCost_UnknownModelUsesConservativeDefault(t *testing.T) {
	cost := EstimateCost("some-future-model-nobody-knows", 1_000_000, 1_000_000)
	assert.InDelta(t, defaultPrice.InputPerM+defaultPrice.OutputPerM, cost, 1e-9)
}

func TestEstimateCost_ZeroUsageIsZeroCost(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCost("gpt-4o", 0, 0))
}
