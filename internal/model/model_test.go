package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecaySeverity_StepsDownTheLadder(t *testing.T) {
	assert.Equal(t, "high", DecaySeverity("critical"))
	assert.Equal(t, "medium", DecaySeverity("high"))
	assert.Equal(t, "low", DecaySeverity("medium"))
	assert.Equal(t, "info", DecaySeverity("low"))
}

func TestDecaySeverity_FloorsAtInfo(t *testing.T) {
	assert.Equal(t, "info", DecaySeverity("info"))
}

func TestDecaySeverity_UnrecognizedValuePassesThrough(t *testing.T) {
	assert.Equal(t, "unknown", DecaySeverity("unknown"))
}

func TestCriterionSlugs_MatchesFixedCriteriaOrder(t *testing.T) {
	slugs := CriterionSlugs()
	assert.Len(t, slugs, len(FixedCriteria))
	for i, c := range FixedCriteria {
		assert.Equal(t, c.Slug, slugs[i])
	}
}
