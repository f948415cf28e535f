package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"loginsight/internal/config"
	"loginsight/internal/model"
)

func TestRecurrenceSeverity_EmitterValueWinsBeforeDecayThreshold(t *testing.T) {
	e := New(nil, config.PipelineConfig{
		SeverityDecayEnabled:          true,
		SeverityDecayAfterOccurrences: 3,
	})
	existing := model.Finding{Severity: "high", OccurrenceCount: 0}

	got := e.recurrenceSeverity(existing, "critical")
	assert.Equal(t, "critical", got)
}

func TestRecurrenceSeverity_DecaysAfterThresholdWhenEmitterAgrees(t *testing.T) {
	e := New(nil, config.PipelineConfig{
		SeverityDecayEnabled:          true,
		SeverityDecayAfterOccurrences: 3,
	})
	existing := model.Finding{Severity: "high", OccurrenceCount: 3}

	got := e.recurrenceSeverity(existing, "high")
	assert.Equal(t, "medium", got, "past the occurrence threshold, a steady-severity recurrence decays one level")
}

func TestRecurrenceSeverity_EmitterCanRaiseSeverityBackUp(t *testing.T) {
	e := New(nil, config.PipelineConfig{
		SeverityDecayEnabled:          true,
		SeverityDecayAfterOccurrences: 3,
	})
	existing := model.Finding{Severity: "low", OccurrenceCount: 5}

	got := e.recurrenceSeverity(existing, "critical")
	assert.Equal(t, "critical", got, "an emitter-reported worse severity must win over the decayed value")
}

func TestRecurrenceSeverity_DecayDisabledAlwaysUsesEmittedOrExisting(t *testing.T) {
	e := New(nil, config.PipelineConfig{SeverityDecayEnabled: false})
	existing := model.Finding{Severity: "high", OccurrenceCount: 10}

	assert.Equal(t, "critical", e.recurrenceSeverity(existing, "critical"))
	assert.Equal(t, "high", e.recurrenceSeverity(existing, ""), "an empty emitted severity falls back to the existing value")
}

func TestLookbackDays_DefaultsWhenNonPositive(t *testing.T) {
	assert.Equal(t, 14, lookbackDays(0))
	assert.Equal(t, 14, lookbackDays(-5))
	assert.Equal(t, 30, lookbackDays(30))
}
