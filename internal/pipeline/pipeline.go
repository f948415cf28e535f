// Package pipeline implements the Scoring Loop and Meta Analyzer: the
// recurring per-system work that turns raw events into per-criterion scores,
// and per-window score sets into meta-analysis summaries and findings.
//
// Both loops run per MonitoredSystem in isolation (spec: "no cross-system
// mutual exclusion beyond shared LLM rate limits"); the Scheduler in
// scheduler.go fans work out across systems up to max_parallel_systems.
package pipeline

import (
	"context"
	"time"

	"loginsight/internal/config"
	"loginsight/internal/llm"
	"loginsight/internal/model"
	"loginsight/internal/store"
)

// CentralStore is the subset of internal/store.Postgres the pipeline needs
// beyond the per-system EventStore: tables that live centrally in Postgres
// regardless of which backend holds a system's raw event rows.
type CentralStore interface {
	ListCriteria(ctx context.Context) ([]model.Criterion, error)
	ScoredEventIDs(ctx context.Context, ids []string) (map[string]bool, error)
	PutEventScores(ctx context.Context, scores []model.EventScore) error
	EventMaxScores(ctx context.Context, ids []string) (map[string]float64, error)
	MaxEventScoresForWindow(ctx context.Context, systemID string, from, to time.Time) (map[string]float64, error)
	CreateWindow(ctx context.Context, systemID string, from, to time.Time) (model.Window, error)
	LatestWindow(ctx context.Context, systemID string) (model.Window, bool, error)
	RecentMetaResults(ctx context.Context, systemID string, limit int) ([]model.MetaResult, error)
	PutMetaScores(ctx context.Context, windowID string, metaScores map[string]float64) error
	SaveWindowSummary(ctx context.Context, windowID, summary, recommendedAction string, keyEventIDs []string, findings []model.EmittedFinding) error
	PutEffectiveScores(ctx context.Context, scores []model.EffectiveScore) error
	InsertLlmUsage(ctx context.Context, u model.LlmUsage) error
}

// TemplateManager is the subset of internal/templates.Manager the Scoring
// Loop needs.
type TemplateManager interface {
	Resolve(ctx context.Context, event model.Event) (model.MessageTemplate, error)
	CachedScores(ctx context.Context, t model.MessageTemplate) (map[string]float64, bool)
	PutScores(ctx context.Context, t model.MessageTemplate, scores map[string]float64) error
	LowInterestTemplateIDs(ctx context.Context, templateIDs []string) (map[string]bool, error)
}

// SuppressionIndex is the subset of internal/suppressor.Index both loops use
// for the real-time (not-yet-persisted) suppression check.
type SuppressionIndex interface {
	Matches(event model.Event) (matched bool, templateWide bool)
}

// FindingSink receives a persisted MetaResult for finding-engine processing.
// internal/findings.Engine implements this; tests may stub it.
type FindingSink interface {
	Process(ctx context.Context, system model.MonitoredSystem, window model.Window, result model.MetaResult) error
}

// ProviderResolver selects the llm.Provider for a task ("scoring" | "meta"),
// honoring the operator's ai_config override over the process default.
type ProviderResolver interface {
	Resolve(ctx context.Context, task string) (llm.Provider, modelChoice, error)
}

// modelChoice names a provider/model pair already resolved against ai_config.
type modelChoice struct {
	Provider string
	Model    string
}

// Deps bundles everything both loops need, built once at startup in
// cmd/server and shared across every system's run.
type Deps struct {
	Backend    *store.BackendFactory
	Central    CentralStore
	Templates  TemplateManager
	Suppressor SuppressionIndex
	Privacy    *llm.PrivacyFilter
	Providers  ProviderResolver
	Findings   FindingSink // nil is valid: meta results are still persisted, just not reconciled into findings
	Pipeline   config.PipelineConfig
}
