// Package llm implements the LLM Adapter: a provider-agnostic two-call
// contract (scoreBatch, metaAnalyze) over Anthropic, OpenAI, and Gemini,
// fronted by a mandatory privacy filter and capped-retry transport handling,
// with every call's token usage persisted for cost accounting.
package llm

import (
	"context"

	"loginsight/internal/model"
)

// ScoreVector is one event's per-criterion score vector, returned in the same
// order scoreBatch was called with.
type ScoreVector struct {
	EventID       string             `json:"event_id"`
	Scores        map[string]float64 `json:"scores"` // criterion slug -> 0..1
	SeverityLabel string             `json:"severity_label"`
	ReasonCodes   []string           `json:"reason_codes,omitempty"`
}

// Usage captures one call's token accounting, independent of provider.
type Usage struct {
	Model        string
	TokenInput   int
	TokenOutput  int
	RequestCount int
	CostEstimate float64
}

// Provider is the LLM Adapter's contract (spec §4.D). Both methods batch
// multiple items into one request where the provider allows it, preserve
// input order in their result, and return the Usage incurred regardless of
// whether the caller chooses to persist it.
type Provider interface {
	// ScoreBatch returns one ScoreVector per input event, in the same order.
	ScoreBatch(ctx context.Context, model string, events []model.Event, criteria []model.Criterion) ([]ScoreVector, Usage, error)
	// MetaAnalyze summarizes a window's events against prior window summaries
	// for context continuity.
	MetaAnalyze(ctx context.Context, model string, systemID string, windowEvents []model.Event, priorSummaries []model.MetaResult, maxContext int) (model.MetaResult, Usage, error)
}
