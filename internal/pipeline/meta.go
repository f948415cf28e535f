package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"loginsight/internal/model"
)

// MetaAnalyzer implements spec §4.F: per system per tick, open at most one new
// Window, select its events, and call the LLM Adapter's metaAnalyze (or
// synthesize a neutral result when every candidate event scored 0).
type MetaAnalyzer struct {
	deps Deps
	now  func() time.Time
}

// NewMetaAnalyzer builds a MetaAnalyzer over deps.
func NewMetaAnalyzer(deps Deps) *MetaAnalyzer {
	return &MetaAnalyzer{deps: deps, now: time.Now}
}

// Run opens and analyzes the next Window for system, if one is due.
func (m *MetaAnalyzer) Run(ctx context.Context, system model.MonitoredSystem) error {
	window, opened, err := m.openWindow(ctx, system)
	if err != nil {
		return fmt.Errorf("meta analyzer: %w", err)
	}
	if !opened {
		return nil
	}

	es, err := m.deps.Backend.For(system)
	if err != nil {
		return fmt.Errorf("meta analyzer: %w", err)
	}
	events, err := es.ListWindow(ctx, system.ID, window.FromTS, window.ToTS)
	if err != nil {
		return fmt.Errorf("meta analyzer: list window: %w", err)
	}

	selected, maxScores, err := m.selectEvents(ctx, events)
	if err != nil {
		return fmt.Errorf("meta analyzer: select events: %w", err)
	}

	var result model.MetaResult
	if m.deps.Pipeline.SkipZeroScoreMeta && allZero(selected, maxScores) {
		result = model.MetaResult{
			WindowID:   window.ID,
			Summary:    "no notable activity",
			MetaScores: map[string]float64{},
			CreatedAt:  window.CreatedAt,
		}
	} else {
		result, err = m.callMetaAnalyze(ctx, system, window, selected)
		if err != nil {
			return fmt.Errorf("meta analyzer: %w", err)
		}
	}

	if err := m.deps.Central.PutMetaScores(ctx, window.ID, result.MetaScores); err != nil {
		return fmt.Errorf("meta analyzer: put meta scores: %w", err)
	}
	if err := m.deps.Central.SaveWindowSummary(ctx, window.ID, result.Summary, result.RecommendedAction, result.KeyEventIDs, result.Findings); err != nil {
		return fmt.Errorf("meta analyzer: save window summary: %w", err)
	}

	if err := m.writeEffectiveScores(ctx, system, window, result); err != nil {
		return fmt.Errorf("meta analyzer: %w", err)
	}

	if m.deps.Findings != nil {
		if err := m.deps.Findings.Process(ctx, system, window, result); err != nil {
			log.Error().Err(err).Str("system_id", system.ID).Str("window_id", window.ID).Msg("pipeline_finding_engine_error")
		}
	}
	return nil
}

// openWindow creates the next Window for system, covering
// (last_window.to_ts, now) floored to the minute, or reports that none is due
// yet (window shorter than window_minutes).
func (m *MetaAnalyzer) openWindow(ctx context.Context, system model.MonitoredSystem) (model.Window, bool, error) {
	windowMinutes := m.deps.Pipeline.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = 5
	}
	now := m.now().UTC().Truncate(time.Minute)

	last, ok, err := m.deps.Central.LatestWindow(ctx, system.ID)
	if err != nil {
		return model.Window{}, false, fmt.Errorf("latest window: %w", err)
	}
	from := now.Add(-time.Duration(windowMinutes) * time.Minute)
	if ok {
		from = last.ToTS
	}
	if now.Sub(from) < time.Duration(windowMinutes)*time.Minute {
		return model.Window{}, false, nil
	}

	w, err := m.deps.Central.CreateWindow(ctx, system.ID, from, now)
	if err != nil {
		return model.Window{}, false, fmt.Errorf("create window: %w", err)
	}
	return w, true, nil
}

// selectEvents drops Suppressor-matched events, low-interest-template events,
// and, when configured, zero-max-score events, then ranks and caps to
// meta_max_events.
func (m *MetaAnalyzer) selectEvents(ctx context.Context, events []model.Event) ([]model.Event, map[string]float64, error) {
	ids := eventIDs(events)
	maxScores, err := m.deps.Central.EventMaxScores(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("event max scores: %w", err)
	}

	lowInterest, err := m.deps.Templates.LowInterestTemplateIDs(ctx, templateIDs(events))
	if err != nil {
		return nil, nil, fmt.Errorf("low interest template ids: %w", err)
	}

	kept := make([]model.Event, 0, len(events))
	for _, e := range events {
		if matched, _ := m.deps.Suppressor.Matches(e); matched {
			continue
		}
		if e.TemplateID != "" && lowInterest[e.TemplateID] {
			continue
		}
		if m.deps.Pipeline.FilterZeroScoreMetaEvents && maxScores[e.ID] == 0 {
			continue
		}
		kept = append(kept, e)
	}

	if m.deps.Pipeline.MetaPrioritizeHighScores {
		sort.SliceStable(kept, func(i, j int) bool {
			return maxScores[kept[i].ID] > maxScores[kept[j].ID]
		})
	}

	limit := m.deps.Pipeline.MetaMaxEvents
	if limit <= 0 {
		limit = 200
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept, maxScores, nil
}

// templateIDs returns the distinct, non-empty template IDs across events.
func templateIDs(events []model.Event) []string {
	seen := make(map[string]struct{}, len(events))
	var out []string
	for _, e := range events {
		if e.TemplateID == "" {
			continue
		}
		if _, ok := seen[e.TemplateID]; ok {
			continue
		}
		seen[e.TemplateID] = struct{}{}
		out = append(out, e.TemplateID)
	}
	return out
}

// allZero reports whether every event's max recorded score is 0, vacuously
// true when events is empty (e.g. filter_zero_score_meta_events already
// dropped them all).
func allZero(events []model.Event, maxScores map[string]float64) bool {
	for _, e := range events {
		if maxScores[e.ID] != 0 {
			return false
		}
	}
	return true
}

// callMetaAnalyze resolves the meta provider, redacts the payload, and
// invokes metaAnalyze with the last context_window_size prior MetaResults.
func (m *MetaAnalyzer) callMetaAnalyze(ctx context.Context, system model.MonitoredSystem, window model.Window, events []model.Event) (model.MetaResult, error) {
	contextSize := m.deps.Pipeline.ContextWindowSize
	if contextSize <= 0 {
		contextSize = 5
	}
	prior, err := m.deps.Central.RecentMetaResults(ctx, system.ID, contextSize)
	if err != nil {
		return model.MetaResult{}, fmt.Errorf("recent meta results: %w", err)
	}

	provider, choice, err := m.deps.Providers.Resolve(ctx, "meta")
	if err != nil {
		return model.MetaResult{}, fmt.Errorf("resolve meta provider: %w", err)
	}

	redacted := m.deps.Privacy.RedactBatch(events)
	result, usage, err := provider.MetaAnalyze(ctx, choice.Model, system.ID, redacted, prior, contextSize)
	if err != nil {
		log.Error().Err(err).Str("system_id", system.ID).Str("window_id", window.ID).Msg("pipeline_meta_analyze_error")
		return model.MetaResult{}, fmt.Errorf("meta analyze: %w", err)
	}
	result.WindowID = window.ID

	usage.RequestCount = 1
	if err := m.deps.Central.InsertLlmUsage(ctx, model.LlmUsage{
		SystemID:     system.ID,
		RunType:      "meta",
		Model:        usage.Model,
		TokenInput:   usage.TokenInput,
		TokenOutput:  usage.TokenOutput,
		RequestCount: usage.RequestCount,
		EventCount:   len(events),
		CostEstimate: usage.CostEstimate,
	}); err != nil {
		log.Error().Err(err).Str("system_id", system.ID).Msg("pipeline_llm_usage_write_error")
	}
	return result, nil
}

// writeEffectiveScores implements spec §4.H: one EffectiveScore per criterion,
// blending this window's meta score with the max non-suppressed event score
// observed in the same interval.
func (m *MetaAnalyzer) writeEffectiveScores(ctx context.Context, system model.MonitoredSystem, window model.Window, result model.MetaResult) error {
	maxEventScores, err := m.deps.Central.MaxEventScoresForWindow(ctx, system.ID, window.FromTS, window.ToTS)
	if err != nil {
		return fmt.Errorf("max event scores for window: %w", err)
	}

	w := m.deps.Pipeline.EffectiveScoreMetaWeight
	if w <= 0 {
		w = 0.7
	}

	criteria, err := m.deps.Central.ListCriteria(ctx)
	if err != nil {
		return fmt.Errorf("list criteria: %w", err)
	}

	scores := make([]model.EffectiveScore, 0, len(criteria))
	for _, c := range criteria {
		meta := result.MetaScores[c.Slug]
		maxEvent := maxEventScores[c.Slug]
		scores = append(scores, model.EffectiveScore{
			SystemID:       system.ID,
			WindowID:       window.ID,
			CriterionID:    c.ID,
			EffectiveValue: w*meta + (1-w)*maxEvent,
			MetaScore:      meta,
			MaxEventScore:  maxEvent,
		})
	}
	return m.deps.Central.PutEffectiveScores(ctx, scores)
}
