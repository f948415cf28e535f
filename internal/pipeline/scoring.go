package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"loginsight/internal/model"
	"loginsight/internal/store"
)

// ScoringLoop implements spec §4.E: for one system, select unscored events,
// filter out suppressed/skip-listed ones, and score the remainder through
// the LLM Adapter, batched per message template.
type ScoringLoop struct {
	deps Deps
}

// NewScoringLoop builds a ScoringLoop over deps.
func NewScoringLoop(deps Deps) *ScoringLoop {
	return &ScoringLoop{deps: deps}
}

// Run scores up to scoring_limit_per_run unscored events for system.
func (s *ScoringLoop) Run(ctx context.Context, system model.MonitoredSystem) error {
	es, err := s.deps.Backend.For(system)
	if err != nil {
		return fmt.Errorf("scoring loop: %w", err)
	}

	criteria, err := s.deps.Central.ListCriteria(ctx)
	if err != nil {
		return fmt.Errorf("scoring loop: list criteria: %w", err)
	}
	criterionID := make(map[string]string, len(criteria))
	for _, c := range criteria {
		criterionID[c.Slug] = c.ID
	}

	limit := s.deps.Pipeline.ScoringLimitPerRun
	if limit <= 0 {
		limit = 500
	}
	events, err := es.UnscoredEvents(ctx, system.ID, limit)
	if err != nil {
		return fmt.Errorf("scoring loop: unscored events: %w", err)
	}
	if system.EventSource == model.EventSourceExternal && len(events) > 0 {
		events, err = s.dropAlreadyScored(ctx, events)
		if err != nil {
			return fmt.Errorf("scoring loop: %w", err)
		}
	}
	if len(events) > limit {
		events = events[:limit]
	}
	if len(events) == 0 {
		return nil
	}

	var suppressed, severityFiltered, toScore []model.Event
	skipSet := make(map[string]struct{}, len(s.deps.Pipeline.SeveritySkipList))
	for _, sev := range s.deps.Pipeline.SeveritySkipList {
		skipSet[sev] = struct{}{}
	}
	for _, e := range events {
		if matched, _ := s.deps.Suppressor.Matches(e); matched {
			suppressed = append(suppressed, e)
			continue
		}
		if s.deps.Pipeline.SeverityFilterEnabled {
			if _, skip := skipSet[e.Severity]; skip {
				severityFiltered = append(severityFiltered, e)
				continue
			}
		}
		toScore = append(toScore, e)
	}

	if len(suppressed) > 0 {
		if err := s.writeZeroScores(ctx, suppressed, criterionID, "suppressed"); err != nil {
			return fmt.Errorf("scoring loop: suppressed events: %w", err)
		}
		ids := eventIDs(suppressed)
		if suppressor, ok := es.(interface {
			SuppressEvents(context.Context, []string) error
		}); ok {
			if err := suppressor.SuppressEvents(ctx, ids); err != nil {
				return fmt.Errorf("scoring loop: mark suppressed: %w", err)
			}
		}
	}
	if len(severityFiltered) > 0 {
		for _, e := range severityFiltered {
			if err := s.writeZeroScores(ctx, []model.Event{e}, criterionID, e.Severity); err != nil {
				return fmt.Errorf("scoring loop: severity-filtered events: %w", err)
			}
		}
	}
	if len(toScore) == 0 {
		return nil
	}

	groups, err := s.resolveTemplates(ctx, es, toScore)
	if err != nil {
		return fmt.Errorf("scoring loop: resolve templates: %w", err)
	}

	batchSize := s.deps.Pipeline.ScoringBatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	for _, g := range groups {
		if err := s.scoreGroup(ctx, system, g, criteria, criterionID, batchSize); err != nil {
			return fmt.Errorf("scoring loop: template %s: %w", g.template.ID, err)
		}
	}
	return nil
}

// dropAlreadyScored post-filters ClickHouse-backed candidates against the
// centrally-stored event_scores table (see store.ClickHouse.UnscoredEvents).
func (s *ScoringLoop) dropAlreadyScored(ctx context.Context, events []model.Event) ([]model.Event, error) {
	ids := eventIDs(events)
	scored, err := s.deps.Central.ScoredEventIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("scored event ids: %w", err)
	}
	out := events[:0:0]
	for _, e := range events {
		if !scored[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// templateGroup is every unscored event resolving to the same MessageTemplate.
type templateGroup struct {
	template model.MessageTemplate
	events   []model.Event
}

// resolveTemplates canonicalizes every event lacking a template_id, stamping
// the resolved ID back via SetEventTemplate, then groups all events
// (pre-existing or freshly resolved template) by template ID.
func (s *ScoringLoop) resolveTemplates(ctx context.Context, es store.EventStore, events []model.Event) ([]templateGroup, error) {
	byTemplate := map[string]*templateGroup{}
	var order []string

	for i, e := range events {
		if e.TemplateID == "" {
			t, err := s.deps.Templates.Resolve(ctx, e)
			if err != nil {
				return nil, fmt.Errorf("resolve template for event %s: %w", e.ID, err)
			}
			events[i].TemplateID = t.ID
			e = events[i]
			if err := es.SetEventTemplate(ctx, []string{e.ID}, t.ID); err != nil {
				return nil, fmt.Errorf("set event template: %w", err)
			}
			g, ok := byTemplate[t.ID]
			if !ok {
				g = &templateGroup{template: t}
				byTemplate[t.ID] = g
				order = append(order, t.ID)
			}
			g.events = append(g.events, e)
			continue
		}
		g, ok := byTemplate[e.TemplateID]
		if !ok {
			t, err := s.deps.Templates.Resolve(ctx, e)
			if err != nil {
				return nil, fmt.Errorf("load template %s: %w", e.TemplateID, err)
			}
			g = &templateGroup{template: t}
			byTemplate[e.TemplateID] = g
			order = append(order, e.TemplateID)
		}
		g.events = append(g.events, e)
	}

	out := make([]templateGroup, 0, len(order))
	for _, id := range order {
		out = append(out, *byTemplate[id])
	}
	return out, nil
}

// scoreGroup scores every event in g, using g.template's cached vector if
// fresh, else calling the LLM Adapter in chunks of batchSize.
func (s *ScoringLoop) scoreGroup(ctx context.Context, system model.MonitoredSystem, g templateGroup, criteria []model.Criterion, criterionID map[string]string, batchSize int) error {
	if cached, ok := s.deps.Templates.CachedScores(ctx, g.template); ok {
		scores := make([]model.EventScore, 0, len(g.events)*len(criteria))
		for _, e := range g.events {
			scores = append(scores, eventScoresFromVector(e.ID, cached, criterionID, "")...)
		}
		return s.deps.Central.PutEventScores(ctx, scores)
	}

	// Low-interest templates (spec §4.B optimization O1) have already proven,
	// over enough scorings, that they never cross the noteworthy threshold:
	// skip the LLM call entirely and record a zero vector instead.
	if g.template.LowInterest {
		return s.writeZeroScores(ctx, g.events, criterionID, "low_interest")
	}

	provider, choice, err := s.deps.Providers.Resolve(ctx, "scoring")
	if err != nil {
		return fmt.Errorf("resolve scoring provider: %w", err)
	}

	for start := 0; start < len(g.events); start += batchSize {
		end := start + batchSize
		if end > len(g.events) {
			end = len(g.events)
		}
		chunk := g.events[start:end]
		redacted := s.deps.Privacy.RedactBatch(chunk)

		vectors, usage, err := provider.ScoreBatch(ctx, choice.Model, redacted, criteria)
		if err != nil {
			log.Error().Err(err).Str("system_id", system.ID).Str("template_id", g.template.ID).Msg("pipeline_score_batch_error")
			return fmt.Errorf("score batch: %w", err)
		}

		byEvent := make(map[string]int, len(vectors))
		for i, v := range vectors {
			byEvent[v.EventID] = i
		}
		var scores []model.EventScore
		var repScores map[string]float64
		for _, e := range chunk {
			idx, ok := byEvent[e.ID]
			if !ok {
				continue
			}
			v := vectors[idx]
			if repScores == nil {
				repScores = v.Scores
			}
			scores = append(scores, eventScoresFromVector(e.ID, v.Scores, criterionID, v.SeverityLabel, v.ReasonCodes...)...)
		}
		if err := s.deps.Central.PutEventScores(ctx, scores); err != nil {
			return fmt.Errorf("put event scores: %w", err)
		}
		if repScores != nil {
			if err := s.deps.Templates.PutScores(ctx, g.template, repScores); err != nil {
				return fmt.Errorf("put template scores: %w", err)
			}
		}

		usage.RequestCount = 1
		if err := s.deps.Central.InsertLlmUsage(ctx, model.LlmUsage{
			SystemID:     system.ID,
			RunType:      "scoring",
			Model:        usage.Model,
			TokenInput:   usage.TokenInput,
			TokenOutput:  usage.TokenOutput,
			RequestCount: usage.RequestCount,
			EventCount:   len(chunk),
			CostEstimate: usage.CostEstimate,
		}); err != nil {
			log.Error().Err(err).Str("system_id", system.ID).Msg("pipeline_llm_usage_write_error")
		}
	}
	return nil
}

// writeZeroScores assigns score 0 across every criterion to events without an
// LLM call (suppressed or severity-filtered), per spec §4.E step 3.
func (s *ScoringLoop) writeZeroScores(ctx context.Context, events []model.Event, criterionID map[string]string, severityLabel string) error {
	var scores []model.EventScore
	for _, e := range events {
		for slug, cid := range criterionID {
			_ = slug
			scores = append(scores, model.EventScore{
				EventID:       e.ID,
				CriterionID:   cid,
				Score:         0,
				ScoreType:     model.ScoreTypeEvent,
				SeverityLabel: severityLabel,
			})
		}
	}
	return s.deps.Central.PutEventScores(ctx, scores)
}

func eventScoresFromVector(eventID string, scores map[string]float64, criterionID map[string]string, severityLabel string, reasonCodes ...string) []model.EventScore {
	out := make([]model.EventScore, 0, len(criterionID))
	for slug, cid := range criterionID {
		out = append(out, model.EventScore{
			EventID:       eventID,
			CriterionID:   cid,
			Score:         scores[slug],
			ScoreType:     model.ScoreTypeEvent,
			SeverityLabel: severityLabel,
			ReasonCodes:   reasonCodes,
		})
	}
	return out
}

func eventIDs(events []model.Event) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}
