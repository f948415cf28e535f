package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"loginsight/internal/model"
)

// defaultScoringSystemPrompt is the system prompt every provider sends with
// scoreBatch. app_config's prompts.scoring_system_prompt (PromptsConfig in
// internal/config) is not read by the providers.
const defaultScoringSystemPrompt = `You are a log-risk scoring engine. For each event, assign a 0..1 score for ` +
	`each listed criterion, an overall severity_label (critical|high|medium|low|info), and up to 3 short ` +
	`reason_codes. Respond with a JSON array only, one object per input event in the same order, each shaped ` +
	`{"event_id":"...","scores":{"<criterion_slug>":0.0},"severity_label":"...","reason_codes":["..."]}.`

// defaultMetaSystemPrompt is the system prompt every provider sends with
// metaAnalyze; app_config's prompts.meta_system_prompt is not read.
const defaultMetaSystemPrompt = `You are a log-incident meta-analyst. Given a window of events and prior ` +
	`window summaries for continuity, produce one JSON object: {"summary":"...","meta_scores":{"<slug>":0.0},` +
	`"findings":[{"text":"...","severity":"...","criterion_slug":"...","key_event_ids":["..."]}],` +
	`"recommended_action":"...","key_event_ids":["..."]}. Respond with that JSON object only.`

// DefaultScoringSystemPrompt returns the built-in scoreBatch system prompt,
// which the providers send on every call.
func DefaultScoringSystemPrompt() string { return defaultScoringSystemPrompt }

// DefaultMetaSystemPrompt returns the built-in metaAnalyze system prompt,
// which the providers send on every call.
func DefaultMetaSystemPrompt() string { return defaultMetaSystemPrompt }

// BuildScoringPrompt renders the user-turn payload for scoreBatch: the
// criteria list followed by one line per event.
func BuildScoringPrompt(events []model.Event, criteria []model.Criterion) string {
	var sb strings.Builder
	sb.WriteString("Criteria: ")
	slugs := make([]string, len(criteria))
	for i, c := range criteria {
		slugs[i] = c.Slug
	}
	sb.WriteString(strings.Join(slugs, ", "))
	sb.WriteString("\n\nEvents:\n")
	for _, e := range events {
		fmt.Fprintf(&sb, "- id=%s host=%s program=%s severity=%s message=%q\n",
			e.ID, e.Host, e.Program, e.Severity, e.Message)
	}
	return sb.String()
}

// BuildMetaPrompt renders the user-turn payload for metaAnalyze.
func BuildMetaPrompt(windowEvents []model.Event, priorSummaries []model.MetaResult, maxContext int) string {
	var sb strings.Builder
	if len(priorSummaries) > 0 {
		sb.WriteString("Prior window summaries (most recent last):\n")
		start := 0
		if len(priorSummaries) > maxContext && maxContext > 0 {
			start = len(priorSummaries) - maxContext
		}
		for _, s := range priorSummaries[start:] {
			fmt.Fprintf(&sb, "- %s\n", s.Summary)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Window events:\n")
	for _, e := range windowEvents {
		fmt.Fprintf(&sb, "- id=%s host=%s program=%s severity=%s message=%q\n",
			e.ID, e.Host, e.Program, e.Severity, e.Message)
	}
	return sb.String()
}

// ParseScoreResponse unmarshals the model's JSON array response and validates
// it preserves input order against eventIDs, per spec §4.D's "must preserve
// input order" requirement.
func ParseScoreResponse(raw string, eventIDs []string) ([]ScoreVector, error) {
	raw = extractJSON(raw, '[', ']')
	var vectors []ScoreVector
	if err := json.Unmarshal([]byte(raw), &vectors); err != nil {
		return nil, fmt.Errorf("parse score response: %w", err)
	}
	if len(vectors) != len(eventIDs) {
		return nil, fmt.Errorf("score response has %d entries, expected %d", len(vectors), len(eventIDs))
	}
	for i, id := range eventIDs {
		if vectors[i].EventID == "" {
			vectors[i].EventID = id
		} else if vectors[i].EventID != id {
			return nil, fmt.Errorf("score response entry %d is for event %s, expected %s", i, vectors[i].EventID, id)
		}
	}
	return vectors, nil
}

// ParseMetaResponse unmarshals the model's JSON object response for metaAnalyze.
func ParseMetaResponse(raw string, windowID string) (model.MetaResult, error) {
	raw = extractJSON(raw, '{', '}')
	var mr model.MetaResult
	if err := json.Unmarshal([]byte(raw), &mr); err != nil {
		return model.MetaResult{}, fmt.Errorf("parse meta response: %w", err)
	}
	mr.WindowID = windowID
	return mr, nil
}

// extractJSON trims any leading/trailing prose a model adds despite
// instructions, by slicing from the first open to the last matching close
// delimiter. Returns raw unchanged if no delimiter pair is found.
func extractJSON(raw string, open, close byte) string {
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, close)
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}
