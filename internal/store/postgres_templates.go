package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"loginsight/internal/model"
)

// UpsertTemplate inserts or updates a MessageTemplate keyed on
// (system_id, fingerprint), returning the resolved row (existing or new).
func (p *Postgres) UpsertTemplate(ctx context.Context, systemID, fingerprint, pattern string) (model.MessageTemplate, error) {
	id := uuid.NewString()
	row := p.pool.QueryRow(ctx, `
		INSERT INTO message_templates (id, system_id, fingerprint, pattern)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (system_id, fingerprint) DO UPDATE SET pattern = message_templates.pattern
		RETURNING id, system_id, fingerprint, pattern, cached_scores, last_scored_at, avg_max_score, scoring_count, low_interest`,
		id, systemID, fingerprint, pattern)
	return scanTemplate(row)
}

// GetTemplate fetches a MessageTemplate by ID.
func (p *Postgres) GetTemplate(ctx context.Context, id string) (model.MessageTemplate, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, system_id, fingerprint, pattern, cached_scores, last_scored_at, avg_max_score, scoring_count, low_interest
		FROM message_templates WHERE id = $1`, id)
	return scanTemplate(row)
}

// UpdateTemplateScores persists a fresh score vector and rolling stats after
// an LLM scoreBatch call resolves this template's representative event.
func (p *Postgres) UpdateTemplateScores(ctx context.Context, templateID string, scores map[string]float64, avgMaxScore float64) error {
	raw, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal cached scores: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		UPDATE message_templates
		SET cached_scores = $2, last_scored_at = now(), avg_max_score = $3,
			scoring_count = scoring_count + 1
		WHERE id = $1`, templateID, raw, avgMaxScore)
	if err != nil {
		return fmt.Errorf("update template scores: %w", err)
	}
	return nil
}

// MarkLowInterest flags a template as low-interest once it has accumulated
// enough consistently-low-scoring occurrences (spec's low_score_threshold /
// low_score_min_scorings knobs), so the scoring loop can skip re-scoring it.
func (p *Postgres) MarkLowInterest(ctx context.Context, templateID string, lowInterest bool) error {
	_, err := p.pool.Exec(ctx, `UPDATE message_templates SET low_interest = $2 WHERE id = $1`, templateID, lowInterest)
	return err
}

// ResetTemplateCache zeros cached_scores/last_scored_at for every template of
// systemID (spec §4.B: "cache flush zeros last_scored_at and cached_scores
// for all templates"), returning their fingerprints so the caller can also
// evict the Redis front cache.
func (p *Postgres) ResetTemplateCache(ctx context.Context, systemID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		UPDATE message_templates SET cached_scores = NULL, last_scored_at = NULL
		WHERE system_id = $1
		RETURNING fingerprint`, systemID)
	if err != nil {
		return nil, fmt.Errorf("reset template cache: %w", err)
	}
	defer rows.Close()
	var fingerprints []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan reset fingerprint: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}
	return fingerprints, rows.Err()
}

// LowInterestTemplateIDs returns, of templateIDs, the subset flagged
// low_interest, for the meta-analysis prompt's O2 exclusion (spec §4.B).
func (p *Postgres) LowInterestTemplateIDs(ctx context.Context, templateIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(templateIDs))
	if len(templateIDs) == 0 {
		return out, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id FROM message_templates WHERE id = ANY($1) AND low_interest`, templateIDs)
	if err != nil {
		return nil, fmt.Errorf("low interest template ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan low interest template id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func scanTemplate(row pgx.Row) (model.MessageTemplate, error) {
	var t model.MessageTemplate
	var cachedScores []byte
	if err := row.Scan(&t.ID, &t.SystemID, &t.Fingerprint, &t.Pattern, &cachedScores,
		&t.LastScoredAt, &t.AvgMaxScore, &t.ScoringCount, &t.LowInterest); err != nil {
		return model.MessageTemplate{}, fmt.Errorf("scan template: %w", err)
	}
	if len(cachedScores) > 0 {
		_ = json.Unmarshal(cachedScores, &t.CachedScores)
	}
	return t, nil
}
