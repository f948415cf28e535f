package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"loginsight/internal/model"
)

// CreateWindow records a new analysis Window for systemID.
func (p *Postgres) CreateWindow(ctx context.Context, systemID string, from, to time.Time) (model.Window, error) {
	w := model.Window{ID: uuid.NewString(), SystemID: systemID, FromTS: from, ToTS: to}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO windows (id, system_id, from_ts, to_ts) VALUES ($1,$2,$3,$4)
		RETURNING created_at`, w.ID, w.SystemID, w.FromTS, w.ToTS)
	if err := row.Scan(&w.CreatedAt); err != nil {
		return model.Window{}, fmt.Errorf("create window: %w", err)
	}
	return w, nil
}

// LatestWindow returns the most recently created window for systemID, if any.
func (p *Postgres) LatestWindow(ctx context.Context, systemID string) (model.Window, bool, error) {
	var w model.Window
	row := p.pool.QueryRow(ctx, `
		SELECT id, system_id, from_ts, to_ts, created_at FROM windows
		WHERE system_id = $1 ORDER BY to_ts DESC LIMIT 1`, systemID)
	if err := row.Scan(&w.ID, &w.SystemID, &w.FromTS, &w.ToTS, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Window{}, false, nil
		}
		return model.Window{}, false, fmt.Errorf("latest window: %w", err)
	}
	return w, true, nil
}

// SaveWindowSummary persists metaAnalyze's prose/action/key-event/findings
// output alongside the per-criterion scores PutMetaScores already wrote. The
// emitted findings are stored verbatim (pre-reconciliation) so GET
// /windows/{id}/meta can return exactly what the LLM produced, independent of
// how the Finding Engine later dedups them into durable Finding rows.
func (p *Postgres) SaveWindowSummary(ctx context.Context, windowID, summary, recommendedAction string, keyEventIDs []string, findings []model.EmittedFinding) error {
	raw, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("marshal emitted findings: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		UPDATE windows SET summary = $2, recommended_action = $3, key_event_ids = $4, emitted_findings = $5 WHERE id = $1`,
		windowID, summary, recommendedAction, keyEventIDs, raw)
	if err != nil {
		return fmt.Errorf("save window summary: %w", err)
	}
	return nil
}

// WindowMeta returns the MetaResult for one window, including its per-event
// meta scores and the findings the LLM emitted for it, for GET
// /windows/{id}/meta.
func (p *Postgres) WindowMeta(ctx context.Context, windowID string) (model.MetaResult, bool, error) {
	var m model.MetaResult
	var findingsRaw []byte
	row := p.pool.QueryRow(ctx, `
		SELECT id, summary, recommended_action, key_event_ids, emitted_findings, created_at
		FROM windows WHERE id = $1`, windowID)
	if err := row.Scan(&m.WindowID, &m.Summary, &m.RecommendedAction, &m.KeyEventIDs, &findingsRaw, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MetaResult{}, false, nil
		}
		return model.MetaResult{}, false, fmt.Errorf("window meta: %w", err)
	}
	if len(findingsRaw) > 0 {
		if err := json.Unmarshal(findingsRaw, &m.Findings); err != nil {
			return model.MetaResult{}, false, fmt.Errorf("unmarshal emitted findings: %w", err)
		}
	}

	scoreRows, err := p.pool.Query(ctx, `
		SELECT c.slug, es.score FROM event_scores es
		JOIN criteria c ON c.id = es.criterion_id
		WHERE es.event_id = $1 AND es.score_type = 'meta'`, windowID)
	if err != nil {
		return model.MetaResult{}, false, fmt.Errorf("window meta scores: %w", err)
	}
	defer scoreRows.Close()
	m.MetaScores = map[string]float64{}
	for scoreRows.Next() {
		var slug string
		var score float64
		if err := scoreRows.Scan(&slug, &score); err != nil {
			return model.MetaResult{}, false, fmt.Errorf("scan window meta score: %w", err)
		}
		m.MetaScores[slug] = score
	}
	return m, true, scoreRows.Err()
}

// RecentMetaResults returns the last limit MetaResults for systemID, oldest
// first (most recent last), for metaAnalyze's context_window_size continuity
// input.
func (p *Postgres) RecentMetaResults(ctx context.Context, systemID string, limit int) ([]model.MetaResult, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, summary, recommended_action, key_event_ids, created_at
		FROM windows WHERE system_id = $1 ORDER BY to_ts DESC LIMIT $2`, systemID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent meta results: %w", err)
	}
	var out []model.MetaResult
	var ids []string
	for rows.Next() {
		var m model.MetaResult
		if err := rows.Scan(&m.WindowID, &m.Summary, &m.RecommendedAction, &m.KeyEventIDs, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan recent meta result: %w", err)
		}
		out = append(out, m)
		ids = append(ids, m.WindowID)
	}
	rerr := rows.Err()
	rows.Close()
	if rerr != nil {
		return nil, rerr
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if len(ids) == 0 {
		return out, nil
	}

	scoreRows, err := p.pool.Query(ctx, `
		SELECT es.event_id, c.slug, es.score FROM event_scores es
		JOIN criteria c ON c.id = es.criterion_id
		WHERE es.event_id = ANY($1) AND es.score_type = 'meta'`, ids)
	if err != nil {
		return nil, fmt.Errorf("recent meta scores: %w", err)
	}
	defer scoreRows.Close()
	byWindow := map[string]map[string]float64{}
	for scoreRows.Next() {
		var windowID, slug string
		var score float64
		if err := scoreRows.Scan(&windowID, &slug, &score); err != nil {
			return nil, fmt.Errorf("scan recent meta score: %w", err)
		}
		if byWindow[windowID] == nil {
			byWindow[windowID] = map[string]float64{}
		}
		byWindow[windowID][slug] = score
	}
	if err := scoreRows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].MetaScores = byWindow[out[i].WindowID]
	}
	return out, nil
}

// EventMaxScores returns, per event id, the maximum recorded event-type score
// across criteria (absent ids are simply omitted, callers treat missing as 0).
// Used by the Meta Analyzer to filter/rank window events before capping to
// meta_max_events.
func (p *Postgres) EventMaxScores(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT event_id, MAX(score) FROM event_scores
		WHERE event_id = ANY($1) AND score_type = 'event'
		GROUP BY event_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("event max scores: %w", err)
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var id string
		var max float64
		if err := rows.Scan(&id, &max); err != nil {
			return nil, fmt.Errorf("scan event max score: %w", err)
		}
		out[id] = max
	}
	return out, rows.Err()
}

// PutEventScores persists per-event per-criterion scores produced by scoreBatch.
func (p *Postgres) PutEventScores(ctx context.Context, scores []model.EventScore) error {
	if len(scores) == 0 {
		return nil
	}
	for _, s := range scores {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO event_scores (event_id, criterion_id, score, score_type, severity_label, reason_codes)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (event_id, criterion_id, score_type) DO UPDATE SET
				score = EXCLUDED.score, severity_label = EXCLUDED.severity_label, reason_codes = EXCLUDED.reason_codes`,
			s.EventID, s.CriterionID, s.Score, s.ScoreType, s.SeverityLabel, s.ReasonCodes)
		if err != nil {
			return fmt.Errorf("put event score: %w", err)
		}
	}
	return nil
}

// MaxEventScoresForWindow returns, per criterion slug, the maximum event
// score among non-suppressed events in [from,to) for systemID. Used by the
// Effective-Score Aggregator.
func (p *Postgres) MaxEventScoresForWindow(ctx context.Context, systemID string, from, to time.Time) (map[string]float64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT c.slug, MAX(es.score)
		FROM event_scores es
		JOIN events e ON e.id = es.event_id
		JOIN criteria c ON c.id = es.criterion_id
		WHERE e.system_id = $1 AND e.ts >= $2 AND e.ts < $3
			AND es.score_type = 'event' AND e.suppressed = false
		GROUP BY c.slug`, systemID, from, to)
	if err != nil {
		return nil, fmt.Errorf("max event scores: %w", err)
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var slug string
		var max float64
		if err := rows.Scan(&slug, &max); err != nil {
			return nil, fmt.Errorf("scan max event score: %w", err)
		}
		out[slug] = max
	}
	return out, rows.Err()
}

// ScoredEventIDs returns the subset of ids that already carry an event-type
// EventScore row. Used by the Scoring Loop to post-filter ClickHouse-backed
// candidates, since event_scores lives centrally in Postgres regardless of
// which EventStore backend owns the raw event row.
func (p *Postgres) ScoredEventIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT event_id FROM event_scores WHERE event_id = ANY($1) AND score_type = 'event'`, ids)
	if err != nil {
		return nil, fmt.Errorf("scored event ids: %w", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan scored event id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// PutMetaScores stores a Meta Analyzer result's per-window meta criterion
// scores as EventScore rows with ScoreType meta, keyed by a synthetic event_id equal to the window ID so the
// same event_scores table serves both event- and window-level scores.
func (p *Postgres) PutMetaScores(ctx context.Context, windowID string, metaScores map[string]float64) error {
	for slug, score := range metaScores {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO event_scores (event_id, criterion_id, score, score_type)
			SELECT $1, id, $2, 'meta' FROM criteria WHERE slug = $3
			ON CONFLICT (event_id, criterion_id, score_type) DO UPDATE SET score = EXCLUDED.score`,
			windowID, score, slug)
		if err != nil {
			return fmt.Errorf("put meta score: %w", err)
		}
	}
	return nil
}

// PutEffectiveScores writes the aggregated dashboard-visible scores for a window.
func (p *Postgres) PutEffectiveScores(ctx context.Context, scores []model.EffectiveScore) error {
	for _, s := range scores {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO effective_scores (system_id, window_id, criterion_id, effective_value, meta_score, max_event_score)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (window_id, criterion_id) DO UPDATE SET
				effective_value = EXCLUDED.effective_value, meta_score = EXCLUDED.meta_score,
				max_event_score = EXCLUDED.max_event_score`,
			s.SystemID, s.WindowID, s.CriterionID, s.EffectiveValue, s.MetaScore, s.MaxEventScore)
		if err != nil {
			return fmt.Errorf("put effective score: %w", err)
		}
	}
	return nil
}

// EffectiveScoresForSystem returns effective scores for systemID within the
// display window, newest windows first.
func (p *Postgres) EffectiveScoresForSystem(ctx context.Context, systemID string, since time.Time) ([]model.EffectiveScore, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT es.system_id, es.window_id, es.criterion_id, es.effective_value, es.meta_score, es.max_event_score, es.created_at
		FROM effective_scores es
		JOIN windows w ON w.id = es.window_id
		WHERE es.system_id = $1 AND w.to_ts >= $2
		ORDER BY w.to_ts DESC`, systemID, since)
	if err != nil {
		return nil, fmt.Errorf("effective scores for system: %w", err)
	}
	defer rows.Close()
	var out []model.EffectiveScore
	for rows.Next() {
		var s model.EffectiveScore
		if err := rows.Scan(&s.SystemID, &s.WindowID, &s.CriterionID, &s.EffectiveValue, &s.MetaScore, &s.MaxEventScore, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan effective score: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
