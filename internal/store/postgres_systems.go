package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"loginsight/internal/model"
)

// ListActiveSystems returns every MonitoredSystem with active = true.
func (p *Postgres) ListActiveSystems(ctx context.Context) ([]model.MonitoredSystem, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, event_source, retention_days, active, coordinates
		FROM monitored_systems WHERE active = true ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list active systems: %w", err)
	}
	defer rows.Close()
	var out []model.MonitoredSystem
	for rows.Next() {
		var s model.MonitoredSystem
		if err := rows.Scan(&s.ID, &s.Name, &s.EventSource, &s.RetentionDays, &s.Active, &s.Coordinates); err != nil {
			return nil, fmt.Errorf("scan monitored system: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSystem fetches a MonitoredSystem by ID.
func (p *Postgres) GetSystem(ctx context.Context, id string) (model.MonitoredSystem, error) {
	var s model.MonitoredSystem
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, event_source, retention_days, active, coordinates
		FROM monitored_systems WHERE id = $1`, id)
	if err := row.Scan(&s.ID, &s.Name, &s.EventSource, &s.RetentionDays, &s.Active, &s.Coordinates); err != nil {
		return model.MonitoredSystem{}, fmt.Errorf("get system %s: %w", id, err)
	}
	return s, nil
}

// ListNormalBehaviorTemplates returns every enabled suppression template for
// systemID (or all systems if systemID is empty), for loading the
// in-process regex index at startup and on cache invalidation.
func (p *Postgres) ListNormalBehaviorTemplates(ctx context.Context, systemID string) ([]model.NormalBehaviorTemplate, error) {
	const baseQuery = `
		SELECT id, system_id, pattern_regex, host_pattern, program_pattern, enabled, created_at
		FROM normal_behavior_templates WHERE enabled = true`

	var rows pgx.Rows
	var err error
	if systemID == "" {
		rows, err = p.pool.Query(ctx, baseQuery)
	} else {
		rows, err = p.pool.Query(ctx, baseQuery+" AND system_id = $1", systemID)
	}
	if err != nil {
		return nil, fmt.Errorf("list normal behavior templates: %w", err)
	}
	defer rows.Close()
	var out []model.NormalBehaviorTemplate
	for rows.Next() {
		var t model.NormalBehaviorTemplate
		if err := rows.Scan(&t.ID, &t.SystemID, &t.PatternRegex, &t.HostPattern, &t.ProgramPattern, &t.Enabled, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan normal behavior template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertNormalBehaviorTemplate persists a new suppression template.
func (p *Postgres) InsertNormalBehaviorTemplate(ctx context.Context, t model.NormalBehaviorTemplate) (model.NormalBehaviorTemplate, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO normal_behavior_templates (system_id, pattern_regex, host_pattern, program_pattern, enabled)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`, t.SystemID, t.PatternRegex, t.HostPattern, t.ProgramPattern, t.Enabled)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return model.NormalBehaviorTemplate{}, fmt.Errorf("insert normal behavior template: %w", err)
	}
	return t, nil
}

// SetNormalBehaviorTemplateEnabled toggles a suppression template.
func (p *Postgres) SetNormalBehaviorTemplateEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := p.pool.Exec(ctx, `UPDATE normal_behavior_templates SET enabled = $2 WHERE id = $1`, id, enabled)
	return err
}

// DeleteNormalBehaviorTemplate removes a suppression template.
func (p *Postgres) DeleteNormalBehaviorTemplate(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM normal_behavior_templates WHERE id = $1`, id)
	return err
}

// TemplateCandidates lists systemID's message_templates a page at a time
// (limit/offset, ordered by id) as candidates for retroactive bulk re-tagging
// when a new suppression template is created. The actual regex matching
// happens in internal/suppressor; this only lists the rows.
func (p *Postgres) TemplateCandidates(ctx context.Context, systemID string, limit, offset int) ([]model.MessageTemplate, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, system_id, fingerprint, pattern, cached_scores, last_scored_at, avg_max_score, scoring_count, low_interest
		FROM message_templates WHERE system_id = $1 ORDER BY id LIMIT $2 OFFSET $3`, systemID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("template candidates: %w", err)
	}
	defer rows.Close()
	var out []model.MessageTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
