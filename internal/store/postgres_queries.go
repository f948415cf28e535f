package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"loginsight/internal/model"
)

// GroupedScore is one row of the HTTP API's grouped event-score view: all
// events resolving to the same message template (or a singleton event with no
// template) collapsed into one entry, carrying the worst score for
// criterionID among them.
type GroupedScore struct {
	GroupKey        string    `json:"group_key"`
	Message         string    `json:"message"`
	OccurrenceCount int       `json:"occurrence_count"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	Hosts           []string  `json:"hosts"`
	SourceIPs       []string  `json:"source_ips"`
	Program         string    `json:"program"`
	Severity        string    `json:"severity"`
	CriterionSlug   string    `json:"criterion_slug"`
	Score           float64   `json:"score"`
	SeverityLabel   string    `json:"severity_label"`
	ReasonCodes     []string  `json:"reason_codes"`
	Acknowledged    bool      `json:"acknowledged"`
}

// GroupedEventScores implements GET .../event-scores/grouped: events sharing
// a template_id (or a singleton event with none) are collapsed to one row
// keyed by that template id (or the event's own id), scored by the worst
// event-type score recorded for criterionID among the group's members.
func (p *Postgres) GroupedEventScores(ctx context.Context, systemID, criterionID string, minScore float64, showAcknowledged bool, limit int) ([]GroupedScore, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := p.pool.Query(ctx, `
		SELECT
			COALESCE(e.template_id::text, e.id::text) AS group_key,
			(array_agg(e.message ORDER BY e.ts DESC))[1] AS message,
			count(*) AS occurrence_count,
			min(e.ts) AS first_seen,
			max(e.ts) AS last_seen,
			array_agg(DISTINCT e.host) FILTER (WHERE e.host <> '') AS hosts,
			array_agg(DISTINCT e.source_ip) FILTER (WHERE e.source_ip <> '') AS source_ips,
			(array_agg(e.program ORDER BY e.ts DESC))[1] AS program,
			(array_agg(e.severity ORDER BY e.ts DESC))[1] AS severity,
			max(es.score) AS score,
			(array_agg(es.severity_label ORDER BY es.score DESC))[1] AS severity_label,
			bool_or(e.acknowledged_at IS NOT NULL) AS acknowledged
		FROM events e
		JOIN event_scores es ON es.event_id = e.id AND es.score_type = 'event' AND es.criterion_id = $2
		WHERE e.system_id = $1
		GROUP BY group_key
		HAVING max(es.score) >= $3 AND ($4 OR NOT bool_or(e.acknowledged_at IS NOT NULL))
		ORDER BY score DESC
		LIMIT $5`, systemID, criterionID, minScore, showAcknowledged, limit)
	if err != nil {
		return nil, fmt.Errorf("grouped event scores: %w", err)
	}
	defer rows.Close()

	var out []GroupedScore
	for rows.Next() {
		var g GroupedScore
		if err := rows.Scan(&g.GroupKey, &g.Message, &g.OccurrenceCount, &g.FirstSeen, &g.LastSeen,
			&g.Hosts, &g.SourceIPs, &g.Program, &g.Severity, &g.Score, &g.SeverityLabel, &g.Acknowledged); err != nil {
			return nil, fmt.Errorf("scan grouped event score: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GroupEvents returns the individual events backing one grouped row: either
// every event sharing template_id = groupKey, or (when groupKey matches no
// template) the single event whose id equals groupKey.
func (p *Postgres) GroupEvents(ctx context.Context, systemID, groupKey string, limit int) ([]model.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, system_id, ts, message, host, program, severity, service, facility,
			source_ip, trace_id, span_id, external_id, template_id, acknowledged_at, suppressed, raw
		FROM events
		WHERE system_id = $1 AND (template_id::text = $2 OR id::text = $2)
		ORDER BY ts DESC
		LIMIT $3`, systemID, groupKey, limit)
	if err != nil {
		return nil, fmt.Errorf("group events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// SystemRollingScore is one system's highest effective score per criterion
// within a [from,to) range, for GET /scores/systems.
type SystemRollingScore struct {
	SystemID      string  `json:"system_id"`
	CriterionSlug string  `json:"criterion_slug"`
	MaxEffective  float64 `json:"max_effective_value"`
}

// RollingMaxEffectiveScores returns, per (system, criterion), the highest
// EffectiveValue recorded for any window ending in [from,to).
func (p *Postgres) RollingMaxEffectiveScores(ctx context.Context, from, to time.Time) ([]SystemRollingScore, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT es.system_id, c.slug, max(es.effective_value)
		FROM effective_scores es
		JOIN windows w ON w.id = es.window_id
		JOIN criteria c ON c.id = es.criterion_id
		WHERE w.to_ts >= $1 AND w.to_ts < $2
		GROUP BY es.system_id, c.slug`, from, to)
	if err != nil {
		return nil, fmt.Errorf("rolling max effective scores: %w", err)
	}
	defer rows.Close()
	var out []SystemRollingScore
	for rows.Next() {
		var s SystemRollingScore
		if err := rows.Scan(&s.SystemID, &s.CriterionSlug, &s.MaxEffective); err != nil {
			return nil, fmt.Errorf("scan rolling max effective score: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListFindings returns findings for systemID, optionally filtered by status
// ("" = all), newest-first, capped to limit.
func (p *Postgres) ListFindings(ctx context.Context, systemID, status string, limit int) ([]model.Finding, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var rows pgx.Rows
	var err error
	if status == "" {
		rows, err = p.pool.Query(ctx, `
			SELECT id, system_id, fingerprint, text, criterion_slug, severity, original_severity, status,
				occurrence_count, consecutive_misses, first_seen_at, last_seen_at, acknowledged_at,
				resolved_at, key_event_ids
			FROM findings WHERE system_id = $1 ORDER BY last_seen_at DESC LIMIT $2`, systemID, limit)
	} else {
		rows, err = p.pool.Query(ctx, `
			SELECT id, system_id, fingerprint, text, criterion_slug, severity, original_severity, status,
				occurrence_count, consecutive_misses, first_seen_at, last_seen_at, acknowledged_at,
				resolved_at, key_event_ids
			FROM findings WHERE system_id = $1 AND status = $2 ORDER BY last_seen_at DESC LIMIT $3`, systemID, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

// BulkDeleteBySelector deletes events (and their scores) matching the given
// selector, then removes any window left with no remaining event in its
// range, returning (events deleted, windows cleaned). At least one of
// systemID/from/to must be set by the caller (internal/httpapi rejects an
// empty selector before calling this).
func (p *Postgres) BulkDeleteBySelector(ctx context.Context, systemID string, from, to time.Time) (int, int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin bulk delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	where := "WHERE true"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if systemID != "" {
		where += " AND system_id = " + arg(systemID)
	}
	if !from.IsZero() {
		where += " AND ts >= " + arg(from)
	}
	if !to.IsZero() {
		where += " AND ts < " + arg(to)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM event_scores WHERE event_id IN (SELECT id FROM events "+where+")", args...); err != nil {
		return 0, 0, fmt.Errorf("bulk delete scores: %w", err)
	}
	tag, err := tx.Exec(ctx, "DELETE FROM events "+where, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("bulk delete events: %w", err)
	}
	deleted := int(tag.RowsAffected())

	windowWhere := "WHERE true"
	wargs := []any{}
	warg := func(v any) string {
		wargs = append(wargs, v)
		return fmt.Sprintf("$%d", len(wargs))
	}
	if systemID != "" {
		windowWhere += " AND system_id = " + warg(systemID)
	}
	if !from.IsZero() {
		windowWhere += " AND to_ts > " + warg(from)
	}
	if !to.IsZero() {
		windowWhere += " AND from_ts < " + warg(to)
	}
	wtag, err := tx.Exec(ctx, `
		DELETE FROM windows w `+windowWhere+` AND NOT EXISTS (
			SELECT 1 FROM events e WHERE e.system_id = w.system_id AND e.ts >= w.from_ts AND e.ts < w.to_ts
		)`, wargs...)
	if err != nil {
		return deleted, 0, fmt.Errorf("bulk delete clean windows: %w", err)
	}
	cleaned := int(wtag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit bulk delete: %w", err)
	}
	return deleted, cleaned, nil
}
