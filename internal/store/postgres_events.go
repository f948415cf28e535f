package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loginsight/internal/model"
)

// Postgres is the primary Event Store backend, backing MonitoredSystems whose
// EventSource is "primary". The events table is range-partitioned monthly
// (events_yYYYYmMM); see internal/maintenance for partition lifecycle.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-opened pool. Use NewPostgresFromConfig to also create
// the pool from config.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

func (p *Postgres) Ingest(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range events {
		e := &events[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		raw, err := json.Marshal(e.Raw)
		if err != nil {
			return fmt.Errorf("marshal raw for event %s: %w", e.ID, err)
		}
		batch.Queue(`
			INSERT INTO events (id, system_id, ts, message, host, program, severity, service,
				facility, source_ip, trace_id, span_id, external_id, template_id, raw)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (id) DO NOTHING`,
			e.ID, e.SystemID, e.Timestamp, e.Message, e.Host, e.Program, e.Severity, e.Service,
			e.Facility, e.SourceIP, e.TraceID, e.SpanID, e.ExternalID, nullableString(e.TemplateID), raw,
		)
	}
	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("ingest event: %w", err)
		}
	}
	return nil
}

func (p *Postgres) ListWindow(ctx context.Context, systemID string, from, to time.Time) ([]model.Event, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, system_id, ts, message, host, program, severity, service, facility,
			source_ip, trace_id, span_id, external_id, template_id, acknowledged_at, suppressed, raw
		FROM events
		WHERE system_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`, systemID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list window: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (p *Postgres) GetByIDs(ctx context.Context, ids []string) ([]model.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, system_id, ts, message, host, program, severity, service, facility,
			source_ip, trace_id, span_id, external_id, template_id, acknowledged_at, suppressed, raw
		FROM events WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get by ids: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (p *Postgres) Search(ctx context.Context, q SearchQuery) ([]model.Event, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, system_id, ts, message, host, program, severity, service, facility,
		source_ip, trace_id, span_id, external_id, template_id, acknowledged_at, suppressed, raw
		FROM events WHERE system_id = $1`)
	args := []any{q.SystemID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Host != "" {
		sb.WriteString(" AND host = " + arg(q.Host))
	}
	if q.Program != "" {
		sb.WriteString(" AND program = " + arg(q.Program))
	}
	if q.Severity != "" {
		sb.WriteString(" AND severity = " + arg(q.Severity))
	}
	if q.Text != "" {
		sb.WriteString(" AND message ILIKE " + arg("%"+q.Text+"%"))
	}
	if !q.Since.IsZero() {
		sb.WriteString(" AND ts >= " + arg(q.Since))
	}
	if !q.Until.IsZero() {
		sb.WriteString(" AND ts < " + arg(q.Until))
	}
	sb.WriteString(" ORDER BY ts DESC")
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	sb.WriteString(" LIMIT " + arg(limit))
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + arg(q.Offset))
	}

	rows, err := p.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (p *Postgres) Acknowledge(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `UPDATE events SET acknowledged_at = $1 WHERE id = ANY($2)`, at, ids)
	if err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	return nil
}

// DeleteOlderThan removes events in chunks of chunkSize per transaction, each
// transaction also removing the corresponding event_scores rows, so a crash
// mid-run leaves no orphaned scores.
func (p *Postgres) DeleteOlderThan(ctx context.Context, systemID string, cutoff time.Time, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	total := 0
	for {
		n, err := p.deleteChunk(ctx, `
			WITH victims AS (
				SELECT id FROM events WHERE system_id = $1 AND ts < $2 LIMIT $3
			),
			scored AS (
				DELETE FROM event_scores WHERE event_id IN (SELECT id FROM victims)
			)
			DELETE FROM events WHERE id IN (SELECT id FROM victims)`,
			systemID, cutoff, chunkSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < chunkSize {
			return total, nil
		}
	}
}

func (p *Postgres) BulkDelete(ctx context.Context, ids []string, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	total := 0
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		n, err := p.deleteChunk(ctx, `
			WITH scored AS (
				DELETE FROM event_scores WHERE event_id = ANY($1)
			)
			DELETE FROM events WHERE id = ANY($1)`, chunk)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (p *Postgres) deleteChunk(ctx context.Context, sql string, args ...any) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin delete chunk: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete chunk: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete chunk: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SuppressEvents marks ids as matched by a NormalBehaviorTemplate and zeroes
// their EventScores, atomically, so a reader never observes a suppressed
// event still carrying a stale non-zero score.
func (p *Postgres) SuppressEvents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin suppress events: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `UPDATE events SET suppressed = true WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("mark events suppressed: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE event_scores SET score = 0 WHERE event_id = ANY($1) AND score_type = 'event'`, ids); err != nil {
		return fmt.Errorf("zero event scores: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit suppress events: %w", err)
	}
	return nil
}

// MarkTemplatesSuppressed flags message_templates as suppressed, letting the
// scoring loop skip the LLM entirely for any future event resolving to one of
// these templates without re-running the suppressor's regex tuples. Only
// valid for NormalBehaviorTemplates with no host/program pattern, since those
// match purely on the canonicalized message the MessageTemplate was built
// from (see internal/suppressor).
func (p *Postgres) MarkTemplatesSuppressed(ctx context.Context, templateIDs []string) error {
	if len(templateIDs) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `UPDATE message_templates SET suppressed = true WHERE id = ANY($1)`, templateIDs)
	if err != nil {
		return fmt.Errorf("mark templates suppressed: %w", err)
	}
	return nil
}

// UnscoredEvents returns up to limit non-suppressed events for systemID with
// no event_scores row of score_type='event', oldest first.
func (p *Postgres) UnscoredEvents(ctx context.Context, systemID string, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := p.pool.Query(ctx, `
		SELECT e.id, e.system_id, e.ts, e.message, e.host, e.program, e.severity, e.service, e.facility,
			e.source_ip, e.trace_id, e.span_id, e.external_id, e.template_id, e.acknowledged_at, e.suppressed, e.raw
		FROM events e
		WHERE e.system_id = $1 AND e.suppressed = false
			AND NOT EXISTS (
				SELECT 1 FROM event_scores es WHERE es.event_id = e.id AND es.score_type = 'event'
			)
		ORDER BY e.ts ASC
		LIMIT $2`, systemID, limit)
	if err != nil {
		return nil, fmt.Errorf("unscored events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// SetEventTemplate stamps template_id on ids once the Template & Cache
// manager has resolved them to a MessageTemplate.
func (p *Postgres) SetEventTemplate(ctx context.Context, ids []string, templateID string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `UPDATE events SET template_id = $1 WHERE id = ANY($2)`, templateID, ids)
	if err != nil {
		return fmt.Errorf("set event template: %w", err)
	}
	return nil
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var out []model.Event
	for rows.Next() {
		var e model.Event
		var templateID *string
		var raw []byte
		if err := rows.Scan(&e.ID, &e.SystemID, &e.Timestamp, &e.Message, &e.Host, &e.Program,
			&e.Severity, &e.Service, &e.Facility, &e.SourceIP, &e.TraceID, &e.SpanID, &e.ExternalID,
			&templateID, &e.AcknowledgedAt, &e.Suppressed, &raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if templateID != nil {
			e.TemplateID = *templateID
		}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &e.Raw)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
