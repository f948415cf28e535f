package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"loginsight/internal/config"
	"loginsight/internal/model"
)

// ClickHouse is the EventStore backend for MonitoredSystems configured with
// EventSource "external": systems whose events already live in a columnar
// analytics engine rather than the primary Postgres store (e.g. a system
// whose events are also consumed by a separate log-search product).
type ClickHouse struct {
	conn clickhouse.Conn
}

// NewClickHouseFromConfig opens a connection from config.
func NewClickHouseFromConfig(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) Ingest(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO events (id, system_id, ts, message, host, program, severity, service,
			facility, source_ip, trace_id, span_id, external_id, template_id, raw)`)
	if err != nil {
		return fmt.Errorf("prepare clickhouse batch: %w", err)
	}
	for i := range events {
		e := &events[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		raw, err := json.Marshal(e.Raw)
		if err != nil {
			return fmt.Errorf("marshal raw for event %s: %w", e.ID, err)
		}
		if err := batch.Append(e.ID, e.SystemID, e.Timestamp, e.Message, e.Host, e.Program,
			e.Severity, e.Service, e.Facility, e.SourceIP, e.TraceID, e.SpanID, e.ExternalID,
			e.TemplateID, string(raw)); err != nil {
			return fmt.Errorf("append clickhouse row: %w", err)
		}
	}
	return batch.Send()
}

func (c *ClickHouse) ListWindow(ctx context.Context, systemID string, from, to time.Time) ([]model.Event, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT id, system_id, ts, message, host, program, severity, service, facility,
			source_ip, trace_id, span_id, external_id, template_id, suppressed, raw
		FROM events WHERE system_id = ? AND ts >= ? AND ts < ? ORDER BY ts ASC`, systemID, from, to)
	if err != nil {
		return nil, fmt.Errorf("clickhouse list window: %w", err)
	}
	defer rows.Close()
	return scanClickHouseEvents(rows)
}

func (c *ClickHouse) GetByIDs(ctx context.Context, ids []string) ([]model.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := c.conn.Query(ctx, `
		SELECT id, system_id, ts, message, host, program, severity, service, facility,
			source_ip, trace_id, span_id, external_id, template_id, suppressed, raw
		FROM events WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("clickhouse get by ids: %w", err)
	}
	defer rows.Close()
	return scanClickHouseEvents(rows)
}

func (c *ClickHouse) Search(ctx context.Context, q SearchQuery) ([]model.Event, error) {
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := c.conn.Query(ctx, `
		SELECT id, system_id, ts, message, host, program, severity, service, facility,
			source_ip, trace_id, span_id, external_id, template_id, suppressed, raw
		FROM events
		WHERE system_id = ?
			AND (? = '' OR host = ?)
			AND (? = '' OR program = ?)
			AND (? = '' OR severity = ?)
			AND (? = '' OR positionCaseInsensitive(message, ?) > 0)
			AND (? OR ts >= ?)
			AND (? OR ts < ?)
		ORDER BY ts DESC LIMIT ? OFFSET ?`,
		q.SystemID, q.Host, q.Host, q.Program, q.Program, q.Severity, q.Severity, q.Text, q.Text,
		q.Since.IsZero(), q.Since, q.Until.IsZero(), q.Until, limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("clickhouse search: %w", err)
	}
	defer rows.Close()
	return scanClickHouseEvents(rows)
}

// SuppressEvents applies the same ALTER TABLE ... UPDATE mutation pattern as
// Acknowledge: async, best-effort, matching MergeTree's append-only model.
func (c *ClickHouse) SuppressEvents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.conn.Exec(ctx, `ALTER TABLE events UPDATE suppressed = true WHERE id IN (?)`, ids)
}

func (c *ClickHouse) Acknowledge(ctx context.Context, ids []string, at time.Time) error {
	// ClickHouse event tables are append-only (MergeTree); acknowledgement is
	// recorded as a lightweight ALTER TABLE ... UPDATE mutation, async by
	// design in ClickHouse, matching how that engine expects mutable columns
	// to be changed.
	if len(ids) == 0 {
		return nil
	}
	return c.conn.Exec(ctx, `ALTER TABLE events UPDATE acknowledged_at = ? WHERE id IN (?)`, at, ids)
}

func (c *ClickHouse) DeleteOlderThan(ctx context.Context, systemID string, cutoff time.Time, chunkSize int) (int, error) {
	if err := c.conn.Exec(ctx, `ALTER TABLE events DELETE WHERE system_id = ? AND ts < ?`, systemID, cutoff); err != nil {
		return 0, fmt.Errorf("clickhouse delete older than: %w", err)
	}
	// ClickHouse mutations are async and don't report affected-row counts
	// synchronously; callers treat the return value as "best effort unknown".
	return 0, nil
}

func (c *ClickHouse) BulkDelete(ctx context.Context, ids []string, chunkSize int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := c.conn.Exec(ctx, `ALTER TABLE events DELETE WHERE id IN (?)`, ids); err != nil {
		return 0, fmt.Errorf("clickhouse bulk delete: %w", err)
	}
	return 0, nil
}

// UnscoredEvents returns up to limit*4 of the oldest non-suppressed
// events for systemID. Unlike Postgres.UnscoredEvents, this cannot exclude
// already-scored events in-query: event_scores lives centrally in Postgres
// regardless of which backend owns the raw event rows, and ClickHouse has no
// cross-store join. Callers (internal/pipeline) cross-reference the result
// against Postgres.ScoredEventIDs before scoring an external-backed system.
func (c *ClickHouse) UnscoredEvents(ctx context.Context, systemID string, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := c.conn.Query(ctx, `
		SELECT id, system_id, ts, message, host, program, severity, service, facility,
			source_ip, trace_id, span_id, external_id, template_id, suppressed, raw
		FROM events
		WHERE system_id = ? AND suppressed = false
		ORDER BY ts ASC LIMIT ?`, systemID, limit*4)
	if err != nil {
		return nil, fmt.Errorf("clickhouse unscored events: %w", err)
	}
	defer rows.Close()
	return scanClickHouseEvents(rows)
}

// SetEventTemplate applies the same ALTER TABLE ... UPDATE mutation pattern
// as SuppressEvents/Acknowledge.
func (c *ClickHouse) SetEventTemplate(ctx context.Context, ids []string, templateID string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.conn.Exec(ctx, `ALTER TABLE events UPDATE template_id = ? WHERE id IN (?)`, templateID, ids)
}

// GroupEvents mirrors Postgres.GroupEvents for external-backed systems: the
// grouped-score rows themselves always come from Postgres's central
// event_scores table (scoring writes there regardless of backend), but the
// raw events backing a group live wherever the system's EventSource points.
func (c *ClickHouse) GroupEvents(ctx context.Context, systemID, groupKey string, limit int) ([]model.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := c.conn.Query(ctx, `
		SELECT id, system_id, ts, message, host, program, severity, service, facility,
			source_ip, trace_id, span_id, external_id, template_id, suppressed, raw
		FROM events
		WHERE system_id = ? AND (template_id = ? OR id = ?)
		ORDER BY ts DESC LIMIT ?`, systemID, groupKey, groupKey, limit)
	if err != nil {
		return nil, fmt.Errorf("clickhouse group events: %w", err)
	}
	defer rows.Close()
	return scanClickHouseEvents(rows)
}

func scanClickHouseEvents(rows driverRows) ([]model.Event, error) {
	var out []model.Event
	for rows.Next() {
		var e model.Event
		var raw string
		if err := rows.Scan(&e.ID, &e.SystemID, &e.Timestamp, &e.Message, &e.Host, &e.Program,
			&e.Severity, &e.Service, &e.Facility, &e.SourceIP, &e.TraceID, &e.SpanID, &e.ExternalID,
			&e.TemplateID, &e.Suppressed, &raw); err != nil {
			return nil, fmt.Errorf("scan clickhouse event: %w", err)
		}
		if raw != "" {
			_ = json.Unmarshal([]byte(raw), &e.Raw)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// driverRows narrows clickhouse-go's driver.Rows to the subset scanClickHouseEvents needs.
type driverRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}
