package store

import (
	"context"
	"fmt"

	"loginsight/internal/model"
)

// EnsureSchema creates every table, index, and partition root this package
// reads and writes, idempotently. Called once at startup by cmd/server, the
// same way the teacher's persistence stores each own an Init(ctx) that runs
// their CREATE TABLE IF NOT EXISTS statements before serving traffic.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS monitored_systems (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name           TEXT NOT NULL,
	event_source   TEXT NOT NULL DEFAULT 'primary',
	retention_days INTEGER,
	active         BOOLEAN NOT NULL DEFAULT true,
	coordinates    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS criteria (
	id   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id              UUID NOT NULL,
	system_id       UUID NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	message         TEXT NOT NULL,
	host            TEXT NOT NULL DEFAULT '',
	program         TEXT NOT NULL DEFAULT '',
	severity        TEXT NOT NULL DEFAULT '',
	service         TEXT NOT NULL DEFAULT '',
	facility        TEXT NOT NULL DEFAULT '',
	source_ip       TEXT NOT NULL DEFAULT '',
	trace_id        TEXT NOT NULL DEFAULT '',
	span_id         TEXT NOT NULL DEFAULT '',
	external_id     TEXT NOT NULL DEFAULT '',
	template_id     UUID,
	acknowledged_at TIMESTAMPTZ,
	suppressed      BOOLEAN NOT NULL DEFAULT false,
	raw             JSONB,
	PRIMARY KEY (id, ts)
) PARTITION BY RANGE (ts);

CREATE INDEX IF NOT EXISTS events_system_ts_idx ON events (system_id, ts);
CREATE INDEX IF NOT EXISTS events_template_idx ON events (template_id);

CREATE TABLE IF NOT EXISTS message_templates (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	system_id      UUID NOT NULL,
	fingerprint    TEXT NOT NULL,
	pattern        TEXT NOT NULL,
	cached_scores  JSONB,
	last_scored_at TIMESTAMPTZ,
	avg_max_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	scoring_count  INTEGER NOT NULL DEFAULT 0,
	low_interest   BOOLEAN NOT NULL DEFAULT false,
	suppressed     BOOLEAN NOT NULL DEFAULT false,
	UNIQUE (system_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS normal_behavior_templates (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	system_id       UUID NOT NULL,
	pattern_regex   TEXT NOT NULL,
	host_pattern    TEXT NOT NULL DEFAULT '',
	program_pattern TEXT NOT NULL DEFAULT '',
	enabled         BOOLEAN NOT NULL DEFAULT true,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS windows (
	id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	system_id          UUID NOT NULL,
	from_ts            TIMESTAMPTZ NOT NULL,
	to_ts              TIMESTAMPTZ NOT NULL,
	summary            TEXT NOT NULL DEFAULT '',
	recommended_action TEXT NOT NULL DEFAULT '',
	key_event_ids      TEXT[],
	emitted_findings   JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS windows_system_to_idx ON windows (system_id, to_ts DESC);

CREATE TABLE IF NOT EXISTS event_scores (
	event_id       UUID NOT NULL,
	criterion_id   UUID NOT NULL REFERENCES criteria(id),
	score          DOUBLE PRECISION NOT NULL,
	score_type     TEXT NOT NULL,
	severity_label TEXT NOT NULL DEFAULT '',
	reason_codes   TEXT[],
	PRIMARY KEY (event_id, criterion_id, score_type)
);

CREATE TABLE IF NOT EXISTS effective_scores (
	system_id        UUID NOT NULL,
	window_id        UUID NOT NULL REFERENCES windows(id) ON DELETE CASCADE,
	criterion_id     UUID NOT NULL REFERENCES criteria(id),
	effective_value  DOUBLE PRECISION NOT NULL,
	meta_score       DOUBLE PRECISION NOT NULL,
	max_event_score  DOUBLE PRECISION NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (window_id, criterion_id)
);

CREATE TABLE IF NOT EXISTS findings (
	id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	system_id          UUID NOT NULL,
	fingerprint        TEXT NOT NULL,
	text               TEXT NOT NULL,
	criterion_slug     TEXT NOT NULL DEFAULT '',
	severity           TEXT NOT NULL,
	original_severity  TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'open',
	occurrence_count   INTEGER NOT NULL DEFAULT 1,
	consecutive_misses INTEGER NOT NULL DEFAULT 0,
	first_seen_at      TIMESTAMPTZ NOT NULL,
	last_seen_at       TIMESTAMPTZ NOT NULL,
	acknowledged_at    TIMESTAMPTZ,
	resolved_at        TIMESTAMPTZ,
	resolution_evidence JSONB,
	key_event_ids      TEXT[]
);

CREATE INDEX IF NOT EXISTS findings_system_status_idx ON findings (system_id, status);
CREATE INDEX IF NOT EXISTS findings_system_fingerprint_idx ON findings (system_id, fingerprint);

CREATE TABLE IF NOT EXISTS llm_usage (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	system_id     UUID,
	run_type      TEXT NOT NULL,
	model         TEXT NOT NULL,
	token_input   INTEGER NOT NULL DEFAULT 0,
	token_output  INTEGER NOT NULL DEFAULT 0,
	request_count INTEGER NOT NULL DEFAULT 0,
	event_count   INTEGER NOT NULL DEFAULT 0,
	cost_estimate DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS app_config (
	key   TEXT PRIMARY KEY,
	value JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS maintenance_log (
	id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	started_at         TIMESTAMPTZ NOT NULL,
	finished_at        TIMESTAMPTZ NOT NULL,
	partitions_added   INTEGER NOT NULL DEFAULT 0,
	partitions_dropped INTEGER NOT NULL DEFAULT 0,
	deleted_events     INTEGER NOT NULL DEFAULT 0,
	vacuum_errors      TEXT[],
	reindex_errors     TEXT[],
	backup_path        TEXT,
	backup_error       TEXT
);
`)
	if err != nil {
		return err
	}
	return p.seedCriteria(ctx)
}

// seedCriteria inserts the six fixed risk dimensions on first run. Existing
// rows (by slug) are left untouched so a deployed criterion's UUID, which
// event_scores/effective_scores reference by foreign key, never changes.
func (p *Postgres) seedCriteria(ctx context.Context) error {
	for _, c := range model.FixedCriteria {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO criteria (slug, name) VALUES ($1, $2)
			ON CONFLICT (slug) DO NOTHING`, c.Slug, c.Name)
		if err != nil {
			return fmt.Errorf("seed criterion %s: %w", c.Slug, err)
		}
	}
	return nil
}

// ListCriteria returns the six fixed criteria with their durable UUIDs, as
// seeded by EnsureSchema.
func (p *Postgres) ListCriteria(ctx context.Context) ([]model.Criterion, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, slug, name FROM criteria ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}
	defer rows.Close()
	var out []model.Criterion
	for rows.Next() {
		var c model.Criterion
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name); err != nil {
			return nil, fmt.Errorf("scan criterion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
