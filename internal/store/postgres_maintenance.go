package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaintenanceLog is a durable record of one maintenance tick's work, matching
// spec §4.H's requirement that a backup→restore→backup cycle and retention
// pruning both leave an auditable trail.
type MaintenanceLog struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	PartitionsAdded int
	PartitionsDropped int
	DeletedEvents  int
	VacuumErrors   []string
	ReindexErrors  []string
	BackupPath     string
	BackupError    string
}

// InsertMaintenanceLog persists one completed maintenance run.
func (p *Postgres) InsertMaintenanceLog(ctx context.Context, m MaintenanceLog) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO maintenance_log (id, started_at, finished_at, partitions_added, partitions_dropped,
			deleted_events, vacuum_errors, reindex_errors, backup_path, backup_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID, m.StartedAt, m.FinishedAt, m.PartitionsAdded, m.PartitionsDropped, m.DeletedEvents,
		m.VacuumErrors, m.ReindexErrors, nullableString(m.BackupPath), nullableString(m.BackupError))
	if err != nil {
		return fmt.Errorf("insert maintenance log: %w", err)
	}
	return nil
}

// EnsurePartition creates the monthly events partition events_yYYYYmMM
// covering [monthStart, monthStart+1month) if it doesn't already exist. The
// CREATE TABLE ... PARTITION OF statement is itself metadata-only.
func (p *Postgres) EnsurePartition(ctx context.Context, monthStart time.Time) (created bool, err error) {
	name := partitionName(monthStart)
	rangeEnd := monthStart.AddDate(0, 1, 0)
	// CREATE TABLE has no row-affected semantics; report created based on
	// whether pg_class saw the relation before the statement ran (cheap
	// existence probe).
	var existed bool
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, name).Scan(&existed); err != nil {
		return false, fmt.Errorf("check partition %s: %w", name, err)
	}
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s PARTITION OF events
		FOR VALUES FROM ('%s') TO ('%s')`,
		name, monthStart.Format("2006-01-02"), rangeEnd.Format("2006-01-02"))); err != nil {
		return false, fmt.Errorf("ensure partition %s: %w", name, err)
	}
	return !existed, nil
}

// DropPartition drops the monthly partition covering monthStart, returning
// the row count the partition held (read via pg_class reltuples, an
// estimate, before the metadata-only DROP) for MaintenanceLog.DeletedEvents.
func (p *Postgres) DropPartition(ctx context.Context, monthStart time.Time) (rowsDropped int, err error) {
	name := partitionName(monthStart)
	var estimate float64
	_ = p.pool.QueryRow(ctx, `SELECT reltuples FROM pg_class WHERE relname = $1`, name).Scan(&estimate)
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)); err != nil {
		return 0, fmt.Errorf("drop partition %s: %w", name, err)
	}
	return int(estimate), nil
}

func partitionName(monthStart time.Time) string {
	return fmt.Sprintf("events_y%04dm%02d", monthStart.Year(), monthStart.Month())
}

// VacuumTables runs VACUUM ANALYZE on the given hot tables, collecting
// per-table errors without aborting the rest (spec: "failures logged, not
// fatal").
func (p *Postgres) VacuumTables(ctx context.Context, tables []string) []string {
	var errs []string
	for _, t := range tables {
		if _, err := p.pool.Exec(ctx, fmt.Sprintf(`VACUUM ANALYZE %s`, t)); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", t, err))
		}
	}
	return errs
}

// ReindexIndexes runs REINDEX CONCURRENTLY on the given hot indexes, falling
// back to a blocking REINDEX when the backend rejects CONCURRENTLY (e.g.
// inside an existing transaction, or on backends that don't support it).
func (p *Postgres) ReindexIndexes(ctx context.Context, indexes []string) []string {
	var errs []string
	for _, idx := range indexes {
		if _, err := p.pool.Exec(ctx, fmt.Sprintf(`REINDEX INDEX CONCURRENTLY %s`, idx)); err != nil {
			if _, err2 := p.pool.Exec(ctx, fmt.Sprintf(`REINDEX INDEX %s`, idx)); err2 != nil {
				errs = append(errs, fmt.Sprintf("%s: %v (blocking fallback: %v)", idx, err, err2))
			}
		}
	}
	return errs
}

// OrphanWindows returns window IDs with no effective_scores row, a sign the
// meta-analysis call that should have populated them never completed.
func (p *Postgres) OrphanWindows(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT w.id FROM windows w
		LEFT JOIN effective_scores es ON es.window_id = w.id
		WHERE es.window_id IS NULL AND w.created_at < $1`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("orphan windows: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphan window: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteWindows removes window rows by ID (used for orphan cleanup).
func (p *Postgres) DeleteWindows(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `DELETE FROM windows WHERE id = ANY($1)`, ids)
	return err
}

// OrphanTemplates returns message_template IDs referenced by no event row.
func (p *Postgres) OrphanTemplates(ctx context.Context, systemID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT mt.id FROM message_templates mt
		LEFT JOIN events e ON e.template_id = mt.id
		WHERE mt.system_id = $1 AND e.id IS NULL`, systemID)
	if err != nil {
		return nil, fmt.Errorf("orphan templates: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphan template: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteTemplates removes message_template rows by ID.
func (p *Postgres) DeleteTemplates(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `DELETE FROM message_templates WHERE id = ANY($1)`, ids)
	return err
}
