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

// AdvisoryLockSystem acquires a transaction-scoped Postgres advisory lock
// keyed by systemID's hash, serializing the Finding write path per system so
// two concurrent meta-analysis runs for the same system cannot race on dedup.
// The lock is released automatically when tx commits or rolls back.
func (p *Postgres) AdvisoryLockSystem(ctx context.Context, tx pgx.Tx, systemID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, systemID)
	if err != nil {
		return fmt.Errorf("advisory lock system %s: %w", systemID, err)
	}
	return nil
}

// BeginTx starts a transaction for callers that need AdvisoryLockSystem plus
// further finding writes in the same scope (internal/findings.Engine).
func (p *Postgres) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return p.pool.Begin(ctx)
}

// OpenFindingsBySystem returns open (or acknowledged) findings for systemID,
// most recently seen first.
func (p *Postgres) OpenFindingsBySystem(ctx context.Context, systemID string) ([]model.Finding, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, system_id, fingerprint, text, criterion_slug, severity, original_severity, status,
			occurrence_count, consecutive_misses, first_seen_at, last_seen_at, acknowledged_at,
			resolved_at, resolution_evidence, key_event_ids
		FROM findings
		WHERE system_id = $1 AND status IN ('open','acknowledged')
		ORDER BY last_seen_at DESC`, systemID)
	if err != nil {
		return nil, fmt.Errorf("open findings: %w", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

// FindingByFingerprint returns an open/acknowledged finding matching
// fingerprint for systemID, if one exists.
func (p *Postgres) FindingByFingerprint(ctx context.Context, tx pgx.Tx, systemID, fingerprint string) (model.Finding, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, system_id, fingerprint, text, criterion_slug, severity, original_severity, status,
			occurrence_count, consecutive_misses, first_seen_at, last_seen_at, acknowledged_at,
			resolved_at, resolution_evidence, key_event_ids
		FROM findings WHERE system_id = $1 AND fingerprint = $2 AND status != 'resolved'`, systemID, fingerprint)
	f, err := scanFindingRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Finding{}, false, nil
	}
	if err != nil {
		return model.Finding{}, false, err
	}
	return f, true, nil
}

// RecentlyResolvedFinding returns a resolved finding matching fingerprint for
// systemID whose resolved_at falls within the lookback window, if one exists.
// Used by the Finding Engine's "recurring" dedup branch (spec §4.G).
func (p *Postgres) RecentlyResolvedFinding(ctx context.Context, tx pgx.Tx, systemID, fingerprint string, since time.Time) (model.Finding, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, system_id, fingerprint, text, criterion_slug, severity, original_severity, status,
			occurrence_count, consecutive_misses, first_seen_at, last_seen_at, acknowledged_at,
			resolved_at, resolution_evidence, key_event_ids
		FROM findings
		WHERE system_id = $1 AND fingerprint = $2 AND status = 'resolved' AND resolved_at >= $3
		ORDER BY resolved_at DESC LIMIT 1`, systemID, fingerprint, since)
	f, err := scanFindingRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Finding{}, false, nil
	}
	if err != nil {
		return model.Finding{}, false, err
	}
	return f, true, nil
}

// CountOpenFindings returns the number of open/acknowledged findings for
// systemID, used to enforce max_open_findings_per_system.
func (p *Postgres) CountOpenFindings(ctx context.Context, tx pgx.Tx, systemID string) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM findings WHERE system_id = $1 AND status IN ('open','acknowledged')`, systemID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open findings: %w", err)
	}
	return n, nil
}

// InsertFinding creates a new durable Finding row.
func (p *Postgres) InsertFinding(ctx context.Context, tx pgx.Tx, f model.Finding) (model.Finding, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.FirstSeenAt.IsZero() {
		f.FirstSeenAt = time.Now().UTC()
	}
	if f.LastSeenAt.IsZero() {
		f.LastSeenAt = f.FirstSeenAt
	}
	if f.OriginalSeverity == "" {
		f.OriginalSeverity = f.Severity
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO findings (id, system_id, fingerprint, text, criterion_slug, severity, original_severity,
			status, occurrence_count, consecutive_misses, first_seen_at, last_seen_at, key_event_ids)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		f.ID, f.SystemID, f.Fingerprint, f.Text, f.CriterionSlug, f.Severity, f.OriginalSeverity,
		f.Status, 1, 0, f.FirstSeenAt, f.LastSeenAt, f.KeyEventIDs)
	if err != nil {
		return model.Finding{}, fmt.Errorf("insert finding: %w", err)
	}
	f.OccurrenceCount = 1
	return f, nil
}

// RecordRecurrence bumps occurrence_count, resets consecutive_misses, updates
// last_seen_at/key_event_ids, and sets severity to newSeverity as given. The
// decay-or-raise decision is made by the caller
// (internal/findings.Engine.recurrenceSeverity).
func (p *Postgres) RecordRecurrence(ctx context.Context, tx pgx.Tx, findingID, newSeverity string, keyEventIDs []string) error {
	_, err := tx.Exec(ctx, `
		UPDATE findings SET occurrence_count = occurrence_count + 1, consecutive_misses = 0,
			last_seen_at = now(), severity = $2, key_event_ids = $3
		WHERE id = $1`, findingID, newSeverity, keyEventIDs)
	if err != nil {
		return fmt.Errorf("record recurrence: %w", err)
	}
	return nil
}

// IncrementMisses bumps consecutive_misses for every open/acknowledged
// finding of systemID NOT present in seenFindingIDs this window. A miss never
// touches severity itself — severity decay runs solely off recurrence count
// via internal/findings.Engine.recurrenceSeverity (spec §4.G); misses only
// drive consecutive_misses and, once autoResolveAfter is reached,
// auto-resolution. Auto-resolve synthesizes resolution_evidence recording
// which events stopped recurring (spec §4.G, §8 scenario 4).
func (p *Postgres) IncrementMisses(ctx context.Context, tx pgx.Tx, systemID string, seenFindingIDs []string, autoResolveAfter int) ([]model.Finding, error) {
	if seenFindingIDs == nil {
		seenFindingIDs = []string{}
	}
	rows, err := tx.Query(ctx, `
		SELECT id, system_id, fingerprint, text, criterion_slug, severity, original_severity, status,
			occurrence_count, consecutive_misses, first_seen_at, last_seen_at, acknowledged_at,
			resolved_at, resolution_evidence, key_event_ids
		FROM findings
		WHERE system_id = $1 AND status IN ('open','acknowledged') AND NOT (id = ANY($2))`,
		systemID, seenFindingIDs)
	if err != nil {
		return nil, fmt.Errorf("select missed findings: %w", err)
	}
	missed, err := scanFindings(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	var resolved []model.Finding
	for _, f := range missed {
		misses := f.ConsecutiveMisses + 1
		if misses >= autoResolveAfter {
			evidence := &model.ResolutionEvidence{
				Text:     fmt.Sprintf("auto-resolved after %d consecutive windows without recurrence", misses),
				EventIDs: f.KeyEventIDs,
			}
			raw, err := json.Marshal(evidence)
			if err != nil {
				return nil, fmt.Errorf("marshal resolution evidence: %w", err)
			}
			_, err = tx.Exec(ctx, `
				UPDATE findings SET consecutive_misses = $2, status = 'resolved', resolved_at = now(),
					resolution_evidence = $3
				WHERE id = $1`, f.ID, misses, raw)
			if err != nil {
				return nil, fmt.Errorf("auto-resolve finding: %w", err)
			}
			f.Status = model.FindingResolved
			f.ResolutionEvidence = evidence
			resolved = append(resolved, f)
			continue
		}
		_, err := tx.Exec(ctx, `
			UPDATE findings SET consecutive_misses = $2 WHERE id = $1`,
			f.ID, misses)
		if err != nil {
			return nil, fmt.Errorf("increment miss: %w", err)
		}
	}
	return resolved, nil
}

// SetFindingStatus transitions a finding to ack/reopen states.
func (p *Postgres) SetFindingStatus(ctx context.Context, id string, status model.FindingStatus) error {
	var err error
	switch status {
	case model.FindingAcknowledged:
		_, err = p.pool.Exec(ctx, `UPDATE findings SET status = $2, acknowledged_at = now() WHERE id = $1`, id, status)
	case model.FindingOpen:
		_, err = p.pool.Exec(ctx, `UPDATE findings SET status = $2, acknowledged_at = NULL, resolved_at = NULL, consecutive_misses = 0 WHERE id = $1`, id, status)
	default:
		_, err = p.pool.Exec(ctx, `UPDATE findings SET status = $2 WHERE id = $1`, id, status)
	}
	if err != nil {
		return fmt.Errorf("set finding status: %w", err)
	}
	return nil
}

func scanFindings(rows pgx.Rows) ([]model.Finding, error) {
	var out []model.Finding
	for rows.Next() {
		f, err := scanFindingFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFindingRow(row pgx.Row) (model.Finding, error) {
	return scanFindingFields(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFindingFields(row rowScanner) (model.Finding, error) {
	var f model.Finding
	var evidence []byte
	if err := row.Scan(&f.ID, &f.SystemID, &f.Fingerprint, &f.Text, &f.CriterionSlug, &f.Severity,
		&f.OriginalSeverity, &f.Status, &f.OccurrenceCount, &f.ConsecutiveMisses, &f.FirstSeenAt,
		&f.LastSeenAt, &f.AcknowledgedAt, &f.ResolvedAt, &evidence, &f.KeyEventIDs); err != nil {
		return model.Finding{}, fmt.Errorf("scan finding: %w", err)
	}
	if len(evidence) > 0 {
		var re model.ResolutionEvidence
		if err := json.Unmarshal(evidence, &re); err != nil {
			return model.Finding{}, fmt.Errorf("unmarshal resolution evidence: %w", err)
		}
		f.ResolutionEvidence = &re
	}
	return f, nil
}
