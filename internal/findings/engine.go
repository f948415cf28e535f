// Package findings implements the Finding Engine (spec §4.G): reconciling the
// transient EmittedFindings an LLM meta-analysis call surfaces against the
// durable, deduplicated Finding rows a system accumulates over time.
package findings

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"loginsight/internal/config"
	"loginsight/internal/model"
)

// Store is the subset of internal/store.Postgres the Finding Engine needs.
// Writes run inside one transaction, guarded by a per-system advisory lock,
// so two concurrent meta-analysis runs for the same system never race on
// fingerprint dedup.
type Store interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	AdvisoryLockSystem(ctx context.Context, tx pgx.Tx, systemID string) error
	OpenFindingsBySystem(ctx context.Context, systemID string) ([]model.Finding, error)
	RecentlyResolvedFinding(ctx context.Context, tx pgx.Tx, systemID, fingerprint string, since time.Time) (model.Finding, bool, error)
	CountOpenFindings(ctx context.Context, tx pgx.Tx, systemID string) (int, error)
	InsertFinding(ctx context.Context, tx pgx.Tx, f model.Finding) (model.Finding, error)
	RecordRecurrence(ctx context.Context, tx pgx.Tx, findingID, newSeverity string, keyEventIDs []string) error
	IncrementMisses(ctx context.Context, tx pgx.Tx, systemID string, seenFindingIDs []string, autoResolveAfter int) ([]model.Finding, error)
}

// Engine implements pipeline.FindingSink.
type Engine struct {
	store Store
	cfg   config.PipelineConfig
	now   func() time.Time
}

// New builds a Finding Engine over store, configured by cfg.
func New(store Store, cfg config.PipelineConfig) *Engine {
	return &Engine{store: store, cfg: cfg, now: time.Now}
}

// Process reconciles one window's emitted findings against durable Finding
// rows for system, then advances consecutive_misses/auto-resolve for every
// open finding not re-observed this window.
func (e *Engine) Process(ctx context.Context, system model.MonitoredSystem, window model.Window, result model.MetaResult) error {
	emitted := rankBySeverity(result.Findings)

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("finding engine: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := e.store.AdvisoryLockSystem(ctx, tx, system.ID); err != nil {
		return fmt.Errorf("finding engine: %w", err)
	}

	open, err := e.store.OpenFindingsBySystem(ctx, system.ID)
	if err != nil {
		return fmt.Errorf("finding engine: open findings: %w", err)
	}
	openCount, err := e.store.CountOpenFindings(ctx, tx, system.ID)
	if err != nil {
		return fmt.Errorf("finding engine: count open findings: %w", err)
	}

	lookback := e.now().UTC().AddDate(0, 0, -lookbackDays(e.cfg.RecurringLookbackDays))
	maxNew := e.cfg.MaxNewFindingsPerWindow
	if maxNew <= 0 {
		maxNew = 3
	}
	maxOpen := e.cfg.MaxOpenFindingsPerSystem
	if maxOpen <= 0 {
		maxOpen = 50
	}

	var seenIDs []string
	newCount := 0
	for _, ef := range emitted {
		fp := fingerprint(ef.Text)

		if existing, ok := findByFingerprint(open, fp); ok {
			newSeverity := e.recurrenceSeverity(existing, ef.Severity)
			keyIDs := unionKeyEventIDs(existing.KeyEventIDs, ef.KeyEventIDs, 50)
			if err := e.store.RecordRecurrence(ctx, tx, existing.ID, newSeverity, keyIDs); err != nil {
				return fmt.Errorf("finding engine: record recurrence: %w", err)
			}
			seenIDs = append(seenIDs, existing.ID)
			continue
		}

		if _, ok, err := e.store.RecentlyResolvedFinding(ctx, tx, system.ID, fp, lookback); err != nil {
			return fmt.Errorf("finding engine: recently resolved lookup: %w", err)
		} else if ok {
			if openCount >= maxOpen {
				log.Warn().Str("system_id", system.ID).Str("fingerprint", fp).Msg("finding_engine_open_cap_dropped_recurring")
				continue
			}
			f := model.Finding{
				SystemID:      system.ID,
				Fingerprint:   fp,
				Text:          "Recurring: " + ef.Text,
				CriterionSlug: ef.CriterionSlug,
				Severity:      ef.Severity,
				Status:        model.FindingOpen,
				KeyEventIDs:   capIDs(ef.KeyEventIDs, 50),
			}
			inserted, err := e.store.InsertFinding(ctx, tx, f)
			if err != nil {
				return fmt.Errorf("finding engine: insert recurring finding: %w", err)
			}
			seenIDs = append(seenIDs, inserted.ID)
			newCount++
			openCount++
			continue
		}

		if e.cfg.FindingDedupEnabled {
			threshold := e.cfg.FindingDedupThreshold
			if threshold <= 0 {
				threshold = 0.6
			}
			if match, ok := mostSimilar(open, fp, threshold); ok {
				newSeverity := e.recurrenceSeverity(match, ef.Severity)
				keyIDs := unionKeyEventIDs(match.KeyEventIDs, ef.KeyEventIDs, 50)
				if err := e.store.RecordRecurrence(ctx, tx, match.ID, newSeverity, keyIDs); err != nil {
					return fmt.Errorf("finding engine: record similar recurrence: %w", err)
				}
				seenIDs = append(seenIDs, match.ID)
				continue
			}
		}

		if newCount >= maxNew {
			log.Warn().Str("system_id", system.ID).Str("fingerprint", fp).Msg("finding_engine_new_per_window_cap_dropped")
			continue
		}
		if openCount >= maxOpen {
			log.Warn().Str("system_id", system.ID).Str("fingerprint", fp).Msg("finding_engine_open_cap_dropped_new")
			continue
		}
		f := model.Finding{
			SystemID:      system.ID,
			Fingerprint:   fp,
			Text:          ef.Text,
			CriterionSlug: ef.CriterionSlug,
			Severity:      ef.Severity,
			Status:        model.FindingOpen,
			KeyEventIDs:   capIDs(ef.KeyEventIDs, 50),
		}
		inserted, err := e.store.InsertFinding(ctx, tx, f)
		if err != nil {
			return fmt.Errorf("finding engine: insert finding: %w", err)
		}
		seenIDs = append(seenIDs, inserted.ID)
		newCount++
		openCount++
	}

	if _, err := e.store.IncrementMisses(ctx, tx, system.ID, seenIDs, e.cfg.AutoResolveAfterMisses); err != nil {
		return fmt.Errorf("finding engine: increment misses: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("finding engine: commit: %w", err)
	}
	committed = true
	return nil
}

func lookbackDays(days int) int {
	if days <= 0 {
		return 14
	}
	return days
}

// recurrenceSeverity applies occurrence-count severity decay: past the
// threshold, the existing severity steps down one level by default, and an
// emitter-reported severity only overrides that decay when it is worse than
// the existing (pre-decay) severity (spec §4.G: "recurrence can also raise
// severity back up if the LLM reports worse").
func (e *Engine) recurrenceSeverity(existing model.Finding, emitted string) string {
	candidate := emitted
	if candidate == "" {
		candidate = existing.Severity
	}
	if !e.cfg.SeverityDecayEnabled {
		return candidate
	}
	threshold := e.cfg.SeverityDecayAfterOccurrences
	if threshold <= 0 {
		threshold = 3
	}
	if existing.OccurrenceCount+1 < threshold {
		return candidate
	}
	decayed := model.DecaySeverity(existing.Severity)
	if emitted != "" && severityRank(emitted) < severityRank(existing.Severity) {
		return emitted
	}
	return decayed
}

func findByFingerprint(open []model.Finding, fp string) (model.Finding, bool) {
	for _, f := range open {
		if f.Fingerprint == fp {
			return f, true
		}
	}
	return model.Finding{}, false
}

// mostSimilar returns the open finding whose fingerprint has the highest
// token-Jaccard similarity to fp, if it meets threshold.
func mostSimilar(open []model.Finding, fp string, threshold float64) (model.Finding, bool) {
	var best model.Finding
	bestScore := 0.0
	found := false
	for _, f := range open {
		score := jaccard(fp, f.Fingerprint)
		if score >= threshold && score > bestScore {
			best, bestScore, found = f, score, true
		}
	}
	return best, found
}

func unionKeyEventIDs(existing, fresh []string, limit int) []string {
	seen := make(map[string]struct{}, len(existing)+len(fresh))
	var out []string
	for _, id := range fresh {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range existing {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return capIDs(out, limit)
}

func capIDs(ids []string, limit int) []string {
	if len(ids) <= limit {
		return ids
	}
	return ids[:limit]
}

// rankBySeverity stable-sorts emitted findings most-severe first, per spec
// §4.G ("ranked by severity").
func rankBySeverity(findings []model.EmittedFinding) []model.EmittedFinding {
	out := append([]model.EmittedFinding(nil), findings...)
	sort.SliceStable(out, func(i, j int) bool {
		return severityRank(out[i].Severity) < severityRank(out[j].Severity)
	})
	return out
}

func severityRank(sev string) int {
	for i, s := range model.SeverityLevels {
		if s == sev {
			return i
		}
	}
	return len(model.SeverityLevels)
}
