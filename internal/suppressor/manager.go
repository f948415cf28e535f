package suppressor

import (
	"context"
	"fmt"
	"time"

	"loginsight/internal/model"
	"loginsight/internal/store"
)

// chunkSize bounds both the retroactive scan's page size and the number of
// event IDs batched into one SuppressEvents call.
const chunkSize = 500

// Manager owns the compiled Index plus the write paths templates, scoring,
// and finding selection all depend on: creating/toggling/deleting
// NormalBehaviorTemplates, and running the retroactive bulk update spec §4.C
// requires on template creation.
type Manager struct {
	Index   *Index
	store   Store
	backend *store.BackendFactory
}

// NewManager wires an Index over store and a BackendFactory for the
// retroactive scan, which must read events through whichever backend a
// system's EventSource resolves to.
func NewManager(st Store, backend *store.BackendFactory) *Manager {
	return &Manager{Index: New(st), store: st, backend: backend}
}

// Create persists a new NormalBehaviorTemplate, invalidates the in-memory
// index for its system, then runs the retroactive bulk update: scanning the
// last retentionDays of events for the system, zeroing EventScores (and, for
// templateWide matches, flagging the owning MessageTemplate) for every event
// that matches the new template. Matching against already-existing templates
// for the system is also re-applied, since a newly enabled template can widen
// what's suppressed but never narrows what earlier templates already caught.
func (m *Manager) Create(ctx context.Context, system model.MonitoredSystem, t model.NormalBehaviorTemplate) (model.NormalBehaviorTemplate, int, error) {
	created, err := m.store.InsertNormalBehaviorTemplate(ctx, t)
	if err != nil {
		return model.NormalBehaviorTemplate{}, 0, fmt.Errorf("create normal behavior template: %w", err)
	}
	if err := m.Index.Invalidate(ctx, system.ID); err != nil {
		return created, 0, err
	}
	n, err := m.retroactiveApply(ctx, system)
	return created, n, err
}

// SetEnabled toggles a template and rebuilds the index; enabling a template
// re-runs the retroactive update, disabling one does not retroactively
// un-suppress already-zeroed scores (spec makes no provision for restoring
// scores once zeroed).
func (m *Manager) SetEnabled(ctx context.Context, system model.MonitoredSystem, templateID string, enabled bool) (int, error) {
	if err := m.store.SetNormalBehaviorTemplateEnabled(ctx, templateID, enabled); err != nil {
		return 0, fmt.Errorf("set normal behavior template enabled: %w", err)
	}
	if err := m.Index.Invalidate(ctx, system.ID); err != nil {
		return 0, err
	}
	if !enabled {
		return 0, nil
	}
	return m.retroactiveApply(ctx, system)
}

// Delete removes a template and rebuilds the index. Already-suppressed scores
// are left as-is, matching SetEnabled(false)'s behavior.
func (m *Manager) Delete(ctx context.Context, system model.MonitoredSystem, templateID string) error {
	if err := m.store.DeleteNormalBehaviorTemplate(ctx, templateID); err != nil {
		return fmt.Errorf("delete normal behavior template: %w", err)
	}
	return m.Index.Invalidate(ctx, system.ID)
}

// retroactiveApply scans events for system bounded to its retention window
// (spec: "bounded to the last N days of events for the system, N = global
// retention days cap"), in chunks, zeroing scores for every match.
func (m *Manager) retroactiveApply(ctx context.Context, system model.MonitoredSystem) (int, error) {
	retentionDays := 90
	if system.RetentionDays != nil && *system.RetentionDays > 0 {
		retentionDays = *system.RetentionDays
	}
	since := time.Now().UTC().AddDate(0, 0, -retentionDays)

	es, err := m.backend.For(system)
	if err != nil {
		return 0, fmt.Errorf("retroactive apply: %w", err)
	}

	total := 0
	offset := 0
	for {
		events, err := es.Search(ctx, store.SearchQuery{
			SystemID: system.ID,
			Since:    since,
			Limit:    chunkSize,
			Offset:   offset,
		})
		if err != nil {
			return total, fmt.Errorf("retroactive scan: %w", err)
		}
		if len(events) == 0 {
			break
		}

		var matchedIDs []string
		templateWideIDs := map[string]struct{}{}
		for _, e := range events {
			matched, wide := m.Index.Matches(e)
			if !matched {
				continue
			}
			matchedIDs = append(matchedIDs, e.ID)
			if wide && e.TemplateID != "" {
				templateWideIDs[e.TemplateID] = struct{}{}
			}
		}
		if len(matchedIDs) > 0 {
			if suppressor, ok := es.(interface {
				SuppressEvents(context.Context, []string) error
			}); ok {
				if err := suppressor.SuppressEvents(ctx, matchedIDs); err != nil {
					return total, fmt.Errorf("suppress matched events: %w", err)
				}
			}
			total += len(matchedIDs)
		}
		if len(templateWideIDs) > 0 {
			ids := make([]string, 0, len(templateWideIDs))
			for id := range templateWideIDs {
				ids = append(ids, id)
			}
			if err := m.store.MarkTemplatesSuppressed(ctx, ids); err != nil {
				return total, fmt.Errorf("mark templates suppressed: %w", err)
			}
		}

		if len(events) < chunkSize {
			break
		}
		offset += chunkSize
	}
	return total, nil
}
