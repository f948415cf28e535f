// Package suppressor implements the Normal-Behavior Suppressor: user-supplied
// regex templates that tag matching events as known-normal so they never
// reach the LLM Adapter and never influence scores or meta-analysis.
//
// The compiled regex tuples are process-wide state, rebuilt wholesale under
// lock whenever a template is added, deleted, or toggled — callers only ever
// take a read snapshot (Matches), never mutate the index directly.
package suppressor

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"loginsight/internal/model"
)

// Store is the subset of internal/store.Postgres the suppressor needs to
// load templates and write back the retroactive-update results.
type Store interface {
	ListNormalBehaviorTemplates(ctx context.Context, systemID string) ([]model.NormalBehaviorTemplate, error)
	InsertNormalBehaviorTemplate(ctx context.Context, t model.NormalBehaviorTemplate) (model.NormalBehaviorTemplate, error)
	SetNormalBehaviorTemplateEnabled(ctx context.Context, id string, enabled bool) error
	DeleteNormalBehaviorTemplate(ctx context.Context, id string) error
	MarkTemplatesSuppressed(ctx context.Context, templateIDs []string) error
}

// compiled is one system's compiled regex tuple plus its owning template ID.
type compiled struct {
	templateID   string
	msgRegex     *regexp.Regexp
	hostRegex    *regexp.Regexp
	programRegex *regexp.Regexp
	// templateWide is true when both host and program patterns are unset,
	// meaning a match depends only on the message and therefore applies
	// uniformly to every event sharing the owning MessageTemplate's
	// canonical pattern.
	templateWide bool
}

// Index holds the compiled tuples for every system, guarded by mu. Rebuilt
// wholesale per system on Invalidate.
type Index struct {
	mu    sync.RWMutex
	store Store
	byKey map[string][]compiled // system_id -> tuples
}

// New builds an empty Index; call Invalidate(ctx, systemID) (or WarmAll) to
// populate it before first use.
func New(store Store) *Index {
	return &Index{store: store, byKey: map[string][]compiled{}}
}

// WarmAll loads every system's enabled templates at startup.
func (idx *Index) WarmAll(ctx context.Context) error {
	rows, err := idx.store.ListNormalBehaviorTemplates(ctx, "")
	if err != nil {
		return fmt.Errorf("warm suppressor index: %w", err)
	}
	grouped := map[string][]model.NormalBehaviorTemplate{}
	for _, t := range rows {
		grouped[t.SystemID] = append(grouped[t.SystemID], t)
	}
	built := map[string][]compiled{}
	for systemID, templates := range grouped {
		tuples, err := compileAll(templates)
		if err != nil {
			return err
		}
		built[systemID] = tuples
	}
	idx.mu.Lock()
	idx.byKey = built
	idx.mu.Unlock()
	return nil
}

// Invalidate reloads systemID's templates from the store and rebuilds its
// tuples under lock. Call after any add/delete/toggle.
func (idx *Index) Invalidate(ctx context.Context, systemID string) error {
	templates, err := idx.store.ListNormalBehaviorTemplates(ctx, systemID)
	if err != nil {
		return fmt.Errorf("invalidate suppressor index for %s: %w", systemID, err)
	}
	tuples, err := compileAll(templates)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	if len(tuples) == 0 {
		delete(idx.byKey, systemID)
	} else {
		idx.byKey[systemID] = tuples
	}
	idx.mu.Unlock()
	return nil
}

func compileAll(templates []model.NormalBehaviorTemplate) ([]compiled, error) {
	tuples := make([]compiled, 0, len(templates))
	for _, t := range templates {
		if !t.Enabled {
			continue
		}
		msgRe, err := regexp.Compile(t.PatternRegex)
		if err != nil {
			return nil, fmt.Errorf("compile pattern_regex for template %s: %w", t.ID, err)
		}
		c := compiled{templateID: t.ID, msgRegex: msgRe, templateWide: true}
		if t.HostPattern != "" {
			hostRe, err := regexp.Compile(t.HostPattern)
			if err != nil {
				return nil, fmt.Errorf("compile host_pattern for template %s: %w", t.ID, err)
			}
			c.hostRegex = hostRe
			c.templateWide = false
		}
		if t.ProgramPattern != "" {
			progRe, err := regexp.Compile(t.ProgramPattern)
			if err != nil {
				return nil, fmt.Errorf("compile program_pattern for template %s: %w", t.ID, err)
			}
			c.programRegex = progRe
			c.templateWide = false
		}
		tuples = append(tuples, c)
	}
	return tuples, nil
}

// Matches reports whether event is suppressed by any enabled template for its
// system: msgRegex matches the message AND (host regex unset or matches) AND
// (program regex unset or matches).
func (idx *Index) Matches(event model.Event) (matched bool, templateWide bool) {
	idx.mu.RLock()
	tuples := idx.byKey[event.SystemID]
	idx.mu.RUnlock()
	for _, c := range tuples {
		if !c.msgRegex.MatchString(event.Message) {
			continue
		}
		if c.hostRegex != nil && !c.hostRegex.MatchString(event.Host) {
			continue
		}
		if c.programRegex != nil && !c.programRegex.MatchString(event.Program) {
			continue
		}
		return true, c.templateWide
	}
	return false, false
}

// HasAny reports whether systemID has any enabled suppression template at
// all, letting the meta analyzer short-circuit "skip-zero-score-meta" windows
// without re-evaluating every event individually.
func (idx *Index) HasAny(systemID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byKey[systemID]) > 0
}
