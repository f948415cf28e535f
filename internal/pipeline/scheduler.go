package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"loginsight/internal/model"
)

// SystemLister resolves the active systems a Scheduler tick fans out across.
type SystemLister interface {
	ListActiveSystems(ctx context.Context) ([]model.MonitoredSystem, error)
}

// Scheduler runs the Scoring Loop and Meta Analyzer on a fixed period, fanning
// out across every active MonitoredSystem up to max_parallel_systems. Mirrors
// the teacher's worker-pool fan-out in orchestrator.StartKafkaConsumer, traded
// for errgroup.SetLimit since work here is per-system rather than per-message.
type Scheduler struct {
	deps    Deps
	systems SystemLister
	scoring *ScoringLoop
	meta    *MetaAnalyzer
}

// NewScheduler builds a Scheduler over deps, listing systems via systems.
func NewScheduler(deps Deps, systems SystemLister) *Scheduler {
	return &Scheduler{
		deps:    deps,
		systems: systems,
		scoring: NewScoringLoop(deps),
		meta:    NewMetaAnalyzer(deps),
	}
}

// Scoring returns the ScoringLoop this Scheduler ticks, so callers (e.g.
// internal/httpapi's re-evaluate endpoint) can build a JobTracker that reuses
// the exact same instance rather than constructing a second one over the
// same Deps.
func (s *Scheduler) Scoring() *ScoringLoop { return s.scoring }

// Meta returns the MetaAnalyzer this Scheduler ticks, for the same reason as Scoring.
func (s *Scheduler) Meta() *MetaAnalyzer { return s.meta }

// Run blocks, ticking every pipeline_interval_minutes until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.deps.Pipeline.IntervalMinutes
	if interval <= 0 {
		interval = 5
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Minute)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one pipeline pass across every active system, logging but not
// propagating per-system failures so one bad system never blocks the rest.
func (s *Scheduler) tick(ctx context.Context) {
	systems, err := s.systems.ListActiveSystems(ctx)
	if err != nil {
		log.Error().Err(err).Msg("pipeline_list_active_systems_error")
		return
	}

	limit := s.deps.Pipeline.MaxParallelSystems
	if limit <= 0 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, system := range systems {
		system := system
		g.Go(func() error {
			s.runSystem(gctx, system)
			return nil
		})
	}
	_ = g.Wait()
}

// runSystem runs the Scoring Loop then the Meta Analyzer for one system,
// sequentially: spec §5 requires scoring to precede meta-analysis for the
// same window within a system.
func (s *Scheduler) runSystem(ctx context.Context, system model.MonitoredSystem) {
	if err := s.scoring.Run(ctx, system); err != nil {
		log.Error().Err(err).Str("system_id", system.ID).Msg("pipeline_scoring_loop_error")
		return
	}
	if err := s.meta.Run(ctx, system); err != nil {
		log.Error().Err(err).Str("system_id", system.ID).Msg("pipeline_meta_analyzer_error")
	}
}
