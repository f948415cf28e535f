package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"loginsight/internal/model"
)

// orphanWindowAge is how long a Window must sit without an EffectiveScore
// row before it's considered abandoned (the meta-analysis call that should
// have populated it never completed) rather than merely in flight.
const orphanWindowAge = time.Hour

// cleanupOrphans removes Windows with no EffectiveScore row for every system,
// whatever its EventSource (window cleanup is not limited to primary-backed
// systems), and, for primary-backed systems only, message templates no event
// references.
// Expired-session cleanup is delegated to the stateless OIDC auth layer,
// which holds no server-side session store for this scheduler to prune.
func (s *Scheduler) cleanupOrphans(ctx context.Context) error {
	olderThan := s.now().UTC().Add(-orphanWindowAge)
	windowIDs, err := s.store.OrphanWindows(ctx, olderThan)
	if err != nil {
		return err
	}
	if len(windowIDs) > 0 {
		if err := s.store.DeleteWindows(ctx, windowIDs); err != nil {
			return err
		}
	}

	systems, err := s.store.ListActiveSystems(ctx)
	if err != nil {
		return err
	}
	for _, sys := range systems {
		if sys.EventSource != model.EventSourcePrimary && sys.EventSource != "" {
			continue
		}
		ids, err := s.store.OrphanTemplates(ctx, sys.ID)
		if err != nil {
			log.Error().Err(err).Str("system_id", sys.ID).Msg("maintenance_orphan_templates_error")
			continue
		}
		if len(ids) == 0 {
			continue
		}
		if err := s.store.DeleteTemplates(ctx, ids); err != nil {
			log.Error().Err(err).Str("system_id", sys.ID).Msg("maintenance_delete_templates_error")
		}
	}
	return nil
}
