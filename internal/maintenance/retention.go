package maintenance

import (
	"context"

	"github.com/rs/zerolog/log"
)

// retentionChunkSize bounds how many rows DeleteOlderThan removes per
// transaction, matching the batching spec §4.I.2 requires.
const retentionChunkSize = 5000

// applyRetention deletes events (and cascaded scores) older than each
// system's own retention_days, falling back to default_retention_days. One
// system's failure is logged and does not block the others.
func (s *Scheduler) applyRetention(ctx context.Context) int {
	systems, err := s.store.ListActiveSystems(ctx)
	if err != nil {
		log.Error().Err(err).Msg("maintenance_retention_list_systems_error")
		return 0
	}

	def := s.cfg.DefaultRetentionDays
	if def <= 0 {
		def = 90
	}

	total := 0
	for _, sys := range systems {
		days := def
		if sys.RetentionDays != nil {
			days = *sys.RetentionDays
		}
		cutoff := s.now().UTC().AddDate(0, 0, -days)

		es, err := s.backend.For(sys)
		if err != nil {
			log.Error().Err(err).Str("system_id", sys.ID).Msg("maintenance_retention_backend_error")
			continue
		}
		n, err := es.DeleteOlderThan(ctx, sys.ID, cutoff, retentionChunkSize)
		if err != nil {
			log.Error().Err(err).Str("system_id", sys.ID).Msg("maintenance_retention_delete_error")
			continue
		}
		total += n
	}
	return total
}
