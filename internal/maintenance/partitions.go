package maintenance

import (
	"context"
	"fmt"
	"time"
)

// partitionsAhead is how many future months' partitions managePartitions
// keeps pre-created (spec §4.I: "current and next 3 months").
const partitionsAhead = 3

// managePartitions ensures the current and next partitionsAhead months'
// event partitions exist, then drops any partition whose range has fully
// aged past every system's configured retention (the longest one wins, so a
// partition is never dropped while a system still needs rows in it).
func (s *Scheduler) managePartitions(ctx context.Context) (added, dropped int, err error) {
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i <= partitionsAhead; i++ {
		created, err := s.store.EnsurePartition(ctx, monthStart.AddDate(0, i, 0))
		if err != nil {
			return added, dropped, fmt.Errorf("ensure partition: %w", err)
		}
		if created {
			added++
		}
	}

	cutoff := now.AddDate(0, 0, -s.globalRetentionDays(ctx))
	// Walk backward from a generous horizon; DropPartition is a no-op
	// (IF EXISTS) for months that were never created.
	for i := 1; i <= 36; i++ {
		candidate := monthStart.AddDate(0, -i, 0)
		rangeEnd := candidate.AddDate(0, 1, 0)
		if !rangeEnd.Before(cutoff) {
			continue
		}
		n, err := s.store.DropPartition(ctx, candidate)
		if err != nil {
			return added, dropped, fmt.Errorf("drop partition: %w", err)
		}
		if n > 0 {
			dropped++
		}
	}
	return added, dropped, nil
}

// globalRetentionDays is the longest retention_days any active system
// requires, falling back to default_retention_days when no system overrides
// it or the lookup fails.
func (s *Scheduler) globalRetentionDays(ctx context.Context) int {
	longest := s.cfg.DefaultRetentionDays
	if longest <= 0 {
		longest = 90
	}
	systems, err := s.store.ListActiveSystems(ctx)
	if err != nil {
		return longest
	}
	for _, sys := range systems {
		if sys.RetentionDays != nil && *sys.RetentionDays > longest {
			longest = *sys.RetentionDays
		}
	}
	return longest
}
