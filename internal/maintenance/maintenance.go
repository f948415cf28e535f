// Package maintenance implements the Maintenance Scheduler (spec §4.I) and
// Backup Job (spec §4.J): partition management, per-system retention, orphan
// cleanup, VACUUM/REINDEX, and an optional pg_dump-based backup, all run on a
// fixed interval and recorded to a MaintenanceLog row.
package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"loginsight/internal/config"
	"loginsight/internal/model"
	"loginsight/internal/store"
)

// hotTables and hotIndexes are the fixed lists spec §4.I's VACUUM/REINDEX
// steps operate over; these are the tables/indexes the pipeline writes to on
// every tick and so accumulate the most bloat.
var (
	hotTables  = []string{"events", "event_scores", "windows", "effective_scores", "findings"}
	hotIndexes = []string{
		"events_system_ts_idx",
		"event_scores_pkey",
		"findings_system_status_idx",
	}
)

// Store is the subset of internal/store.Postgres the Maintenance Scheduler
// needs beyond per-system EventStore access.
type Store interface {
	ListActiveSystems(ctx context.Context) ([]model.MonitoredSystem, error)
	EnsurePartition(ctx context.Context, monthStart time.Time) (bool, error)
	DropPartition(ctx context.Context, monthStart time.Time) (int, error)
	VacuumTables(ctx context.Context, tables []string) []string
	ReindexIndexes(ctx context.Context, indexes []string) []string
	OrphanWindows(ctx context.Context, olderThan time.Time) ([]string, error)
	DeleteWindows(ctx context.Context, ids []string) error
	OrphanTemplates(ctx context.Context, systemID string) ([]string, error)
	DeleteTemplates(ctx context.Context, ids []string) error
	InsertMaintenanceLog(ctx context.Context, m store.MaintenanceLog) error
}

// Scheduler drives one maintenance tick at a time; a tick that fires while
// the previous is still running is skipped (spec: "a mutex prevents
// overlapping runs").
type Scheduler struct {
	store   Store
	backend *store.BackendFactory
	backup  *BackupJob
	cfg     config.MaintenanceConfig
	now     func() time.Time

	running    atomic.Bool
	lastBackup atomic.Int64 // unix seconds, 0 = never
}

// NewScheduler builds a Maintenance Scheduler over store/backend, optionally
// running backups via backup (nil disables §4.J entirely).
func NewScheduler(s Store, backend *store.BackendFactory, backup *BackupJob, cfg config.MaintenanceConfig) *Scheduler {
	return &Scheduler{store: s, backend: backend, backup: backup, cfg: cfg, now: time.Now}
}

// Run blocks, ticking every maintenance_interval_hours until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.IntervalHours
	if interval <= 0 {
		interval = 6
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Hour)
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

// ErrTickInFlight is returned by RunOnce when a tick (ticked or
// operator-triggered) is already running.
var ErrTickInFlight = errors.New("maintenance: a run is already in progress")

// RunOnce runs one maintenance pass synchronously and returns its log row,
// for POST /maintenance/run. It shares the same overlap guard as the ticker
// loop, so an operator-triggered run and a scheduled tick never overlap.
func (s *Scheduler) RunOnce(ctx context.Context) (store.MaintenanceLog, error) {
	if !s.running.CompareAndSwap(false, true) {
		return store.MaintenanceLog{}, ErrTickInFlight
	}
	defer s.running.Store(false)
	return s.runLocked(ctx), nil
}

// tick runs one full maintenance pass, skipping if a previous pass is still
// in flight.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		log.Warn().Msg("maintenance_tick_skipped_overlap")
		return
	}
	defer s.running.Store(false)
	s.runLocked(ctx)
}

// runLocked performs one maintenance pass; callers must hold s.running.
func (s *Scheduler) runLocked(ctx context.Context) store.MaintenanceLog {
	started := s.now().UTC()
	m := store.MaintenanceLog{StartedAt: started}

	added, dropped, err := s.managePartitions(ctx)
	m.PartitionsAdded, m.PartitionsDropped = added, dropped
	if err != nil {
		log.Error().Err(err).Msg("maintenance_partitions_error")
	}

	m.DeletedEvents = s.applyRetention(ctx)

	if err := s.cleanupOrphans(ctx); err != nil {
		log.Error().Err(err).Msg("maintenance_orphan_cleanup_error")
	}

	m.VacuumErrors = s.store.VacuumTables(ctx, hotTables)
	m.ReindexErrors = s.store.ReindexIndexes(ctx, hotIndexes)

	if s.backup != nil && s.cfg.BackupEnabled && s.backupDue() {
		path, err := s.backup.Run(ctx)
		if err != nil {
			m.BackupError = err.Error()
			log.Error().Err(err).Msg("maintenance_backup_error")
		} else {
			m.BackupPath = path
			s.lastBackup.Store(s.now().Unix())
		}
	}

	m.FinishedAt = s.now().UTC()
	if err := s.store.InsertMaintenanceLog(ctx, m); err != nil {
		log.Error().Err(err).Msg("maintenance_log_insert_error")
	}
	return m
}

// Backup returns the Scheduler's BackupJob, or nil if backups are disabled
// entirely (no BackupJob was wired at startup).
func (s *Scheduler) Backup() *BackupJob { return s.backup }

// Config returns the maintenance tuning this Scheduler runs with, for GET
// /maintenance/backup/config.
func (s *Scheduler) Config() config.MaintenanceConfig { return s.cfg }

func (s *Scheduler) backupDue() bool {
	interval := s.cfg.BackupIntervalHours
	if interval <= 0 {
		interval = 24
	}
	last := s.lastBackup.Load()
	if last == 0 {
		return true
	}
	return s.now().Sub(time.Unix(last, 0)) >= time.Duration(interval)*time.Hour
}
