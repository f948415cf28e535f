package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginsight/internal/config"
	"loginsight/internal/model"
	"loginsight/internal/store"
)

type fakeMaintStore struct {
	mu   sync.Mutex
	logs []store.MaintenanceLog
}

func (f *fakeMaintStore) ListActiveSystems(ctx context.Context) ([]model.MonitoredSystem, error) {
	return nil, nil
}
func (f *fakeMaintStore) EnsurePartition(ctx context.Context, monthStart time.Time) (bool, error) {
	return false, nil
}
func (f *fakeMaintStore) DropPartition(ctx context.Context, monthStart time.Time) (int, error) {
	return 0, nil
}
func (f *fakeMaintStore) VacuumTables(ctx context.Context, tables []string) []string  { return nil }
func (f *fakeMaintStore) ReindexIndexes(ctx context.Context, indexes []string) []string { return nil }
func (f *fakeMaintStore) OrphanWindows(ctx context.Context, olderThan time.Time) ([]string, error) {
	return nil, nil
}
func (f *fakeMaintStore) DeleteWindows(ctx context.Context, ids []string) error { return nil }
func (f *fakeMaintStore) OrphanTemplates(ctx context.Context, systemID string) ([]string, error) {
	return nil, nil
}
func (f *fakeMaintStore) DeleteTemplates(ctx context.Context, ids []string) error { return nil }
func (f *fakeMaintStore) InsertMaintenanceLog(ctx context.Context, m store.MaintenanceLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, m)
	return nil
}

func TestScheduler_RunOnce_InsertsOneLogRow(t *testing.T) {
	fs := &fakeMaintStore{}
	s := NewScheduler(fs, nil, nil, config.MaintenanceConfig{})

	log, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, log.FinishedAt.Before(log.StartedAt))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Len(t, fs.logs, 1)
}

func TestScheduler_RunOnce_RejectsOverlap(t *testing.T) {
	fs := &fakeMaintStore{}
	s := NewScheduler(fs, nil, nil, config.MaintenanceConfig{})
	s.running.Store(true)

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrTickInFlight)
}

func TestScheduler_BackupDue_TrueWhenNeverRun(t *testing.T) {
	s := NewScheduler(&fakeMaintStore{}, nil, nil, config.MaintenanceConfig{BackupIntervalHours: 24})
	assert.True(t, s.backupDue())
}

func TestScheduler_BackupDue_FalseRightAfterRunning(t *testing.T) {
	s := NewScheduler(&fakeMaintStore{}, nil, nil, config.MaintenanceConfig{BackupIntervalHours: 24})
	s.lastBackup.Store(s.now().Unix())
	assert.False(t, s.backupDue())
}

func TestScheduler_BackupDue_TrueAfterIntervalElapsed(t *testing.T) {
	s := NewScheduler(&fakeMaintStore{}, nil, nil, config.MaintenanceConfig{BackupIntervalHours: 1})
	s.lastBackup.Store(time.Now().Add(-2 * time.Hour).Unix())
	assert.True(t, s.backupDue())
}

func TestScheduler_ConfigAndBackupAccessors(t *testing.T) {
	cfg := config.MaintenanceConfig{BackupIntervalHours: 5}
	s := NewScheduler(&fakeMaintStore{}, nil, nil, cfg)
	assert.Equal(t, cfg, s.Config())
	assert.Nil(t, s.Backup())
}
