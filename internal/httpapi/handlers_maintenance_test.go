package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginsight/internal/authn"
	"loginsight/internal/config"
	"loginsight/internal/maintenance"
	"loginsight/internal/model"
	"loginsight/internal/store"
)

type fakeMaintStore struct{}

func (f *fakeMaintStore) ListActiveSystems(ctx context.Context) ([]model.MonitoredSystem, error) {
	return nil, nil
}
func (f *fakeMaintStore) EnsurePartition(ctx context.Context, monthStart time.Time) (bool, error) {
	return false, nil
}
func (f *fakeMaintStore) DropPartition(ctx context.Context, monthStart time.Time) (int, error) {
	return 0, nil
}
func (f *fakeMaintStore) VacuumTables(ctx context.Context, tables []string) []string    { return nil }
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
	return nil
}

func newTestServer(t *testing.T, backup *maintenance.BackupJob) *Server {
	t.Helper()
	sched := maintenance.NewScheduler(&fakeMaintStore{}, nil, backup, config.MaintenanceConfig{})
	verifier, err := authn.NewVerifier(context.Background(), config.OIDCConfig{Disabled: true})
	require.NoError(t, err)
	return NewServer(nil, nil, nil, sched, nil, verifier, nil)
}

func TestHandleMaintenanceRun_ReturnsOK(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/run", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleBackupConfig_ReturnsSchedulerConfig(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/maintenance/backup/config", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleBackupList_NilBackupReturnsEmptyList(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/maintenance/backup/list", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backups":[]`)
}

func TestHandleBackupTrigger_NilBackupIsBadRequest(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/backup/trigger", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBackupDelete_RemovesFileWhenBackupConfigured(t *testing.T) {
	dir := t.TempDir()
	backup := maintenance.NewBackupJob("unused", config.MaintenanceConfig{BackupDir: dir})
	path := filepath.Join(dir, "backup_x.dump")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	s := newTestServer(t, backup)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/maintenance/backup/backup_x.dump", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestHandleBackupDelete_NilBackupIsNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/maintenance/backup/whatever.dump", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleBackupDownload_PathTraversalNameIsNotFound(t *testing.T) {
	dir := t.TempDir()
	backup := maintenance.NewBackupJob("unused", config.MaintenanceConfig{BackupDir: dir})
	s := newTestServer(t, backup)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/maintenance/backup/download/x", nil)
	req.SetPathValue("name", "../../etc/passwd")
	rec := httptest.NewRecorder()

	s.handleBackupDownload(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
