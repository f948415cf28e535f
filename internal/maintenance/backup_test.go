package maintenance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginsight/internal/config"
)

func newTestBackupJob(t *testing.T) *BackupJob {
	t.Helper()
	dir := t.TempDir()
	return NewBackupJob("postgres://unused", config.MaintenanceConfig{BackupDir: dir, BackupRetentionCount: 2})
}

func TestBackupJob_List_EmptyDirReturnsNilNotError(t *testing.T) {
	b := newTestBackupJob(t)
	files, err := b.List()
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestBackupJob_List_MissingDirReturnsNilNotError(t *testing.T) {
	b := NewBackupJob("postgres://unused", config.MaintenanceConfig{BackupDir: filepath.Join(t.TempDir(), "does-not-exist")})
	files, err := b.List()
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestBackupJob_List_SortsNewestFirst(t *testing.T) {
	b := newTestBackupJob(t)
	old := filepath.Join(b.Dir(), "backup_old.dump")
	newer := filepath.Join(b.Dir(), "backup_new.dump")
	require.NoError(t, os.WriteFile(old, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("b"), 0o644))
	now := time.Now()
	require.NoError(t, os.Chtimes(old, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now, now))

	files, err := b.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "backup_new.dump", files[0].Name)
	assert.Equal(t, "backup_old.dump", files[1].Name)
}

func TestBackupJob_Delete_RejectsPathTraversal(t *testing.T) {
	b := newTestBackupJob(t)
	err := b.Delete("../../etc/passwd")
	assert.Error(t, err)

	err = b.Delete("sub/dir/file.dump")
	assert.Error(t, err)

	err = b.Delete("")
	assert.Error(t, err)
}

func TestBackupJob_Delete_RemovesExistingFile(t *testing.T) {
	b := newTestBackupJob(t)
	path := filepath.Join(b.Dir(), "backup_x.dump")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	require.NoError(t, b.Delete("backup_x.dump"))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestBackupJob_Delete_MissingFileErrors(t *testing.T) {
	b := newTestBackupJob(t)
	err := b.Delete("nonexistent.dump")
	assert.Error(t, err)
}

func TestBackupJob_PruneOld_KeepsOnlyMostRecentRetainCount(t *testing.T) {
	b := newTestBackupJob(t) // retain = 2
	now := time.Now()
	names := []string{"backup_1.dump", "backup_2.dump", "backup_3.dump", "backup_4.dump"}
	for i, n := range names {
		path := filepath.Join(b.Dir(), n)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		mtime := now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	require.NoError(t, b.pruneOld())

	files, err := b.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "backup_4.dump", files[0].Name)
	assert.Equal(t, "backup_3.dump", files[1].Name)
}

func TestBackupJob_PruneOld_FewerThanRetainIsNoOp(t *testing.T) {
	b := newTestBackupJob(t)
	path := filepath.Join(b.Dir(), "backup_only.dump")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, b.pruneOld())

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestNewBackupJob_Defaults(t *testing.T) {
	b := NewBackupJob("dsn", config.MaintenanceConfig{})
	assert.Equal(t, "custom", b.format)
	assert.Equal(t, "pg_dump", b.pgDumpPath)
	assert.Equal(t, 7, b.retain)
}
