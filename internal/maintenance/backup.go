package maintenance

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"loginsight/internal/config"
	"loginsight/internal/objectstore"
)

// BackupJob implements spec §4.J: a timestamped pg_dump invocation in either
// native custom (binary, self-compressed) or plain-SQL-piped-through-gzip
// format, with retention pruning by mtime. When remote is non-nil, every
// successful dump is also uploaded there (spec's domain stack: S3-compatible
// off-box retention for disaster recovery, independent of BackupRetentionCount's
// local pruning).
type BackupJob struct {
	dsn        string
	dir        string
	format     string // "custom" | "plain"
	pgDumpPath string
	retain     int
	remote     objectstore.ObjectStore
	now        func() time.Time
}

// NewBackupJob builds a BackupJob targeting dsn, writing into cfg.BackupDir.
func NewBackupJob(dsn string, cfg config.MaintenanceConfig) *BackupJob {
	format := cfg.BackupFormat
	if format == "" {
		format = "custom"
	}
	pgDump := cfg.PgDumpPath
	if pgDump == "" {
		pgDump = "pg_dump"
	}
	retain := cfg.BackupRetentionCount
	if retain <= 0 {
		retain = 7
	}
	return &BackupJob{dsn: dsn, dir: cfg.BackupDir, format: format, pgDumpPath: pgDump, retain: retain, now: time.Now}
}

// WithRemote attaches an object-storage target that every future Run uploads
// its dump to, returning b for chaining at construction time.
func (b *BackupJob) WithRemote(remote objectstore.ObjectStore) *BackupJob {
	b.remote = remote
	return b
}

// Run produces one backup file and prunes old ones, returning the new file's
// path. A failed run removes any partial file it created. A failed remote
// upload is logged but doesn't fail the run: the local dump still exists and
// a later Run will simply upload a newer one.
func (b *BackupJob) Run(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("backup: create dir: %w", err)
	}

	stamp := b.now().UTC().Format("2006-01-02_15-04-05")
	var path string
	var err error
	switch b.format {
	case "plain":
		path = filepath.Join(b.dir, fmt.Sprintf("backup_%s.sql.gz", stamp))
		err = b.runPlain(ctx, path)
	default:
		path = filepath.Join(b.dir, fmt.Sprintf("backup_%s.dump", stamp))
		err = b.runCustom(ctx, path)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}

	if b.remote != nil {
		if err := b.uploadRemote(ctx, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("backup_remote_upload_failed")
		}
	}

	if err := b.pruneOld(); err != nil {
		return path, fmt.Errorf("backup: prune: %w", err)
	}
	return path, nil
}

// uploadRemote streams the dump at path to the remote object store under its
// base filename, so a lifecycle rule on the bucket/prefix can apply its own
// independent retention.
func (b *BackupJob) uploadRemote(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for remote upload: %w", err)
	}
	defer f.Close()
	_, err = b.remote.Put(ctx, filepath.Base(path), f, objectstore.PutOptions{})
	return err
}

// runCustom invokes pg_dump -Fc, pg_dump's own binary compressed format.
func (b *BackupJob) runCustom(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, b.pgDumpPath, "--dbname="+b.dsn, "--format=custom", "--file="+path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pg_dump custom format failed: %w: %s", err, stderr.String())
	}
	return nil
}

// runPlain invokes pg_dump --format=plain to stdout and pipes it through
// gzip into path, for environments where a plain-text dump is preferred
// (e.g. easier to diff or inspect without pg_restore).
func (b *BackupJob) runPlain(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, b.pgDumpPath, "--dbname="+b.dsn, "--format=plain")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pg_dump stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer out.Close()
	gz := gzip.NewWriter(out)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("pg_dump start: %w", err)
	}
	if _, err := io.Copy(gz, stdout); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("pg_dump stream copy: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("pg_dump plain format failed: %w: %s", err, stderr.String())
	}
	return nil
}

// BackupFile describes one file in the backup directory, for GET
// /maintenance/backup/list.
type BackupFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Dir returns the directory backups are written to, for a download handler
// to resolve a requested filename against.
func (b *BackupJob) Dir() string { return b.dir }

// List returns every backup file in dir, newest first.
func (b *BackupJob) List() ([]BackupFile, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list backups: %w", err)
	}
	var out []BackupFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupFile{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// Delete removes one backup file by name (not path — callers must not pass a
// path separator through from an HTTP path parameter).
func (b *BackupJob) Delete(name string) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("backup: invalid filename %q", name)
	}
	if err := os.Remove(filepath.Join(b.dir, name)); err != nil {
		return fmt.Errorf("delete backup %s: %w", name, err)
	}
	return nil
}

// pruneOld keeps the retain most recent backup files in dir by mtime,
// removing the rest.
func (b *BackupJob) pruneOld() error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}
	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(b.dir, e.Name()), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	if len(files) <= b.retain {
		return nil
	}
	for _, f := range files[b.retain:] {
		if err := os.Remove(f.path); err != nil {
			return fmt.Errorf("remove old backup %s: %w", f.path, err)
		}
	}
	return nil
}
