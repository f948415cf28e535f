package httpapi

import (
	"errors"
	"net/http"
	"path/filepath"

	"loginsight/internal/maintenance"
)

// handleMaintenanceRun implements POST /maintenance/run: a synchronous
// MaintenanceRunResult, sharing the Scheduler's overlap guard with its own
// ticker so an operator-triggered run never races a scheduled one.
func (s *Server) handleMaintenanceRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.maintenance.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, maintenance.ErrTickInFlight) {
			w.Header().Set("Retry-After", "30")
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleBackupConfig implements GET /maintenance/backup/config.
func (s *Server) handleBackupConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.maintenance.Config())
}

// handleBackupTrigger implements POST /maintenance/backup/trigger.
func (s *Server) handleBackupTrigger(w http.ResponseWriter, r *http.Request) {
	backup := s.maintenance.Backup()
	if backup == nil {
		respondError(w, http.StatusBadRequest, errors.New("backups are disabled"))
		return
	}
	path, err := backup.Run(r.Context())
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "path": path})
}

// handleBackupList implements GET /maintenance/backup/list.
func (s *Server) handleBackupList(w http.ResponseWriter, r *http.Request) {
	backup := s.maintenance.Backup()
	if backup == nil {
		respondJSON(w, http.StatusOK, map[string]any{"backups": []any{}})
		return
	}
	files, err := backup.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"backups": files})
}

// handleBackupDownload implements GET /maintenance/backup/download/{name},
// streaming the file directly rather than loading it into memory.
func (s *Server) handleBackupDownload(w http.ResponseWriter, r *http.Request) {
	backup := s.maintenance.Backup()
	name := r.PathValue("name")
	if backup == nil || name == "" || filepath.Base(name) != name {
		respondError(w, http.StatusNotFound, errors.New("backup not found"))
		return
	}
	http.ServeFile(w, r, filepath.Join(backup.Dir(), name))
}

// handleBackupDelete implements DELETE /maintenance/backup/{name}.
func (s *Server) handleBackupDelete(w http.ResponseWriter, r *http.Request) {
	backup := s.maintenance.Backup()
	name := r.PathValue("name")
	if backup == nil {
		respondError(w, http.StatusNotFound, errors.New("backups are disabled"))
		return
	}
	if err := backup.Delete(name); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": name})
}
