package httpapi

import (
	"net/http"

	"loginsight/internal/model"
)

// handleListFindings implements GET /systems/{id}/findings?status&limit.
func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	systemID := r.PathValue("systemID")
	status := r.URL.Query().Get("status")
	limit := parseLimit(r, 200)

	found, err := s.central.ListFindings(r.Context(), systemID, status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"findings": found})
}

// handleAcknowledgeFinding implements POST /findings/{id}/acknowledge.
func (s *Server) handleAcknowledgeFinding(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("findingID")
	if err := s.central.SetFindingStatus(r.Context(), id, model.FindingAcknowledged); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": model.FindingAcknowledged})
}

// handleReopenFinding implements POST /findings/{id}/reopen: an idempotent
// transition back to "open" regardless of the finding's current status
// (spec §7: "idempotent endpoints treat missing target as success where
// semantically safe").
func (s *Server) handleReopenFinding(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("findingID")
	if err := s.central.SetFindingStatus(r.Context(), id, model.FindingOpen); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": model.FindingOpen})
}
