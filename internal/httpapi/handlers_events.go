package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

type bulkDeleteRequest struct {
	Confirmation string     `json:"confirmation"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	SystemID     string     `json:"system_id,omitempty"`
}

// handleBulkDeleteEvents implements POST /events/bulk-delete: requires an
// explicit "YES" confirmation and at least one selector (spec: "rejects empty
// selector"), so an empty body can never wipe every event in the store.
func (s *Server) handleBulkDeleteEvents(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Confirmation != "YES" {
		respondError(w, http.StatusBadRequest, errors.New("confirmation must be \"YES\""))
		return
	}
	if req.SystemID == "" && req.From == nil && req.To == nil {
		respondError(w, http.StatusBadRequest, errors.New("bulk delete requires at least one of system_id, from, to"))
		return
	}

	var from, to time.Time
	if req.From != nil {
		from = *req.From
	}
	if req.To != nil {
		to = *req.To
	}
	deleted, cleaned, err := s.central.BulkDeleteBySelector(r.Context(), req.SystemID, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted_events":  deleted,
		"cleaned_windows": cleaned,
	})
}
