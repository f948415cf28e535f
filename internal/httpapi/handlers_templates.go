package httpapi

import (
	"errors"
	"net/http"
)

// handleTemplateCacheFlush implements POST
// /systems/{id}/templates/cache-flush: the operator-triggered cache flush
// from spec §4.B, zeroing every template's cached score vector for the
// system both durably and in the Redis front cache.
func (s *Server) handleTemplateCacheFlush(w http.ResponseWriter, r *http.Request) {
	systemID := r.PathValue("systemID")
	if _, err := s.central.GetSystem(r.Context(), systemID); err != nil {
		respondError(w, statusFromError(err), errors.New("system not found"))
		return
	}
	if err := s.templates.Flush(r.Context(), systemID); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"flushed": true})
}
