package httpapi

import (
	"errors"
	"net/http"
)

// handleReEvaluate implements POST /systems/{id}/re-evaluate: starts a
// tracked background job rather than blocking on a full scoring+meta pass
// (spec §9 REDESIGN FLAG).
func (s *Server) handleReEvaluate(w http.ResponseWriter, r *http.Request) {
	systemID := r.PathValue("systemID")
	system, err := s.central.GetSystem(r.Context(), systemID)
	if err != nil {
		respondError(w, statusFromError(err), errors.New("system not found"))
		return
	}
	jobID := s.jobs.Start(system)
	respondJSON(w, http.StatusAccepted, map[string]any{"jobId": jobID})
}

// handleReEvaluateStatus implements GET /systems/{id}/re-evaluate/{jobId}.
func (s *Server) handleReEvaluateStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	status, ok := s.jobs.Status(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("job not found"))
		return
	}
	respondJSON(w, http.StatusOK, status)
}
