package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

// parseRange reads from/to query params as RFC3339 (ISO-8601 UTC, per spec
// §6), defaulting to the last 24 hours when absent.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from, to := now.Add(-24*time.Hour), now
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from: " + err.Error())
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to: " + err.Error())
		}
		to = t
	}
	return from, to, nil
}

func parseLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// handleScoresSystems implements GET /scores/systems?from&to: per-system
// rolling-max effective scores per criterion.
func (s *Server) handleScoresSystems(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	scores, err := s.central.RollingMaxEffectiveScores(r.Context(), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"scores": scores})
}

// resolveCriterionID accepts either a criterion UUID or its slug, since the
// HTTP caller may hold either depending on which prior response it came from.
func (s *Server) resolveCriterionID(r *http.Request, raw string) (string, error) {
	criteria, err := s.central.ListCriteria(r.Context())
	if err != nil {
		return "", err
	}
	for _, c := range criteria {
		if c.ID == raw || c.Slug == raw {
			return c.ID, nil
		}
	}
	return raw, nil
}

// handleGroupedEventScores implements GET
// /systems/{id}/event-scores/grouped?criterion_id&min_score&show_acknowledged&limit.
func (s *Server) handleGroupedEventScores(w http.ResponseWriter, r *http.Request) {
	systemID := r.PathValue("systemID")
	q := r.URL.Query()
	criterionID, err := s.resolveCriterionID(r, q.Get("criterion_id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	minScore, _ := strconv.ParseFloat(q.Get("min_score"), 64)
	showAck := q.Get("show_acknowledged") == "true" || q.Get("show_acknowledged") == "1"
	limit := parseLimit(r, 200)

	rows, err := s.central.GroupedEventScores(r.Context(), systemID, criterionID, minScore, showAck, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"groups": rows})
}

// handleGroupEvents implements GET
// /systems/{id}/event-scores/grouped/{group_key}/events?limit. The grouped
// score rows always come from the central Postgres store, but the raw events
// backing a group live wherever the system's EventSource routes them, so this
// resolves the system's backend rather than assuming Postgres.
func (s *Server) handleGroupEvents(w http.ResponseWriter, r *http.Request) {
	systemID := r.PathValue("systemID")
	groupKey := r.PathValue("groupKey")
	limit := parseLimit(r, 200)

	system, err := s.central.GetSystem(r.Context(), systemID)
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	es, err := s.backend.For(system)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	events, err := es.GroupEvents(r.Context(), systemID, groupKey, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleWindowMeta implements GET /windows/{id}/meta.
func (s *Server) handleWindowMeta(w http.ResponseWriter, r *http.Request) {
	windowID := r.PathValue("windowID")
	meta, ok, err := s.central.WindowMeta(r.Context(), windowID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("window not found"))
		return
	}
	respondJSON(w, http.StatusOK, meta)
}
