package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
)

// handleConfigGet returns a closure serving the current value of one
// operator-mutable app_config key verbatim, defaulting to an empty object
// when the key has never been set (it's populated lazily by the first PUT).
func (s *Server) handleConfigGet(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok, err := s.central.AppConfigGetRaw(r.Context(), key)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			raw = []byte("{}")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}

// handleConfigPut returns a closure that validates the request body as JSON,
// persists it under key, and invalidates the Resolver's cached copy so the
// next pipeline tick sees the new value without waiting out the TTL.
func (s *Server) handleConfigPut(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		var probe json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.central.AppConfigPut(r.Context(), key, probe); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		s.resolver.Invalidate(key)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}
