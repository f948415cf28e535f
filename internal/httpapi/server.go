// Package httpapi exposes the HTTP/JSON API (spec §6): a versioned
// /api/v1 surface over aggregated scores, findings, maintenance, and the
// operator-mutable app_config settings. Input log parsing, the dashboard UI,
// and user/role/session management are explicit non-goals served elsewhere;
// this package only implements the interfaces those collaborators consume.
package httpapi

import (
	"context"
	"net/http"

	"loginsight/internal/authn"
	"loginsight/internal/config"
	"loginsight/internal/maintenance"
	"loginsight/internal/pipeline"
	"loginsight/internal/store"
)

// TemplateCache is the subset of internal/templates.Manager the HTTP API
// needs for the operator-triggered cache-flush endpoint.
type TemplateCache interface {
	Flush(ctx context.Context, systemID string) error
}

// Server wires the HTTP surface to the store, pipeline, and maintenance
// layers. auth must be non-nil, since every mutating route is wrapped in its
// Middleware; for local development authn.NewVerifier returns a verifier
// whose Middleware is a no-op when OIDC is disabled.
// Finding reconciliation itself is owned by internal/pipeline (the Meta
// Analyzer's Deps.Findings), not this layer: the HTTP API
// only reads/transitions already-persisted findings through central.
type Server struct {
	central     *store.Postgres
	backend     *store.BackendFactory
	jobs        *pipeline.JobTracker
	maintenance *maintenance.Scheduler
	resolver    *config.Resolver
	auth        *authn.Verifier
	templates   TemplateCache

	mux *http.ServeMux
}

// NewServer builds the HTTP API server and registers every route.
func NewServer(central *store.Postgres, backend *store.BackendFactory,
	jobs *pipeline.JobTracker, maint *maintenance.Scheduler, resolver *config.Resolver, auth *authn.Verifier,
	templates TemplateCache) *Server {
	s := &Server{
		central:     central,
		backend:     backend,
		jobs:        jobs,
		maintenance: maint,
		resolver:    resolver,
		auth:        auth,
		templates:   templates,
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// mutating wraps a state-changing handler with bearer-token verification
// (spec §6: "all state-mutating endpoints require an authenticated
// principal"). Read endpoints are registered directly, unwrapped.
func (s *Server) mutating(h http.HandlerFunc) http.Handler {
	return s.auth.Middleware(h)
}

func (s *Server) registerRoutes() {
	// Scores
	s.mux.HandleFunc("GET /api/v1/scores/systems", s.handleScoresSystems)
	s.mux.HandleFunc("GET /api/v1/systems/{systemID}/event-scores/grouped", s.handleGroupedEventScores)
	s.mux.HandleFunc("GET /api/v1/systems/{systemID}/event-scores/grouped/{groupKey}/events", s.handleGroupEvents)
	s.mux.HandleFunc("GET /api/v1/windows/{windowID}/meta", s.handleWindowMeta)

	// Events
	s.mux.Handle("POST /api/v1/events/bulk-delete", s.mutating(s.handleBulkDeleteEvents))

	// Findings
	s.mux.HandleFunc("GET /api/v1/systems/{systemID}/findings", s.handleListFindings)
	s.mux.Handle("POST /api/v1/findings/{findingID}/acknowledge", s.mutating(s.handleAcknowledgeFinding))
	s.mux.Handle("POST /api/v1/findings/{findingID}/reopen", s.mutating(s.handleReopenFinding))

	// Re-evaluate
	s.mux.Handle("POST /api/v1/systems/{systemID}/re-evaluate", s.mutating(s.handleReEvaluate))
	s.mux.HandleFunc("GET /api/v1/systems/{systemID}/re-evaluate/{jobID}", s.handleReEvaluateStatus)

	// Template cache
	s.mux.Handle("POST /api/v1/systems/{systemID}/templates/cache-flush", s.mutating(s.handleTemplateCacheFlush))

	// Maintenance
	s.mux.Handle("POST /api/v1/maintenance/run", s.mutating(s.handleMaintenanceRun))
	s.mux.HandleFunc("GET /api/v1/maintenance/backup/config", s.handleBackupConfig)
	s.mux.Handle("POST /api/v1/maintenance/backup/trigger", s.mutating(s.handleBackupTrigger))
	s.mux.HandleFunc("GET /api/v1/maintenance/backup/list", s.handleBackupList)
	s.mux.HandleFunc("GET /api/v1/maintenance/backup/download/{name}", s.handleBackupDownload)
	s.mux.Handle("DELETE /api/v1/maintenance/backup/{name}", s.mutating(s.handleBackupDelete))

	// Operator-mutable app_config settings: one GET/PUT pair per key.
	s.registerConfigRoutes("ai-config", config.KeyAIConfig)
	s.registerConfigRoutes("ai-prompts", config.KeyPrompts)
	s.registerConfigRoutes("ai-prompts/criterion-guidelines", config.KeyCriterionGuidelines)
	s.registerConfigRoutes("token-optimization", config.KeyTokenOptimization)
	s.registerConfigRoutes("meta-analysis-config", config.KeyMetaAnalysisConfig)
	s.registerConfigRoutes("dashboard-config", config.KeyDashboard)
	s.registerConfigRoutes("pipeline-config", config.KeyPipelineConfig)
	s.registerConfigRoutes("task-model-config", config.KeyTaskModelConfig)
	s.registerConfigRoutes("privacy-config", config.KeyPrivacyFilter)
}

// registerConfigRoutes registers the GET/PUT pair for one operator-mutable
// app_config key under /api/v1/<path>.
func (s *Server) registerConfigRoutes(path, key string) {
	s.mux.HandleFunc("GET /api/v1/"+path, s.handleConfigGet(key))
	s.mux.Handle("PUT /api/v1/"+path, s.mutating(s.handleConfigPut(key)))
}
