package config

import (
	"context"
	"sync"
	"time"
)

// AIConfig is the mutable ai-config app_config row: which provider/model pair
// the scoring loop and meta analyzer use right now.
type AIConfig struct {
	ScoringProvider string `json:"scoring_provider"`
	ScoringModel    string `json:"scoring_model"`
	MetaProvider    string `json:"meta_provider"`
	MetaModel       string `json:"meta_model"`
}

// PrivacyFilterConfig is the mutable privacy-filter app_config row: which PII
// categories get redacted from outbound LLM payloads and any operator-supplied
// extra patterns.
type PrivacyFilterConfig struct {
	RedactIPs         bool     `json:"redact_ips"`
	RedactEmails      bool     `json:"redact_emails"`
	RedactPhones      bool     `json:"redact_phones"`
	RedactURLs        bool     `json:"redact_urls"`
	RedactMACs        bool     `json:"redact_macs"`
	RedactCreditCards bool     `json:"redact_credit_cards"`
	RedactCredentials bool     `json:"redact_credentials"`
	RedactHosts       bool     `json:"redact_hosts"`
	RedactPrograms    bool     `json:"redact_programs"`
	ExtraPatterns     []string `json:"extra_patterns,omitempty"`
}

// PromptsConfig is the mutable prompts app_config row: the system prompts sent
// to the LLM for each call kind.
type PromptsConfig struct {
	ScoringSystemPrompt string `json:"scoring_system_prompt"`
	MetaSystemPrompt    string `json:"meta_system_prompt"`
}

// DashboardConfig is the mutable dashboard-tuning app_config row.
type DashboardConfig struct {
	DefaultWindowDays int  `json:"default_window_days"`
	ShowResolved      bool `json:"show_resolved"`
}

// TaskModelConfig lets an operator pin a specific provider/model to a named
// task (e.g. "scoring", "meta") independent of the global AIConfig default.
type TaskModelConfig struct {
	Overrides map[string]string `json:"overrides"` // task name -> "provider:model"
}

// Loader fetches the current value of a named mutable setting from durable
// storage (the app_config table). Returning a fresh value on every call is
// fine: Resolver is what keeps calls infrequent.
type Loader func(ctx context.Context, key string) (any, error)

type resolverEntry struct {
	value     any
	expiresAt time.Time
}

// Resolver serves mutable runtime settings from app_config with a short TTL
// cache in front, so a hot path like the scoring loop doesn't hit Postgres on
// every batch. Modeled on internal/llm.TokenCache's TTL/LRU shape, simplified
// to a plain TTL cache since the settings keyset is small and fixed.
type Resolver struct {
	mu    sync.RWMutex
	ttl   time.Duration
	load  Loader
	cache map[string]resolverEntry
}

// NewResolver builds a Resolver with the given TTL and backing Loader. A
// non-positive ttl falls back to 60s, matching spec's documented default.
func NewResolver(ttl time.Duration, load Loader) *Resolver {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Resolver{
		ttl:   ttl,
		load:  load,
		cache: make(map[string]resolverEntry),
	}
}

// Get returns the cached value for key, refreshing from the Loader if absent
// or expired.
func (r *Resolver) Get(ctx context.Context, key string) (any, error) {
	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	value, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = resolverEntry{value: value, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return value, nil
}

// Invalidate drops the cached value for key, forcing the next Get to reload
// from the Loader. Config-mutating HTTP handlers call this after a successful
// write so readers don't see a stale value for up to the full TTL.
func (r *Resolver) Invalidate(key string) {
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}

// InvalidateAll drops every cached value.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]resolverEntry)
	r.mu.Unlock()
}

// Well-known app_config keys, one per operator-mutable setting group exposed
// under GET/PUT in internal/httpapi.
const (
	KeyAIConfig            = "ai_config"
	KeyPrivacyFilter       = "privacy_filter"
	KeyPrompts             = "prompts"
	KeyCriterionGuidelines = "criterion_guidelines"
	KeyTokenOptimization   = "token_optimization"
	KeyMetaAnalysisConfig  = "meta_analysis_config"
	KeyDashboard           = "dashboard_config"
	KeyPipelineConfig      = "pipeline_config"
	KeyTaskModelConfig     = "task_model_config"
)
