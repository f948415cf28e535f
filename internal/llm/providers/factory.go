// Package providers selects and constructs the active llm.Provider client
// from config.LLMConfig.Provider.
package providers

import (
	"fmt"
	"net/http"

	"loginsight/internal/config"
	"loginsight/internal/llm"
	"loginsight/internal/llm/anthropic"
	"loginsight/internal/llm/google"
	"loginsight/internal/llm/openai"
)

// Build constructs the llm.Provider named by cfg.LLM.Provider.
func Build(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return anthropic.New(cfg.Anthropic, cfg, httpClient), nil
	case "openai":
		return openai.New(cfg.OpenAI, cfg, httpClient), nil
	case "google":
		return google.New(cfg.Google, cfg, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// Registry holds every provider client the process can route calls to,
// keyed by name ("anthropic" | "openai" | "google"). The Scoring Loop and
// Meta Analyzer select per-call via the ai_config resolver's ScoringProvider/
// MetaProvider, independent of the single default cfg.Provider Build serves
// at startup for components that only ever need one.
type Registry map[string]llm.Provider

// BuildAll constructs one client per provider family regardless of whether
// its API key is set; an unconfigured provider only fails when actually
// called, matching the fail-late posture the teacher's client constructors
// already have (no credential validation at construction time).
func BuildAll(cfg config.LLMConfig, httpClient *http.Client) (Registry, error) {
	reg := Registry{
		"anthropic": anthropic.New(cfg.Anthropic, cfg, httpClient),
		"openai":    openai.New(cfg.OpenAI, cfg, httpClient),
	}
	g, err := google.New(cfg.Google, cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("build google provider: %w", err)
	}
	reg["google"] = g
	return reg, nil
}

// Resolve returns the named provider, falling back to cfg.Provider (or
// "anthropic") when name is empty.
func (r Registry) Resolve(name, fallback string) (llm.Provider, error) {
	if name == "" {
		name = fallback
	}
	if name == "" {
		name = "anthropic"
	}
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", name)
	}
	return p, nil
}
