package pipeline

import (
	"context"

	"loginsight/internal/config"
	"loginsight/internal/llm"
	"loginsight/internal/llm/providers"
)

// AIConfigResolver selects the active provider/model pair per task from the
// operator-mutable ai_config setting, falling back to defaultProvider (the
// process-wide config.LLMConfig.Provider) when ai_config has no override or
// hasn't been set yet.
type AIConfigResolver struct {
	cfg             *config.Resolver
	registry        providers.Registry
	defaultProvider string
}

// NewAIConfigResolver wires a ProviderResolver over a config.Resolver (TTL-
// cached over the app_config table) and a providers.Registry built at startup.
func NewAIConfigResolver(cfg *config.Resolver, registry providers.Registry, defaultProvider string) *AIConfigResolver {
	return &AIConfigResolver{cfg: cfg, registry: registry, defaultProvider: defaultProvider}
}

func (r *AIConfigResolver) Resolve(ctx context.Context, task string) (llm.Provider, modelChoice, error) {
	var aiCfg config.AIConfig
	if raw, err := r.cfg.Get(ctx, config.KeyAIConfig); err == nil {
		if c, ok := raw.(config.AIConfig); ok {
			aiCfg = c
		}
	}

	var providerName, model string
	switch task {
	case "scoring":
		providerName, model = aiCfg.ScoringProvider, aiCfg.ScoringModel
	case "meta":
		providerName, model = aiCfg.MetaProvider, aiCfg.MetaModel
	}

	p, err := r.registry.Resolve(providerName, r.defaultProvider)
	if err != nil {
		return nil, modelChoice{}, err
	}
	return p, modelChoice{Provider: providerName, Model: model}, nil
}
