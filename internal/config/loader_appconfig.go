package config

import "context"

// AppConfigStore is the subset of internal/store.Postgres the Resolver's
// Loader needs: a single typed getter keyed by the app_config row.
type AppConfigStore interface {
	AppConfigGet(ctx context.Context, key string, out any) error
}

// NewAppConfigLoader builds a Loader reading every well-known mutable
// setting out of app_config, defaulting to the key's zero-value struct (for
// privacy_filter, defaultPrivacyFilterConfig) when the row hasn't been written yet (a brand-new deployment's first read,
// before any operator PUT). A key outside this switch is a programmer error,
// not an operator one, so it returns nil rather than guessing a shape.
func NewAppConfigLoader(store AppConfigStore) Loader {
	return func(ctx context.Context, key string) (any, error) {
		switch key {
		case KeyAIConfig:
			var v AIConfig
			if err := store.AppConfigGet(ctx, key, &v); err != nil {
				return AIConfig{}, nil
			}
			return v, nil
		case KeyPrivacyFilter:
			v := defaultPrivacyFilterConfig()
			if err := store.AppConfigGet(ctx, key, &v); err != nil {
				return defaultPrivacyFilterConfig(), nil
			}
			return v, nil
		case KeyPrompts:
			var v PromptsConfig
			if err := store.AppConfigGet(ctx, key, &v); err != nil {
				return PromptsConfig{}, nil
			}
			return v, nil
		case KeyDashboard:
			var v DashboardConfig
			if err := store.AppConfigGet(ctx, key, &v); err != nil {
				return DashboardConfig{}, nil
			}
			return v, nil
		case KeyTaskModelConfig:
			v := TaskModelConfig{Overrides: map[string]string{}}
			if err := store.AppConfigGet(ctx, key, &v); err != nil {
				return v, nil
			}
			return v, nil
		default:
			// criterion_guidelines, token_optimization, meta_analysis_config,
			// pipeline_config: consumed as raw JSON by their respective
			// callers, not through the Resolver's typed Get.
			return nil, nil
		}
	}
}

// defaultPrivacyFilterConfig mirrors internal/llm.DefaultPrivacyFilterConfig;
// duplicated here (package-local, unexported) since llm already imports
// config and a back-reference would cycle.
func defaultPrivacyFilterConfig() PrivacyFilterConfig {
	return PrivacyFilterConfig{
		RedactIPs:         true,
		RedactEmails:      true,
		RedactPhones:      true,
		RedactURLs:        true,
		RedactMACs:        true,
		RedactCreditCards: true,
		RedactCredentials: true,
	}
}
