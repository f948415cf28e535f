package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginsight/internal/config"
	"loginsight/internal/llm"
	"loginsight/internal/llm/providers"
	"loginsight/internal/model"
)

type stubProvider struct{ name string }

func (s stubProvider) ScoreBatch(ctx context.Context, model_ string, events []model.Event, criteria []model.Criterion) ([]llm.ScoreVector, llm.Usage, error) {
	return nil, llm.Usage{}, nil
}

func (s stubProvider) MetaAnalyze(ctx context.Context, model_ string, systemID string, windowEvents []model.Event, priorSummaries []model.MetaResult, maxContext int) (model.MetaResult, llm.Usage, error) {
	return model.MetaResult{}, llm.Usage{}, nil
}

func newTestResolver(t *testing.T, aiCfg config.AIConfig) *config.Resolver {
	t.Helper()
	return config.NewResolver(time.Hour, func(ctx context.Context, key string) (any, error) {
		if key == config.KeyAIConfig {
			return aiCfg, nil
		}
		return nil, nil
	})
}

func TestAIConfigResolver_UsesAiConfigOverridePerTask(t *testing.T) {
	reg := providers.Registry{"anthropic": stubProvider{"anthropic"}, "openai": stubProvider{"openai"}}
	cfgResolver := newTestResolver(t, config.AIConfig{
		ScoringProvider: "openai", ScoringModel: "gpt-5",
		MetaProvider: "anthropic", MetaModel: "claude-x",
	})
	r := NewAIConfigResolver(cfgResolver, reg, "anthropic")

	p, mc, err := r.Resolve(context.Background(), "scoring")
	require.NoError(t, err)
	assert.Equal(t, stubProvider{"openai"}, p)
	assert.Equal(t, "openai", mc.Provider)
	assert.Equal(t, "gpt-5", mc.Model)

	p, mc, err = r.Resolve(context.Background(), "meta")
	require.NoError(t, err)
	assert.Equal(t, stubProvider{"anthropic"}, p)
	assert.Equal(t, "claude-x", mc.Model)
}

func TestAIConfigResolver_FallsBackToDefaultProviderWhenUnset(t *testing.T) {
	reg := providers.Registry{"anthropic": stubProvider{"anthropic"}}
	cfgResolver := newTestResolver(t, config.AIConfig{})
	r := NewAIConfigResolver(cfgResolver, reg, "anthropic")

	p, mc, err := r.Resolve(context.Background(), "scoring")
	require.NoError(t, err)
	assert.Equal(t, stubProvider{"anthropic"}, p)
	assert.Equal(t, "", mc.Provider)
}

func TestAIConfigResolver_UnknownTaskYieldsEmptyProviderModel(t *testing.T) {
	reg := providers.Registry{"anthropic": stubProvider{"anthropic"}}
	cfgResolver := newTestResolver(t, config.AIConfig{ScoringProvider: "openai"})
	r := NewAIConfigResolver(cfgResolver, reg, "anthropic")

	p, mc, err := r.Resolve(context.Background(), "unknown-task")
	require.NoError(t, err)
	assert.Equal(t, stubProvider{"anthropic"}, p, "an unrecognized task falls through to the default provider")
	assert.Equal(t, "", mc.Provider)
}

func TestAIConfigResolver_UnregisteredProviderNameErrors(t *testing.T) {
	reg := providers.Registry{"anthropic": stubProvider{"anthropic"}}
	cfgResolver := newTestResolver(t, config.AIConfig{ScoringProvider: "does-not-exist"})
	r := NewAIConfigResolver(cfgResolver, reg, "anthropic")

	_, _, err := r.Resolve(context.Background(), "scoring")
	assert.Error(t, err)
}
