package config

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAppConfigStore struct {
	rows map[string][]byte
}

func (f *fakeAppConfigStore) AppConfigGet(ctx context.Context, key string, out any) error {
	raw, ok := f.rows[key]
	if !ok {
		return assert.AnError
	}
	return json.Unmarshal(raw, out)
}

func TestNewAppConfigLoader_MissingRowReturnsTypedZeroValue(t *testing.T) {
	store := &fakeAppConfigStore{rows: map[string][]byte{}}
	load := NewAppConfigLoader(store)

	v, err := load(context.Background(), KeyAIConfig)
	require.NoError(t, err)
	assert.Equal(t, AIConfig{}, v)
}

func TestNewAppConfigLoader_PrivacyFilterDefaultsWhenUnwritten(t *testing.T) {
	store := &fakeAppConfigStore{rows: map[string][]byte{}}
	load := NewAppConfigLoader(store)

	v, err := load(context.Background(), KeyPrivacyFilter)
	require.NoError(t, err)
	cfg, ok := v.(PrivacyFilterConfig)
	require.True(t, ok)
	assert.True(t, cfg.RedactIPs)
	assert.True(t, cfg.RedactCredentials)
}

func TestNewAppConfigLoader_ExistingRowIsDecoded(t *testing.T) {
	store := &fakeAppConfigStore{rows: map[string][]byte{
		KeyAIConfig: []byte(`{"scoring_provider":"openai","scoring_model":"gpt-5"}`),
	}}
	load := NewAppConfigLoader(store)

	v, err := load(context.Background(), KeyAIConfig)
	require.NoError(t, err)
	cfg, ok := v.(AIConfig)
	require.True(t, ok)
	assert.Equal(t, "openai", cfg.ScoringProvider)
	assert.Equal(t, "gpt-5", cfg.ScoringModel)
}

func TestNewAppConfigLoader_TaskModelConfigDefaultsToEmptyOverrides(t *testing.T) {
	store := &fakeAppConfigStore{rows: map[string][]byte{}}
	load := NewAppConfigLoader(store)

	v, err := load(context.Background(), KeyTaskModelConfig)
	require.NoError(t, err)
	cfg, ok := v.(TaskModelConfig)
	require.True(t, ok)
	assert.NotNil(t, cfg.Overrides)
	assert.Empty(t, cfg.Overrides)
}

func TestNewAppConfigLoader_UnknownKeyReturnsNil(t *testing.T) {
	store := &fakeAppConfigStore{rows: map[string][]byte{}}
	load := NewAppConfigLoader(store)

	v, err := load(context.Background(), KeyCriterionGuidelines)
	require.NoError(t, err)
	assert.Nil(t, v)
}
