package suppressor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"loginsight/internal/model"
)

type fakeStore struct {
	templates []model.NormalBehaviorTemplate
}

func (f *fakeStore) ListNormalBehaviorTemplates(ctx context.Context, systemID string) ([]model.NormalBehaviorTemplate, error) {
	if systemID == "" {
		return f.templates, nil
	}
	var out []model.NormalBehaviorTemplate
	for _, t := range f.templates {
		if t.SystemID == systemID {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeStore) InsertNormalBehaviorTemplate(ctx context.Context, t model.NormalBehaviorTemplate) (model.NormalBehaviorTemplate, error) {
	f.templates = append(f.templates, t)
	return t, nil
}
func (f *fakeStore) SetNormalBehaviorTemplateEnabled(ctx context.Context, id string, enabled bool) error {
	return nil
}
func (f *fakeStore) DeleteNormalBehaviorTemplate(ctx context.Context, id string) error { return nil }
func (f *fakeStore) MarkTemplatesSuppressed(ctx context.Context, templateIDs []string) error {
	return nil
}

func TestIndex_MatchesMessageOnlyTemplate(t *testing.T) {
	store := &fakeStore{templates: []model.NormalBehaviorTemplate{
		{ID: "t1", SystemID: "sys-1", PatternRegex: `disk cleanup completed`, Enabled: true},
	}}
	idx := New(store)
	require.NoError(t, idx.WarmAll(context.Background()))

	matched, templateWide := idx.Matches(model.Event{SystemID: "sys-1", Message: "disk cleanup completed successfully"})
	require.True(t, matched)
	require.True(t, templateWide, "a template with no host/program pattern applies uniformly")

	matched, _ = idx.Matches(model.Event{SystemID: "sys-1", Message: "disk failure detected"})
	require.False(t, matched)
}

func TestIndex_HostScopedTemplateIsNotTemplateWide(t *testing.T) {
	store := &fakeStore{templates: []model.NormalBehaviorTemplate{
		{ID: "t1", SystemID: "sys-1", PatternRegex: `heartbeat`, HostPattern: `^worker-\d+$`, Enabled: true},
	}}
	idx := New(store)
	require.NoError(t, idx.WarmAll(context.Background()))

	matched, templateWide := idx.Matches(model.Event{SystemID: "sys-1", Host: "worker-3", Message: "heartbeat ok"})
	require.True(t, matched)
	require.False(t, templateWide)

	matched, _ = idx.Matches(model.Event{SystemID: "sys-1", Host: "db-1", Message: "heartbeat ok"})
	require.False(t, matched, "host pattern must restrict the match")
}

func TestIndex_DisabledTemplatesNeverMatch(t *testing.T) {
	store := &fakeStore{templates: []model.NormalBehaviorTemplate{
		{ID: "t1", SystemID: "sys-1", PatternRegex: `.*`, Enabled: false},
	}}
	idx := New(store)
	require.NoError(t, idx.WarmAll(context.Background()))

	matched, _ := idx.Matches(model.Event{SystemID: "sys-1", Message: "anything"})
	require.False(t, matched)
}

func TestIndex_InvalidateRebuildsOneSystem(t *testing.T) {
	store := &fakeStore{}
	idx := New(store)
	require.NoError(t, idx.WarmAll(context.Background()))

	matched, _ := idx.Matches(model.Event{SystemID: "sys-1", Message: "quota exceeded"})
	require.False(t, matched)

	store.templates = append(store.templates, model.NormalBehaviorTemplate{
		ID: "t2", SystemID: "sys-1", PatternRegex: `quota exceeded`, Enabled: true,
	})
	require.NoError(t, idx.Invalidate(context.Background(), "sys-1"))

	matched, _ = idx.Matches(model.Event{SystemID: "sys-1", Message: "quota exceeded"})
	require.True(t, matched)
}
