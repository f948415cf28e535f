package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginsight/internal/config"
	"loginsight/internal/model"
	"loginsight/internal/store"
)

// fakeCentralStore implements CentralStore with every method overridable;
// unused methods return zero values since these tests only exercise
// MetaAnalyzer.openWindow, which is reached before any other CentralStore
// method is called.
type fakeCentralStore struct {
	latestWindow    model.Window
	latestWindowOK  bool
	latestWindowErr error
	createWindowErr error
	createWindowID  string
}

func (f *fakeCentralStore) ListCriteria(ctx context.Context) ([]model.Criterion, error) { return nil, nil }
func (f *fakeCentralStore) ScoredEventIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	return nil, nil
}
func (f *fakeCentralStore) PutEventScores(ctx context.Context, scores []model.EventScore) error {
	return nil
}
func (f *fakeCentralStore) EventMaxScores(ctx context.Context, ids []string) (map[string]float64, error) {
	return nil, nil
}
func (f *fakeCentralStore) MaxEventScoresForWindow(ctx context.Context, systemID string, from, to time.Time) (map[string]float64, error) {
	return nil, nil
}
func (f *fakeCentralStore) CreateWindow(ctx context.Context, systemID string, from, to time.Time) (model.Window, error) {
	if f.createWindowErr != nil {
		return model.Window{}, f.createWindowErr
	}
	return model.Window{ID: f.createWindowID, SystemID: systemID, FromTS: from, ToTS: to}, nil
}
func (f *fakeCentralStore) LatestWindow(ctx context.Context, systemID string) (model.Window, bool, error) {
	return f.latestWindow, f.latestWindowOK, f.latestWindowErr
}
func (f *fakeCentralStore) RecentMetaResults(ctx context.Context, systemID string, limit int) ([]model.MetaResult, error) {
	return nil, nil
}
func (f *fakeCentralStore) PutMetaScores(ctx context.Context, windowID string, metaScores map[string]float64) error {
	return nil
}
func (f *fakeCentralStore) SaveWindowSummary(ctx context.Context, windowID, summary, recommendedAction string, keyEventIDs []string, findings []model.EmittedFinding) error {
	return nil
}
func (f *fakeCentralStore) PutEffectiveScores(ctx context.Context, scores []model.EffectiveScore) error {
	return nil
}
func (f *fakeCentralStore) InsertLlmUsage(ctx context.Context, u model.LlmUsage) error { return nil }

func TestMetaAnalyzer_RunSkipsWhenWindowNotYetDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	central := &fakeCentralStore{
		latestWindowOK: true,
		latestWindow:   model.Window{ToTS: now.Add(-2 * time.Minute)},
	}
	m := NewMetaAnalyzer(Deps{
		Central:  central,
		Pipeline: config.PipelineConfig{WindowMinutes: 5},
	})
	m.now = func() time.Time { return now }

	err := m.Run(context.Background(), model.MonitoredSystem{ID: "sys-1"})
	require.NoError(t, err, "Backend is nil in Deps; Run must return before ever touching it")
}

func TestMetaAnalyzer_RunPropagatesLatestWindowError(t *testing.T) {
	boom := errors.New("db unavailable")
	central := &fakeCentralStore{latestWindowErr: boom}
	m := NewMetaAnalyzer(Deps{Central: central, Pipeline: config.PipelineConfig{WindowMinutes: 5}})

	err := m.Run(context.Background(), model.MonitoredSystem{ID: "sys-1"})
	assert.ErrorIs(t, err, boom)
}

func TestScoringLoop_RunRejectsUnknownEventSource(t *testing.T) {
	factory, err := store.NewBackendFactory(context.Background(), nil, config.ClickHouseConfig{})
	require.NoError(t, err)
	s := NewScoringLoop(Deps{Backend: factory})

	err = s.Run(context.Background(), model.MonitoredSystem{ID: "sys-1", EventSource: "bogus-source"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event_source")
}

func TestScoringLoop_RunErrorsWhenExternalBackendUnconfigured(t *testing.T) {
	factory, err := store.NewBackendFactory(context.Background(), nil, config.ClickHouseConfig{})
	require.NoError(t, err)
	s := NewScoringLoop(Deps{Backend: factory})

	err = s.Run(context.Background(), model.MonitoredSystem{ID: "sys-1", EventSource: model.EventSourceExternal})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sys-1")
}
