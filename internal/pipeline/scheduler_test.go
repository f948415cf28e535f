package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginsight/internal/model"
)

type fakeSystemLister struct {
	systems []model.MonitoredSystem
	err     error
}

func (f *fakeSystemLister) ListActiveSystems(ctx context.Context) ([]model.MonitoredSystem, error) {
	return f.systems, f.err
}

func TestScheduler_TickWithNoActiveSystemsNeverTouchesDeps(t *testing.T) {
	sched := NewScheduler(Deps{}, &fakeSystemLister{})
	require.NotPanics(t, func() { sched.tick(context.Background()) })
}

func TestScheduler_TickListErrorIsNonFatal(t *testing.T) {
	sched := NewScheduler(Deps{}, &fakeSystemLister{err: errors.New("list failed")})
	require.NotPanics(t, func() { sched.tick(context.Background()) })
}

func TestScheduler_ScoringAndMetaAccessorsReturnSharedInstances(t *testing.T) {
	sched := NewScheduler(Deps{}, &fakeSystemLister{})
	assert.NotNil(t, sched.Scoring())
	assert.NotNil(t, sched.Meta())
	assert.Same(t, sched.Scoring(), sched.Scoring())
	assert.Same(t, sched.Meta(), sched.Meta())
}
