package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTracker_StatusUnknownIDReturnsFalse(t *testing.T) {
	tr := NewJobTracker(NewScoringLoop(Deps{}), NewMetaAnalyzer(Deps{}))
	_, ok := tr.Status("does-not-exist")
	assert.False(t, ok)
}

func TestJobTracker_StatusReflectsElapsedTimeWhileRunning(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := start
	tr := NewJobTracker(NewScoringLoop(Deps{}), NewMetaAnalyzer(Deps{}))
	tr.now = func() time.Time { return current }

	job := &JobStatus{ID: "job-1", SystemID: "sys-1", State: "running", StartedAt: start}
	tr.mu.Lock()
	tr.jobs["job-1"] = job
	tr.mu.Unlock()

	current = start.Add(5 * time.Second)
	status, ok := tr.Status("job-1")
	require.True(t, ok)
	assert.Equal(t, "running", status.State)
	assert.InDelta(t, 5.0, status.Elapsed, 0.001)
}

func TestJobTracker_StatusOfFinishedJobReturnsStoredElapsed(t *testing.T) {
	tr := NewJobTracker(NewScoringLoop(Deps{}), NewMetaAnalyzer(Deps{}))
	job := &JobStatus{
		ID:       "job-2",
		SystemID: "sys-1",
		State:    "succeeded",
		Elapsed:  12.5,
	}
	tr.mu.Lock()
	tr.jobs["job-2"] = job
	tr.mu.Unlock()

	status, ok := tr.Status("job-2")
	require.True(t, ok)
	assert.Equal(t, "succeeded", status.State)
	assert.Equal(t, 12.5, status.Elapsed, "a finished job's elapsed value must not be recomputed from now()")
}

func TestJobTracker_StatusReturnsACopyNotTheLiveJob(t *testing.T) {
	tr := NewJobTracker(NewScoringLoop(Deps{}), NewMetaAnalyzer(Deps{}))
	job := &JobStatus{ID: "job-3", State: "succeeded", Elapsed: 1}
	tr.mu.Lock()
	tr.jobs["job-3"] = job
	tr.mu.Unlock()

	status, _ := tr.Status("job-3")
	status.State = "mutated"

	tr.mu.Lock()
	stillStored := tr.jobs["job-3"].State
	tr.mu.Unlock()
	assert.Equal(t, "succeeded", stillStored, "Status must return a value copy")
}
