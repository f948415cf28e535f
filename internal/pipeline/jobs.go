package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"loginsight/internal/model"
)

// JobStatus is the polled state of one re-evaluate job (spec §9's REDESIGN
// FLAG: POST /systems/{id}/re-evaluate must not block the HTTP request on a
// full scoring+meta pass).
type JobStatus struct {
	ID        string    `json:"id"`
	SystemID  string    `json:"system_id"`
	State     string    `json:"status"` // "running" | "succeeded" | "failed"
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Elapsed   float64   `json:"elapsed_seconds"`
}

// JobTracker runs re-evaluate jobs in the background and serves their status,
// independent of the regular ticking Scheduler (a re-evaluate is an operator-
// triggered one-off, not a tick).
type JobTracker struct {
	scoring *ScoringLoop
	meta    *MetaAnalyzer
	now     func() time.Time

	mu   sync.Mutex
	jobs map[string]*JobStatus
}

// NewJobTracker builds a JobTracker reusing the same ScoringLoop/MetaAnalyzer
// instances the Scheduler ticks, so a re-evaluate run and a regular tick never
// diverge in behavior.
func NewJobTracker(scoring *ScoringLoop, meta *MetaAnalyzer) *JobTracker {
	return &JobTracker{scoring: scoring, meta: meta, now: time.Now, jobs: map[string]*JobStatus{}}
}

// Start launches a re-evaluate run for system in the background and returns
// its job id immediately.
func (t *JobTracker) Start(system model.MonitoredSystem) string {
	id := uuid.NewString()
	job := &JobStatus{ID: id, SystemID: system.ID, State: "running", StartedAt: t.now().UTC()}
	t.mu.Lock()
	t.jobs[id] = job
	t.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		var runErr error
		if err := t.scoring.Run(ctx, system); err != nil {
			runErr = err
		} else if err := t.meta.Run(ctx, system); err != nil {
			runErr = err
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		job.Elapsed = t.now().Sub(job.StartedAt).Seconds()
		if runErr != nil {
			job.State = "failed"
			job.Error = runErr.Error()
			log.Error().Err(runErr).Str("system_id", system.ID).Str("job_id", id).Msg("pipeline_reevaluate_error")
			return
		}
		job.State = "succeeded"
	}()
	return id
}

// Status returns the current state of a previously started job.
func (t *JobTracker) Status(id string) (JobStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	out := *job
	if out.State == "running" {
		out.Elapsed = t.now().Sub(job.StartedAt).Seconds()
	}
	return out, true
}
