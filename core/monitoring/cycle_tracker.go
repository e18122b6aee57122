// Package monitoring keeps in-memory operational metrics for the cell.
package monitoring

import (
	"sync"
	"time"

	"inspection-orchestrator/core/models"
)

// CycleStats is a snapshot of the tracked cycle metrics.
type CycleStats struct {
	TotalJobs     int     `json:"total_jobs"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	Errored       int     `json:"errored"`
	Aborted       int     `json:"aborted"`
	LastCycleSecs float64 `json:"last_cycle_seconds"`
	MeanCycleSecs float64 `json:"mean_cycle_seconds"`
	MinCycleSecs  float64 `json:"min_cycle_seconds"`
	MaxCycleSecs  float64 `json:"max_cycle_seconds"`

	LastJobID    string     `json:"last_job_id,omitempty"`
	LastFinished *time.Time `json:"last_finished_at,omitempty"`
}

// CycleTracker accumulates per-cycle statistics across jobs. It satisfies
// the workflow's Tracker interface. Only completed cycles contribute to
// the timing aggregates; aborted and faulted jobs count toward their own
// buckets but not the timings.
type CycleTracker struct {
	mu    sync.RWMutex
	stats CycleStats
	sum   float64
	timed int
}

// NewCycleTracker creates an empty tracker.
func NewCycleTracker() *CycleTracker {
	return &CycleTracker{}
}

// RecordCycle folds one finished job into the aggregates.
func (t *CycleTracker) RecordCycle(job *models.JobContext) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.TotalJobs++
	switch {
	case job.State == models.StateAborted:
		t.stats.Aborted++
	case job.Result == models.ResultPass:
		t.stats.Passed++
	case job.Result == models.ResultFail:
		t.stats.Failed++
	default:
		t.stats.Errored++
	}

	finished := job.FinishedAt
	t.stats.LastJobID = job.ID
	t.stats.LastFinished = &finished

	if job.State != models.StateCompleted {
		return
	}

	secs := job.CycleTime().Seconds()
	t.stats.LastCycleSecs = secs
	t.sum += secs
	t.timed++
	t.stats.MeanCycleSecs = t.sum / float64(t.timed)
	if t.timed == 1 || secs < t.stats.MinCycleSecs {
		t.stats.MinCycleSecs = secs
	}
	if secs > t.stats.MaxCycleSecs {
		t.stats.MaxCycleSecs = secs
	}
}

// Stats returns a copy of the current aggregates.
func (t *CycleTracker) Stats() CycleStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}
