package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lysje/internal/scheduler"
)

// LastRun is the snapshot served on /status.
type LastRun struct {
	StartedAt     time.Time            `json:"started_at"`
	ReferenceTime time.Time            `json:"reference_time"`
	Summary       scheduler.RunSummary `json:"summary"`
	Error         string               `json:"error,omitempty"`
}

// RunTracker remembers the most recent run of the long-running worker.
type RunTracker struct {
	mu   sync.RWMutex
	last *LastRun
}

// Record stores the outcome of a run.
func (t *RunTracker) Record(started, reference time.Time, summary scheduler.RunSummary, err error) {
	run := &LastRun{StartedAt: started, ReferenceTime: reference, Summary: summary}
	if err != nil {
		run.Error = err.Error()
	}
	t.mu.Lock()
	t.last = run
	t.mu.Unlock()
}

// LastRun implements core.StatusReporter.
func (t *RunTracker) LastRun() (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return nil, false
	}
	return *t.last, true
}

// Check reports the worker unhealthy while its last run was aborted.
func (t *RunTracker) Check(context.Context) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last != nil && t.last.Error != "" {
		return fmt.Errorf("last run failed: %s", t.last.Error)
	}
	return nil
}

// Name implements core.HealthProbe.
func (t *RunTracker) Name() string { return "last_run" }
