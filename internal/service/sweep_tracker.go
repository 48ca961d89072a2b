package service

import (
	"sync"
	"time"
)

// Sweep run states.
const (
	SweepIdle      = "idle"
	SweepRunning   = "running"
	SweepSucceeded = "succeeded"
	SweepFailed    = "failed"
)

// SweepStatus is a point-in-time snapshot of the sweep lifecycle.
type SweepStatus struct {
	State       string    `json:"state"`
	LastRunAt   time.Time `json:"last_run_at,omitempty"`
	LastFlagged int64     `json:"last_flagged"`
	LastError   string    `json:"last_error,omitempty"`
}

// SweepTracker records the state of the most recent overdue sweep so the
// status endpoint can distinguish a run in flight from a finished one.
type SweepTracker struct {
	mu     sync.Mutex
	status SweepStatus
}

// NewSweepTracker creates a tracker in the idle state.
func NewSweepTracker() *SweepTracker {
	return &SweepTracker{status: SweepStatus{State: SweepIdle}}
}

// Begin marks a sweep as running.
func (t *SweepTracker) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = SweepRunning
}

// Finish records the outcome of a sweep.
func (t *SweepTracker) Finish(flagged int64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LastRunAt = time.Now()
	t.status.LastFlagged = flagged
	if err != nil {
		t.status.State = SweepFailed
		t.status.LastError = err.Error()
		return
	}
	t.status.State = SweepSucceeded
	t.status.LastError = ""
}

// Status returns the current snapshot.
func (t *SweepTracker) Status() SweepStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
