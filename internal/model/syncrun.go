package model

import "time"

// RunStatus represents the outcome of a synchronization run.
type RunStatus string

const (
	// RunStatusCompleted means a full fetch-normalize-reconcile run finished.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusAlreadyCurrent means the staleness guard short-circuited the
	// run because recent data already exists.
	RunStatusAlreadyCurrent RunStatus = "already_current"
	// RunStatusAlreadyRunning means another run held the single-run guard.
	RunStatusAlreadyRunning RunStatus = "already_running"
	// RunStatusFailed means a run-level condition (no credential, no data)
	// aborted the run.
	RunStatusFailed RunStatus = "failed"
)

// ReconcileResult counts per-record outcomes for one entity batch.
type ReconcileResult struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

// SyncRun is the structured result of one synchronization run. It is returned
// to the caller and logged, never stored. Partial failures are reflected in
// the counters; Error is set only for run-level failures.
type SyncRun struct {
	ID          string          `json:"id"`
	Status      RunStatus       `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
	Districts   ReconcileResult `json:"districts"`
	Metrics     ReconcileResult `json:"metrics"`
	LastUpdated *time.Time      `json:"last_updated,omitempty"`
	Error       string          `json:"error,omitempty"`
}
