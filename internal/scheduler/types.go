// Package scheduler runs named jobs, each on its own fixed interval.
package scheduler

import (
	"context"
	"time"
)

// Status is the scheduler lifecycle state
type Status string

const (
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
)

// RunFunc is the body of a job. A returned error counts as a failed run.
type RunFunc func(ctx context.Context) error

// PanicHandler is invoked when a job body panics. The panic is recovered
// before the handler runs.
type PanicHandler func(jobID string, value interface{})

// ScheduledJob is a point-in-time copy of a job's bookkeeping
type ScheduledJob struct {
	ID       string        `json:"id"`
	Interval time.Duration `json:"interval"`
	NextRun  time.Time     `json:"next_run"`
	// LastRun is nil until the first run finishes
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Runs      int64      `json:"runs"`
	// Failures counts runs that returned an error or panicked
	Failures int64 `json:"failures"`
}

// Info summarizes the scheduler across all jobs
type Info struct {
	Status Status `json:"status"`
	// StartTime is set by Start
	StartTime     *time.Time `json:"start_time,omitempty"`
	JobCount      int        `json:"job_count"`
	CompletedRuns int64      `json:"completed_runs"`
	FailedRuns    int64      `json:"failed_runs"`
}
