// Package health provides the health monitor: a registry of named checks,
// each polled on its own interval, with the latest reading per check kept
// for aggregation and repair evaluation.
package health

import (
	"context"
	"time"
)

// Status is a point on the aggregate health scale
type Status string

const (
	StatusHealthy Status = "healthy"
	// StatusUnhealthy means at least one critical check is failing
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded means only non-critical checks are failing
	StatusDegraded Status = "degraded"
	// StatusUnknown means no fresh reading exists yet
	StatusUnknown Status = "unknown"
)

// Reading is the result of one poll of one check. Readings are never
// mutated after they are produced.
type Reading struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	// Critical is copied from the check definition
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	// Error is set when the check itself failed or panicked
	Error   string                 `json:"error,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	// Timestamp is when the poll started
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Status maps the reading onto the aggregate status scale
func (r Reading) Status() Status {
	switch {
	case r.Healthy:
		return StatusHealthy
	case r.Critical:
		return StatusUnhealthy
	default:
		return StatusDegraded
	}
}

// CheckFunc performs a check. It fills Healthy, Message and Details; the
// monitor sets the remaining fields. A returned error marks the reading
// unhealthy and is logged, but does not trigger repairs.
type CheckFunc func(ctx context.Context) (Reading, error)

// Definition describes a registered check
type Definition struct {
	// Label is a human-readable name
	Label string
	// Interval is how often the check is polled
	Interval time.Duration
	// Critical checks make the overall status unhealthy when they fail
	Critical bool
	// Check is the check body
	Check CheckFunc
}

// RepairHook receives the current snapshot of fresh readings whenever a
// polled check reports unhealthy.
type RepairHook func(ctx context.Context, snapshot map[string]Reading)

// OverallHealth aggregates the cached readings of every check
type OverallHealth struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	// Uptime is measured from monitor creation
	Uptime      time.Duration      `json:"uptime"`
	Version     string             `json:"version,omitempty"`
	ServiceName string             `json:"service_name"`
	Checks      map[string]Reading `json:"checks"`
	// Summary reads like "2 of 5 checks failing"
	Summary string `json:"summary,omitempty"`
}

// CheckInfo describes a registered check for status endpoints
type CheckInfo struct {
	Name     string        `json:"name"`
	Label    string        `json:"label"`
	Interval time.Duration `json:"interval"`
	Critical bool          `json:"critical"`
}
