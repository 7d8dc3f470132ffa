// Package healing maps unhealthy readings to rate-limited repair actions.
package healing

import (
	"context"
	"time"

	"buddy-monitor/internal/health"
)

// TriggerFunc decides from the current snapshot whether a repair should run
type TriggerFunc func(snapshot map[string]health.Reading) bool

// Result is the payload a repair reports on success
type Result map[string]interface{}

// ActionFunc performs a repair
type ActionFunc func(ctx context.Context) (Result, error)

// Definition describes a registered repair
type Definition struct {
	// Label is a human-readable name
	Label string
	// Trigger selects the snapshots this repair responds to
	Trigger TriggerFunc
	// Action is the repair body
	Action ActionFunc
	// Cooldown is the minimum time between two invocations
	Cooldown time.Duration
}

// Attempt records one execution of a repair
type Attempt struct {
	ID        string        `json:"id"`
	Repair    string        `json:"repair"`
	Label     string        `json:"label"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Result    Result        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// HistoryEntry summarizes a repair that has run at least once
type HistoryEntry struct {
	Repair            string        `json:"repair"`
	Label             string        `json:"label"`
	LastAttempt       time.Time     `json:"last_attempt"`
	Cooldown          time.Duration `json:"cooldown"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
	Attempts          int           `json:"attempts"`
	LastSuccess       bool          `json:"last_success"`
	LastError         string        `json:"last_error,omitempty"`
}

// CheckUnhealthy triggers when the named check's reading is present and
// unhealthy. Readings from checks that failed to run do not count.
func CheckUnhealthy(check string) TriggerFunc {
	return func(snapshot map[string]health.Reading) bool {
		reading, ok := snapshot[check]
		return ok && !reading.Healthy && reading.Error == ""
	}
}

// CriticalFailures triggers when at least minFailing distinct critical checks are
// unhealthy in the same snapshot
func CriticalFailures(minFailing int) TriggerFunc {
	return func(snapshot map[string]health.Reading) bool {
		failing := 0
		for _, reading := range snapshot {
			if reading.Critical && !reading.Healthy && reading.Error == "" {
				failing++
			}
		}
		return failing >= minFailing
	}
}
