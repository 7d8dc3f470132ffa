package healing

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"time"

	"buddy-monitor/internal/config"
	"buddy-monitor/internal/health"
	"buddy-monitor/internal/metrics"
	"buddy-monitor/pkg/errors"
	"buddy-monitor/pkg/logger"
)

// Sample history bounds used by the built-in repairs
const (
	cleanupTrimLimit      = 1000
	cleanupTrimKeep       = 500
	optimizationTrimKeep  = 100
	mitigationWindow      = 20
	mitigationMinFailures = 3
	stabilityServerErrors = 10
	stabilityMinCritical  = 2
)

// Dependencies are the collaborators the built-in repairs act on
type Dependencies struct {
	Store  *metrics.Store
	Memory health.MemorySource
	// Uptime reports how long the monitored process has been up
	Uptime func() time.Duration
	// FreeMemory forces a collection; defaults to runtime.GC plus
	// debug.FreeOSMemory
	FreeMemory func()
}

// FreeMemory runs a collection and returns freed pages to the OS
func FreeMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

// NewMemoryCleanup collects garbage and trims the sample history to the
// last 500 entries when it holds more than 1000
func NewMemoryCleanup(store *metrics.Store, mem health.MemorySource, free func()) ActionFunc {
	return func(_ context.Context) (Result, error) {
		before := mem()
		free()
		after := mem()

		trimmed := store.TrimIfOver(cleanupTrimLimit, cleanupTrimKeep)

		return Result{
			"heap_before":     before.HeapAlloc,
			"heap_after":      after.HeapAlloc,
			"samples_trimmed": trimmed,
			"samples":         store.Len(),
		}, nil
	}
}

// NewResponseOptimization trims the sample history to the last 100 entries
func NewResponseOptimization(store *metrics.Store) ActionFunc {
	return func(_ context.Context) (Result, error) {
		trimmed := store.Trim(optimizationTrimKeep)

		return Result{
			"samples_trimmed": trimmed,
			"samples":         store.Len(),
		}, nil
	}
}

// NewErrorMitigation groups the last 20 error samples by endpoint and warns
// about every endpoint that failed at least 3 times
func NewErrorMitigation(store *metrics.Store, log *logger.Logger) ActionFunc {
	return func(_ context.Context) (Result, error) {
		recent := store.RecentErrors(mitigationWindow)

		counts := make(map[string]int)
		for _, sample := range recent {
			counts[sample.Endpoint]++
		}

		var flagged []string
		for endpoint, count := range counts {
			if count >= mitigationMinFailures {
				flagged = append(flagged, endpoint)
			}
		}
		sort.Strings(flagged)

		for _, endpoint := range flagged {
			log.Warn("High error rate endpoint",
				logger.String("endpoint", endpoint),
				logger.Int("errors", counts[endpoint]),
				logger.Int("window", len(recent)))
		}

		return Result{
			"analyzed":             len(recent),
			"high_error_endpoints": flagged,
		}, nil
	}
}

// NewStabilityReport logs a report of uptime, memory and the last 10 server
// errors
func NewStabilityReport(store *metrics.Store, mem health.MemorySource, uptime func() time.Duration, log *logger.Logger) ActionFunc {
	return func(_ context.Context) (Result, error) {
		stats := mem()
		serverErrors := store.RecentServerErrors(stabilityServerErrors)

		recent := make([]map[string]interface{}, 0, len(serverErrors))
		for _, sample := range serverErrors {
			recent = append(recent, map[string]interface{}{
				"endpoint":    sample.Endpoint,
				"status_code": sample.StatusCode,
				"timestamp":   sample.Timestamp,
			})
		}

		report := Result{
			"uptime_seconds":   uptime().Seconds(),
			"heap_alloc":       stats.HeapAlloc,
			"heap_sys":         stats.HeapSys,
			"sys_bytes":        stats.Sys,
			"goroutines":       stats.Goroutines,
			"recent_5xx":       recent,
			"recent_5xx_count": len(recent),
			"samples_retained": store.Len(),
		}

		log.Warn("Stability report",
			logger.Float64("uptime_seconds", uptime().Seconds()),
			logger.Uint64("heap_alloc", stats.HeapAlloc),
			logger.Int("goroutines", stats.Goroutines),
			logger.Any("recent_5xx", recent))

		return report, nil
	}
}

// RegisterDefaultRepairs registers every enabled built-in repair
func RegisterDefaultRepairs(t *Trigger, cfg *config.Config, deps Dependencies) error {
	if deps.Store == nil {
		return errors.NewValidationError("MISSING_DEPENDENCY", "performance sample store is required")
	}
	if deps.Memory == nil {
		deps.Memory = health.RuntimeMemory
	}
	if deps.FreeMemory == nil {
		deps.FreeMemory = FreeMemory
	}
	if deps.Uptime == nil {
		started := time.Now()
		deps.Uptime = func() time.Duration { return time.Since(started) }
	}

	log := t.logger

	defs := []struct {
		name string
		def  Definition
	}{
		{config.RepairMemoryCleanup, Definition{
			Label:   "Memory Cleanup",
			Trigger: CheckUnhealthy(config.CheckMemory),
			Action:  NewMemoryCleanup(deps.Store, deps.Memory, deps.FreeMemory),
		}},
		{config.RepairResponseOptimization, Definition{
			Label:   "Response Time Optimization",
			Trigger: CheckUnhealthy(config.CheckResponseTime),
			Action:  NewResponseOptimization(deps.Store),
		}},
		{config.RepairErrorMitigation, Definition{
			Label:   "Error Rate Mitigation",
			Trigger: CheckUnhealthy(config.CheckErrorRate),
			Action:  NewErrorMitigation(deps.Store, log.WithRepair(config.RepairErrorMitigation)),
		}},
		{config.RepairStabilityCheck, Definition{
			Label:   "System Stability Check",
			Trigger: CriticalFailures(stabilityMinCritical),
			Action:  NewStabilityReport(deps.Store, deps.Memory, deps.Uptime, log.WithRepair(config.RepairStabilityCheck)),
		}},
	}

	for _, d := range defs {
		repairCfg, err := cfg.GetRepairConfig(d.name)
		if err != nil {
			return err
		}
		if !repairCfg.Enabled {
			continue
		}

		d.def.Cooldown = time.Duration(repairCfg.Cooldown)
		if err := t.RegisterRepair(d.name, d.def); err != nil {
			return err
		}
	}

	return nil
}
