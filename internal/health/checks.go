package health

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"buddy-monitor/internal/metrics"
)

// MemoryStats is the subset of runtime memory statistics the checks use
type MemoryStats struct {
	HeapAlloc    uint64
	HeapSys      uint64
	HeapInuse    uint64
	HeapReleased uint64
	Sys          uint64
	NumGC        uint32
	Goroutines   int
}

// MemorySource returns current memory statistics
type MemorySource func() MemoryStats

// RuntimeMemory reads memory statistics from the Go runtime
func RuntimeMemory() MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return MemoryStats{
		HeapAlloc:    ms.HeapAlloc,
		HeapSys:      ms.HeapSys,
		HeapInuse:    ms.HeapInuse,
		HeapReleased: ms.HeapReleased,
		Sys:          ms.Sys,
		NumGC:        ms.NumGC,
		Goroutines:   runtime.NumGoroutine(),
	}
}

// HeapUsedRatio is heap-used / heap-total
func (s MemoryStats) HeapUsedRatio() float64 {
	if s.HeapSys == 0 {
		return 0
	}
	return float64(s.HeapAlloc) / float64(s.HeapSys)
}

// HeapInuseRatio is in-use heap spans over the heap the runtime still holds
// from the OS
func (s MemoryStats) HeapInuseRatio() float64 {
	if s.HeapSys <= s.HeapReleased {
		return 0
	}
	return float64(s.HeapInuse) / float64(s.HeapSys-s.HeapReleased)
}

// NewServerCheck reports process liveness. It is always healthy.
func NewServerCheck(mem MemorySource) CheckFunc {
	started := time.Now()

	return func(_ context.Context) (Reading, error) {
		stats := mem()
		uptime := time.Since(started)

		return Reading{
			Healthy: true,
			Message: fmt.Sprintf("Server up for %s", uptime.Round(time.Second)),
			Details: map[string]interface{}{
				"uptime_seconds": uptime.Seconds(),
				"goroutines":     stats.Goroutines,
				"sys_bytes":      stats.Sys,
				"heap_alloc":     stats.HeapAlloc,
				"pid":            os.Getpid(),
				"go_version":     runtime.Version(),
			},
		}, nil
	}
}

// NewMemoryCheck is unhealthy when heap-used / heap-total reaches threshold
func NewMemoryCheck(mem MemorySource, threshold float64) CheckFunc {
	return func(_ context.Context) (Reading, error) {
		stats := mem()
		ratio := stats.HeapUsedRatio()
		healthy := ratio < threshold

		message := fmt.Sprintf("Heap usage %.1f%%", ratio*100)
		if !healthy {
			message = fmt.Sprintf("Heap usage %.1f%% at or above %.0f%%", ratio*100, threshold*100)
		}

		return Reading{
			Healthy: healthy,
			Message: message,
			Details: map[string]interface{}{
				"heap_used":         stats.HeapAlloc,
				"heap_total":        stats.HeapSys,
				"heap_used_percent": ratio * 100,
				"threshold_percent": threshold * 100,
				"num_gc":            stats.NumGC,
			},
		}, nil
	}
}

// NewResponseTimeCheck is unhealthy when the mean response time of the last
// window samples reaches threshold. No samples is healthy.
func NewResponseTimeCheck(store *metrics.Store, window int, threshold time.Duration) CheckFunc {
	return func(_ context.Context) (Reading, error) {
		avg, n := store.AverageResponseTime(window)
		healthy := n == 0 || avg < threshold

		message := fmt.Sprintf("Average response time %s over %d samples", avg, n)
		if n == 0 {
			message = "No performance samples recorded"
		}

		return Reading{
			Healthy: healthy,
			Message: message,
			Details: map[string]interface{}{
				"average_ms":   float64(avg) / float64(time.Millisecond),
				"samples":      n,
				"threshold_ms": float64(threshold) / float64(time.Millisecond),
			},
		}, nil
	}
}

// NewErrorRateCheck is unhealthy when the share of responses with status
// >= 400 over the last window samples reaches threshold
func NewErrorRateCheck(store *metrics.Store, window int, threshold float64) CheckFunc {
	return func(_ context.Context) (Reading, error) {
		rate, n := store.ErrorRate(window)
		healthy := n == 0 || rate < threshold

		message := fmt.Sprintf("Error rate %.1f%% over %d samples", rate*100, n)
		if n == 0 {
			message = "No performance samples recorded"
		}

		return Reading{
			Healthy: healthy,
			Message: message,
			Details: map[string]interface{}{
				"error_rate":        rate,
				"samples":           n,
				"threshold":         threshold,
				"total_samples":     store.Len(),
				"error_rate_window": window,
			},
		}, nil
	}
}

// NewRuntimeHeapCheck is unhealthy when in-use heap spans fill threshold of
// the heap retained from the OS
func NewRuntimeHeapCheck(mem MemorySource, threshold float64) CheckFunc {
	return func(_ context.Context) (Reading, error) {
		stats := mem()
		ratio := stats.HeapInuseRatio()
		retained := uint64(0)
		if stats.HeapSys > stats.HeapReleased {
			retained = stats.HeapSys - stats.HeapReleased
		}

		return Reading{
			Healthy: ratio < threshold,
			Message: fmt.Sprintf("Heap in use %.1f%% of retained", ratio*100),
			Details: map[string]interface{}{
				"heap_inuse":        stats.HeapInuse,
				"heap_retained":     retained,
				"heap_released":     stats.HeapReleased,
				"inuse_percent":     ratio * 100,
				"threshold_percent": threshold * 100,
			},
		}, nil
	}
}
