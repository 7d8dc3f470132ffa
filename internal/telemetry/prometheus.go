// Package telemetry exports monitor state as Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"buddy-monitor/internal/healing"
	"buddy-monitor/internal/health"
)

// HealthSource provides the cached health view
type HealthSource interface {
	CurrentHealth() health.OverallHealth
}

// RepairSource provides repair history
type RepairSource interface {
	History() []healing.HistoryEntry
}

// PatternSource provides error pattern counts
type PatternSource interface {
	Len() int
	Evicted() int64
}

// SampleSource provides the performance sample count
type SampleSource interface {
	Len() int
}

// Sources groups what the collector reads on every scrape. Nil sources are
// skipped.
type Sources struct {
	Health   HealthSource
	Repairs  RepairSource
	Patterns PatternSource
	Samples  SampleSource
}

// PrometheusMetrics provides Prometheus metrics for the monitor. Every
// scrape builds const metrics from the sources, so concurrent scrapes share
// no mutable state.
type PrometheusMetrics struct {
	sources Sources

	// Health metrics
	overallStatus *prometheus.Desc
	checkStatus   *prometheus.Desc
	checkDuration *prometheus.Desc

	// Repair metrics
	repairAttempts          *prometheus.Desc
	repairCooldownRemaining *prometheus.Desc
	repairLastSuccess       *prometheus.Desc

	// Error pattern metrics
	patternsTracked *prometheus.Desc
	patternsEvicted *prometheus.Desc

	samplesStored *prometheus.Desc
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance.
func NewPrometheusMetrics(sources Sources) *PrometheusMetrics {
	return &PrometheusMetrics{
		sources: sources,
		overallStatus: prometheus.NewDesc(
			"buddy_health_status",
			"Overall health status (1=healthy, 0.5=degraded, 0=unhealthy)",
			[]string{"service", "status"}, nil,
		),
		checkStatus: prometheus.NewDesc(
			"buddy_check_status",
			"Status of each health check (1=healthy, 0.5=degraded, 0=unhealthy)",
			[]string{"check", "status", "critical"}, nil,
		),
		checkDuration: prometheus.NewDesc(
			"buddy_check_duration_seconds",
			"Duration of the latest poll of each health check",
			[]string{"check"}, nil,
		),
		repairAttempts: prometheus.NewDesc(
			"buddy_repair_attempts",
			"Number of times each repair has run",
			[]string{"repair"}, nil,
		),
		repairCooldownRemaining: prometheus.NewDesc(
			"buddy_repair_cooldown_remaining_seconds",
			"Time until each repair may run again",
			[]string{"repair"}, nil,
		),
		repairLastSuccess: prometheus.NewDesc(
			"buddy_repair_last_success",
			"Whether the latest run of each repair succeeded (1=yes, 0=no)",
			[]string{"repair"}, nil,
		),
		patternsTracked: prometheus.NewDesc(
			"buddy_error_patterns",
			"Number of distinct error patterns tracked",
			nil, nil,
		),
		patternsEvicted: prometheus.NewDesc(
			"buddy_error_patterns_evicted",
			"Number of error patterns evicted to respect the cap",
			nil, nil,
		),
		samplesStored: prometheus.NewDesc(
			"buddy_performance_samples",
			"Number of performance samples held in memory",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (pm *PrometheusMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- pm.overallStatus
	ch <- pm.checkStatus
	ch <- pm.checkDuration
	ch <- pm.repairAttempts
	ch <- pm.repairCooldownRemaining
	ch <- pm.repairLastSuccess
	ch <- pm.patternsTracked
	ch <- pm.patternsEvicted
	ch <- pm.samplesStored
}

// Collect implements prometheus.Collector and reads every source once.
func (pm *PrometheusMetrics) Collect(ch chan<- prometheus.Metric) {
	pm.collectHealthMetrics(ch)
	pm.collectRepairMetrics(ch)
	pm.collectPatternMetrics(ch)
}

func gauge(desc *prometheus.Desc, value float64, labels ...string) prometheus.Metric {
	return prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value, labels...)
}

func (pm *PrometheusMetrics) collectHealthMetrics(ch chan<- prometheus.Metric) {
	if pm.sources.Health == nil {
		return
	}

	overall := pm.sources.Health.CurrentHealth()
	ch <- gauge(pm.overallStatus, statusValue(overall.Status), overall.ServiceName, string(overall.Status))

	for name, reading := range overall.Checks {
		status := reading.Status()
		ch <- gauge(pm.checkStatus, statusValue(status), name, string(status), boolLabel(reading.Critical))
		ch <- gauge(pm.checkDuration, reading.Duration.Seconds(), name)
	}
}

func (pm *PrometheusMetrics) collectRepairMetrics(ch chan<- prometheus.Metric) {
	if pm.sources.Repairs == nil {
		return
	}

	for _, entry := range pm.sources.Repairs.History() {
		success := 0.0
		if entry.LastSuccess {
			success = 1.0
		}
		ch <- gauge(pm.repairAttempts, float64(entry.Attempts), entry.Repair)
		ch <- gauge(pm.repairCooldownRemaining, entry.CooldownRemaining.Seconds(), entry.Repair)
		ch <- gauge(pm.repairLastSuccess, success, entry.Repair)
	}
}

// collectPatternMetrics reports zero for a missing source so the unlabelled
// gauges are always present
func (pm *PrometheusMetrics) collectPatternMetrics(ch chan<- prometheus.Metric) {
	var tracked, evicted, samples float64
	if pm.sources.Patterns != nil {
		tracked = float64(pm.sources.Patterns.Len())
		evicted = float64(pm.sources.Patterns.Evicted())
	}
	if pm.sources.Samples != nil {
		samples = float64(pm.sources.Samples.Len())
	}

	ch <- gauge(pm.patternsTracked, tracked)
	ch <- gauge(pm.patternsEvicted, evicted)
	ch <- gauge(pm.samplesStored, samples)
}

func statusValue(status health.Status) float64 {
	switch status {
	case health.StatusHealthy:
		return 1.0
	case health.StatusDegraded:
		return 0.5
	default:
		return 0.0
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
