package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"buddy-monitor/internal/scheduler"
	"buddy-monitor/pkg/errors"
	"buddy-monitor/pkg/logger"
)

// Monitor owns the check registry and the latest reading per check
type Monitor struct {
	service   string
	version   string
	logger    *logger.Logger
	scheduler *scheduler.Scheduler
	hook      RepairHook
	startTime time.Time
	now       func() time.Time

	mu       sync.RWMutex
	checks   map[string]Definition
	order    []string
	readings map[string]Reading
	running  bool
}

// NewMonitor creates a health monitor. hook may be nil.
func NewMonitor(service, version string, hook RepairHook, log *logger.Logger) *Monitor {
	m := &Monitor{
		service:   service,
		version:   version,
		logger:    log.WithComponent("health"),
		scheduler: scheduler.New(log),
		hook:      hook,
		startTime: time.Now(),
		now:       time.Now,
		checks:    make(map[string]Definition),
		readings:  make(map[string]Reading),
	}

	m.scheduler.SetPanicHandler(func(jobID string, value interface{}) {
		m.logger.Error("Health check job panicked",
			logger.String("job_id", jobID),
			logger.Any("panic", value))
	})

	return m
}

// SetRepairHook replaces the hook called on unhealthy readings
func (m *Monitor) SetRepairHook(hook RepairHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// RegisterCheck adds a check. A name that is already registered fails with
// errors.ErrDuplicateCheck and leaves the original registration intact.
// Checks registered while the monitor is running start polling at once.
func (m *Monitor) RegisterCheck(name string, def Definition) error {
	if name == "" {
		return errors.NewValidationError("INVALID_CHECK", "check name cannot be empty")
	}
	if def.Check == nil {
		return errors.WithComponent(errors.NewValidationError("INVALID_CHECK",
			"check function cannot be nil"), name)
	}
	if def.Interval <= 0 {
		return errors.WithComponent(errors.NewValidationError("INVALID_INTERVAL",
			"check interval must be positive"), name)
	}
	if def.Label == "" {
		def.Label = name
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.checks[name]; exists {
		return errors.NewDuplicateCheckError(name)
	}

	err := m.scheduler.Schedule(jobID(name), def.Interval, func(ctx context.Context) error {
		_, err := m.RunCheck(ctx, name)
		return err
	})
	if err != nil {
		return err
	}

	m.checks[name] = def
	m.order = append(m.order, name)

	m.logger.Info("Health check registered",
		logger.String("check", name),
		logger.Duration("interval", def.Interval),
		logger.Bool("critical", def.Critical))
	return nil
}

// Start begins polling every registered check on its own interval. Calling
// Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	count := len(m.checks)
	m.mu.Unlock()

	m.logger.Info("Starting health monitor", logger.Int("checks", count))
	return m.scheduler.Start(ctx)
}

// Stop stops polling and waits for in-flight checks until ctx expires
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	m.logger.Info("Health monitor stopping")
	return m.scheduler.Stop(ctx)
}

// IsRunning returns whether the monitor is polling
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// RunCheck performs one polling pass of a check: run it, cache the reading
// and, when it reports unhealthy, pass the snapshot of fresh readings to
// the repair hook. A check that errors or panics is cached as unhealthy and
// does not reach the hook.
func (m *Monitor) RunCheck(ctx context.Context, name string) (Reading, error) {
	reading, err := m.refresh(ctx, name)
	if err != nil {
		return reading, err
	}

	if !reading.Healthy {
		m.mu.RLock()
		hook := m.hook
		m.mu.RUnlock()

		if hook != nil {
			// A slow poll can finish after its own reading went stale
			snapshot := m.Snapshot()
			snapshot[name] = reading
			hook(ctx, snapshot)
		}
	}

	return reading, nil
}

// GetStatus runs every registered check concurrently, updates the cache
// and returns the readings by check name. It never triggers repairs.
func (m *Monitor) GetStatus(ctx context.Context) map[string]Reading {
	names := m.CheckNames()

	var (
		mu      sync.Mutex
		results = make(map[string]Reading, len(names))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			reading, _ := m.refresh(gctx, name)

			mu.Lock()
			results[name] = reading
			mu.Unlock()

			// Check failures are already cached; only cancellation
			// is reported to the group
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		m.logger.Warn("Status refresh cut short",
			logger.Err(err),
			logger.Int("completed", len(results)),
			logger.Int("checks", len(names)))
	}
	return results
}

// Snapshot returns the cached readings that are still fresh. A reading
// older than twice its check's interval is left out.
func (m *Monitor) Snapshot() map[string]Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	snapshot := make(map[string]Reading, len(m.readings))
	for name, reading := range m.readings {
		def, ok := m.checks[name]
		if !ok {
			continue
		}
		if now.Sub(reading.Timestamp) > 2*def.Interval {
			continue
		}
		snapshot[name] = reading
	}
	return snapshot
}

// GetHealth runs every check and aggregates the results
func (m *Monitor) GetHealth(ctx context.Context) OverallHealth {
	return m.buildHealth(m.GetStatus(ctx))
}

// CurrentHealth aggregates the cached readings without running checks
func (m *Monitor) CurrentHealth() OverallHealth {
	m.mu.RLock()
	readings := make(map[string]Reading, len(m.readings))
	for name, reading := range m.readings {
		readings[name] = reading
	}
	m.mu.RUnlock()

	return m.buildHealth(readings)
}

// CheckNames returns the registered check names in registration order
func (m *Monitor) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Checks describes every registered check in registration order
func (m *Monitor) Checks() []CheckInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]CheckInfo, 0, len(m.order))
	for _, name := range m.order {
		def := m.checks[name]
		infos = append(infos, CheckInfo{
			Name:     name,
			Label:    def.Label,
			Interval: def.Interval,
			Critical: def.Critical,
		})
	}
	return infos
}

// Jobs returns the polling jobs backing the registered checks
func (m *Monitor) Jobs() []scheduler.ScheduledJob {
	return m.scheduler.GetScheduledJobs()
}

// SchedulerInfo reports the polling scheduler's state and run counters
func (m *Monitor) SchedulerInfo() scheduler.Info {
	return m.scheduler.GetInfo()
}

// PollingHealth returns an error when polling is stopped or a check job
// has stalled
func (m *Monitor) PollingHealth() error {
	return m.scheduler.Health()
}

// Poll runs one polling pass of a check through its scheduled job, so the
// run shows up in the job counters and may trigger repairs
func (m *Monitor) Poll(ctx context.Context, name string) error {
	m.mu.RLock()
	_, exists := m.checks[name]
	m.mu.RUnlock()

	if !exists {
		return errors.WithComponent(errors.NewValidationError("CHECK_NOT_FOUND", "check not registered"), name)
	}
	return m.scheduler.RunNow(ctx, jobID(name))
}

// Uptime returns how long the monitor has existed
func (m *Monitor) Uptime() time.Duration {
	return m.now().Sub(m.startTime)
}

func (m *Monitor) refresh(ctx context.Context, name string) (Reading, error) {
	m.mu.RLock()
	def, ok := m.checks[name]
	m.mu.RUnlock()

	if !ok {
		return Reading{}, errors.WithComponent(errors.NewValidationError("CHECK_NOT_FOUND",
			"health check not registered"), name)
	}

	reading, err := m.execute(ctx, name, def)

	m.mu.Lock()
	m.readings[name] = reading
	m.mu.Unlock()

	if err != nil {
		m.logger.WithCheck(name).Error("Health check failed",
			logger.Err(err),
			logger.Duration("duration", reading.Duration))
		return reading, err
	}

	m.logger.LogHealthCheck(name, reading.Healthy, reading.Message, reading.Duration)
	return reading, nil
}

func (m *Monitor) execute(ctx context.Context, name string, def Definition) (reading Reading, err error) {
	start := m.now()

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewPanicError(name, r)
			reading = Reading{Message: "health check panicked"}
		}
		if err != nil {
			reading.Healthy = false
			reading.Error = err.Error()
			if reading.Message == "" {
				reading.Message = "health check failed"
			}
		}

		reading.Name = name
		reading.Critical = def.Critical
		reading.Timestamp = start
		reading.Duration = m.now().Sub(start)
	}()

	reading, err = def.Check(ctx)
	if err != nil {
		reading = Reading{}
		err = errors.NewCheckError(name, err)
	}
	return reading, err
}

func (m *Monitor) buildHealth(readings map[string]Reading) OverallHealth {
	health := OverallHealth{
		Timestamp:   m.now(),
		Uptime:      m.Uptime(),
		Version:     m.version,
		ServiceName: m.service,
		Checks:      readings,
	}

	statuses := make(map[string]Status, len(readings))
	for _, name := range m.CheckNames() {
		statuses[name] = StatusUnknown
		if reading, ok := readings[name]; ok {
			statuses[name] = reading.Status()
		}
	}

	health.Status, health.Summary = aggregateStatus(statuses)
	return health
}

// aggregateStatus determines the overall health status from individual checks
func aggregateStatus(checks map[string]Status) (Status, string) {
	if len(checks) == 0 {
		return StatusUnknown, "No health checks configured"
	}

	var healthy, unhealthy, degraded, unknown int
	total := len(checks)

	for _, status := range checks {
		switch status {
		case StatusHealthy:
			healthy++
		case StatusUnhealthy:
			unhealthy++
		case StatusDegraded:
			degraded++
		default:
			unknown++
		}
	}

	summary := generateSummary(healthy, unhealthy, degraded, unknown, total)

	switch {
	case unhealthy > 0:
		return StatusUnhealthy, summary
	case degraded > 0:
		return StatusDegraded, summary
	case healthy == total:
		return StatusHealthy, summary
	case healthy > 0:
		// Some checks have not reported yet
		return StatusDegraded, summary
	default:
		return StatusUnknown, summary
	}
}

// generateSummary creates a human-readable summary of health check results
func generateSummary(healthy, unhealthy, degraded, unknown, total int) string {
	if total == 1 {
		switch {
		case healthy == 1:
			return "All systems operational"
		case unhealthy == 1:
			return "System experiencing issues"
		case degraded == 1:
			return "System performance degraded"
		default:
			return "System status unknown"
		}
	}

	if unhealthy > 0 {
		return fmt.Sprintf("%d of %d checks failing", unhealthy, total)
	}

	if degraded > 0 {
		return fmt.Sprintf("%d of %d checks degraded", degraded, total)
	}

	if unknown > 0 && healthy > 0 {
		return fmt.Sprintf("%d of %d checks healthy, %d unknown", healthy, total, unknown)
	}

	if healthy == total {
		return "All systems operational"
	}

	return fmt.Sprintf("%d checks total: %d healthy, %d degraded, %d unhealthy, %d unknown",
		total, healthy, degraded, unhealthy, unknown)
}

func jobID(check string) string {
	return "check:" + check
}
