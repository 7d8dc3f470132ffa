package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"buddy-monitor/pkg/errors"
	"buddy-monitor/pkg/logger"
)

type job struct {
	id       string
	interval time.Duration
	run      RunFunc
	nextRun  time.Time
	lastRun  *time.Time
	lastErr  string
	runs     int64
	failures int64
}

// Scheduler runs every job in its own goroutine driven by its own ticker,
// so a slow or hung job delays only itself.
type Scheduler struct {
	logger  *logger.Logger
	onPanic PanicHandler

	mu        sync.RWMutex
	status    Status
	startTime *time.Time
	jobs      map[string]*job

	completedRuns int64
	failedRuns    int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped scheduler
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		logger: log.WithComponent("scheduler"),
		status: StatusStopped,
		jobs:   make(map[string]*job),
	}
}

// SetPanicHandler installs a handler called after a job panic is recovered
func (s *Scheduler) SetPanicHandler(h PanicHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPanic = h
}

// Schedule registers a job. When the scheduler is already running the job
// starts immediately; its first run happens one interval later.
func (s *Scheduler) Schedule(id string, interval time.Duration, run RunFunc) error {
	if id == "" {
		return errors.NewValidationError("INVALID_JOB_ID", "job id cannot be empty")
	}
	if interval <= 0 {
		return errors.WithComponent(errors.NewValidationError("INVALID_INTERVAL",
			"job interval must be positive"), id)
	}
	if run == nil {
		return errors.WithComponent(errors.NewValidationError("INVALID_JOB",
			"job function cannot be nil"), id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return errors.NewDuplicateJobError(id)
	}

	j := &job{
		id:       id,
		interval: interval,
		run:      run,
		nextRun:  time.Now().Add(interval),
	}
	s.jobs[id] = j

	s.logger.Info("Scheduled job",
		logger.String("job_id", id),
		logger.Duration("interval", interval))

	if s.status == StatusRunning {
		s.startJobLocked(j)
	}
	return nil
}

// Start begins running all scheduled jobs. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusRunning {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	now := time.Now()
	s.startTime = &now
	s.status = StatusRunning

	for _, j := range s.jobs {
		j.nextRun = now.Add(j.interval)
		s.startJobLocked(j)
	}

	s.logger.Info("Scheduler started", logger.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels every job loop and waits for in-flight runs to return or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusStopping
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timeout")
		err = errors.NewTimeoutError("scheduler", ctx.Err())
	}

	s.mu.Lock()
	s.status = StatusStopped
	s.mu.Unlock()
	return err
}

// RunNow executes a job synchronously outside its timer
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	s.mu.RLock()
	j, exists := s.jobs[id]
	s.mu.RUnlock()

	if !exists {
		return errors.WithComponent(errors.NewValidationError("JOB_NOT_FOUND", "job not found"), id)
	}

	return s.execute(ctx, j)
}

// GetScheduledJobs returns all jobs sorted by ID
func (s *Scheduler) GetScheduledJobs() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]ScheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		view := ScheduledJob{
			ID:        j.id,
			Interval:  j.interval,
			NextRun:   j.nextRun,
			LastError: j.lastErr,
			Runs:      j.runs,
			Failures:  j.failures,
		}
		if j.lastRun != nil {
			last := *j.lastRun
			view.LastRun = &last
		}
		jobs = append(jobs, view)
	}

	sort.Slice(jobs, func(a, b int) bool { return jobs[a].ID < jobs[b].ID })
	return jobs
}

// GetInfo returns current scheduler status and statistics
func (s *Scheduler) GetInfo() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Info{
		Status:        s.status,
		StartTime:     s.startTime,
		JobCount:      len(s.jobs),
		CompletedRuns: s.completedRuns,
		FailedRuns:    s.failedRuns,
	}
}

// Health returns an error when the scheduler is not running or a job has
// missed more than two of its intervals
func (s *Scheduler) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status != StatusRunning {
		return errors.NewValidationError("SCHEDULER_STOPPED", "scheduler is not running")
	}

	now := time.Now()
	for _, j := range s.jobs {
		if now.Sub(j.nextRun) > 2*j.interval {
			return errors.WithComponent(errors.NewValidationError("JOB_STALLED",
				"job has not run for more than two intervals"), j.id)
		}
	}
	return nil
}

func (s *Scheduler) startJobLocked(j *job) {
	s.wg.Add(1)
	go s.loop(s.ctx, j)
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.execute(ctx, j)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) (err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewPanicError(j.id, r)

			s.mu.RLock()
			handler := s.onPanic
			s.mu.RUnlock()

			s.logger.Error("Job panicked",
				logger.String("job_id", j.id),
				logger.Err(err))
			if handler != nil {
				handler(j.id, r)
			}
		}

		s.mu.Lock()
		j.lastRun = &start
		j.nextRun = time.Now().Add(j.interval)
		j.runs++
		s.completedRuns++
		j.lastErr = ""
		if err != nil {
			j.failures++
			s.failedRuns++
			j.lastErr = err.Error()
		}
		s.mu.Unlock()
	}()

	return j.run(ctx)
}
