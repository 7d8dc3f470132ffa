package healing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"buddy-monitor/internal/health"
	"buddy-monitor/pkg/errors"
	"buddy-monitor/pkg/logger"
)

const defaultAttemptLog = 100

type repairState struct {
	lastAttempt time.Time
	attempts    int
	lastSuccess bool
	lastError   string
}

// Trigger owns the repair registry and the per-repair cooldown state.
// Evaluate runs repairs one at a time; concurrent calls are serialized.
type Trigger struct {
	logger *logger.Logger
	now    func() time.Time

	evalMu sync.Mutex

	mu       sync.RWMutex
	repairs  map[string]Definition
	order    []string
	state    map[string]*repairState
	attempts []Attempt
	maxLog   int
}

// NewTrigger creates an empty repair trigger
func NewTrigger(log *logger.Logger) *Trigger {
	return &Trigger{
		logger:  log.WithComponent("healing"),
		now:     time.Now,
		repairs: make(map[string]Definition),
		state:   make(map[string]*repairState),
		maxLog:  defaultAttemptLog,
	}
}

// RegisterRepair adds a repair. A name that is already registered fails
// with errors.ErrDuplicateRepair.
func (t *Trigger) RegisterRepair(name string, def Definition) error {
	if name == "" {
		return errors.NewValidationError("INVALID_REPAIR", "repair name cannot be empty")
	}
	if def.Trigger == nil || def.Action == nil {
		return errors.WithComponent(errors.NewValidationError("INVALID_REPAIR",
			"repair needs a trigger and an action"), name)
	}
	if def.Cooldown < 0 {
		return errors.WithComponent(errors.NewValidationError("INVALID_COOLDOWN",
			"repair cooldown cannot be negative"), name)
	}
	if def.Label == "" {
		def.Label = name
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.repairs[name]; exists {
		return errors.NewDuplicateRepairError(name)
	}

	t.repairs[name] = def
	t.order = append(t.order, name)

	t.logger.Info("Repair registered",
		logger.String("repair", name),
		logger.Duration("cooldown", def.Cooldown))
	return nil
}

// Hook adapts Evaluate to the monitor's repair hook
func (t *Trigger) Hook() health.RepairHook {
	return func(ctx context.Context, snapshot map[string]health.Reading) {
		t.Evaluate(ctx, snapshot)
	}
}

// Evaluate runs, in registration order, every repair whose trigger matches
// the snapshot and whose cooldown has elapsed. The invocation time is
// recorded whether the action succeeds or not. It returns the attempts made.
func (t *Trigger) Evaluate(ctx context.Context, snapshot map[string]health.Reading) []Attempt {
	t.evalMu.Lock()
	defer t.evalMu.Unlock()

	var made []Attempt
	for _, name := range t.Names() {
		t.mu.RLock()
		def := t.repairs[name]
		t.mu.RUnlock()

		if !t.triggered(name, def, snapshot) {
			continue
		}

		if remaining := t.cooldownRemaining(name, def); remaining > 0 {
			t.logger.Debug("Repair in cooldown",
				logger.String("repair", name),
				logger.Duration("remaining", remaining))
			continue
		}

		made = append(made, t.run(ctx, name, def))
	}
	return made
}

// History returns one entry per repair that has run, in registration order
func (t *Trigger) History() []HistoryEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	var history []HistoryEntry
	for _, name := range t.order {
		st, ok := t.state[name]
		if !ok {
			continue
		}
		def := t.repairs[name]

		history = append(history, HistoryEntry{
			Repair:            name,
			Label:             def.Label,
			LastAttempt:       st.lastAttempt,
			Cooldown:          def.Cooldown,
			CooldownRemaining: remainingAt(now, st.lastAttempt, def.Cooldown),
			Attempts:          st.attempts,
			LastSuccess:       st.lastSuccess,
			LastError:         st.lastError,
		})
	}
	return history
}

// Attempts returns up to limit of the most recent attempts, newest first.
// A non-positive limit returns all retained attempts.
func (t *Trigger) Attempts(limit int) []Attempt {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > len(t.attempts) {
		limit = len(t.attempts)
	}

	out := make([]Attempt, 0, limit)
	for i := len(t.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, t.attempts[i])
	}
	return out
}

// Names returns the registered repair names in registration order
func (t *Trigger) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.order...)
}

func (t *Trigger) triggered(name string, def Definition, snapshot map[string]health.Reading) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Repair trigger panicked",
				logger.String("repair", name),
				logger.Err(errors.NewPanicError(name, r)))
			ok = false
		}
	}()
	return def.Trigger(snapshot)
}

func (t *Trigger) cooldownRemaining(name string, def Definition) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.state[name]
	if !ok {
		return 0
	}
	return remainingAt(t.now(), st.lastAttempt, def.Cooldown)
}

func (t *Trigger) run(ctx context.Context, name string, def Definition) Attempt {
	attempt := Attempt{
		ID:        uuid.NewString(),
		Repair:    name,
		Label:     def.Label,
		StartedAt: t.now(),
	}

	t.logger.Info("Executing repair",
		logger.String("repair", name),
		logger.String("attempt_id", attempt.ID))

	result, err := t.execute(ctx, name, def)
	finished := t.now()

	attempt.Duration = finished.Sub(attempt.StartedAt)
	attempt.Result = result
	attempt.Success = err == nil
	if err != nil {
		attempt.Error = err.Error()
	}

	t.mu.Lock()
	st, ok := t.state[name]
	if !ok {
		st = &repairState{}
		t.state[name] = st
	}
	st.lastAttempt = finished
	st.attempts++
	st.lastSuccess = attempt.Success
	st.lastError = attempt.Error

	t.attempts = append(t.attempts, attempt)
	if len(t.attempts) > t.maxLog {
		t.attempts = append([]Attempt(nil), t.attempts[len(t.attempts)-t.maxLog:]...)
	}
	t.mu.Unlock()

	t.logger.LogRepair(name, attempt.Duration, result, err)
	return attempt
}

func (t *Trigger) execute(ctx context.Context, name string, def Definition) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errors.NewPanicError(name, r)
		}
	}()

	result, err = def.Action(ctx)
	if err != nil {
		return result, errors.NewRepairError(name, err)
	}
	return result, nil
}

func remainingAt(now, last time.Time, cooldown time.Duration) time.Duration {
	remaining := cooldown - now.Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}
