package healing

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"buddy-monitor/internal/health"
	"buddy-monitor/pkg/errors"
	"buddy-monitor/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newObservedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.NewWithCore(core), logs
}

func newTestTrigger(t *testing.T) (*Trigger, *fakeClock) {
	t.Helper()

	log, _ := newObservedLogger()
	trig := NewTrigger(log)
	clock := newFakeClock()
	trig.now = clock.Now
	return trig, clock
}

func unhealthy(name string, critical bool) health.Reading {
	return health.Reading{Name: name, Healthy: false, Critical: critical}
}

func countingAction(counter *int) ActionFunc {
	return func(_ context.Context) (Result, error) {
		*counter++
		return Result{"runs": *counter}, nil
	}
}

func TestRegisterRepairDuplicate(t *testing.T) {
	trig, _ := newTestTrigger(t)

	runs := 0
	def := Definition{
		Label:    "Memory Cleanup",
		Trigger:  CheckUnhealthy("memory"),
		Action:   countingAction(&runs),
		Cooldown: time.Minute,
	}
	require.NoError(t, trig.RegisterRepair("memory_cleanup", def))

	err := trig.RegisterRepair("memory_cleanup", def)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateRepair))
	assert.Equal(t, []string{"memory_cleanup"}, trig.Names())
}

func TestRegisterRepairValidation(t *testing.T) {
	trig, _ := newTestTrigger(t)
	runs := 0

	tests := []struct {
		name   string
		repair string
		def    Definition
	}{
		{"empty name", "", Definition{Trigger: CheckUnhealthy("memory"), Action: countingAction(&runs)}},
		{"missing trigger", "a", Definition{Action: countingAction(&runs)}},
		{"missing action", "b", Definition{Trigger: CheckUnhealthy("memory")}},
		{"negative cooldown", "c", Definition{Trigger: CheckUnhealthy("memory"), Action: countingAction(&runs), Cooldown: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := trig.RegisterRepair(tt.repair, tt.def)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "got %v", err)
		})
	}
}

func TestEvaluateRespectsCooldown(t *testing.T) {
	trig, clock := newTestTrigger(t)
	ctx := context.Background()

	runs := 0
	require.NoError(t, trig.RegisterRepair("memory_cleanup", Definition{
		Trigger:  CheckUnhealthy("memory"),
		Action:   countingAction(&runs),
		Cooldown: 5 * time.Minute,
	}))

	snapshot := map[string]health.Reading{"memory": unhealthy("memory", true)}

	attempts := trig.Evaluate(ctx, snapshot)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
	assert.NotEmpty(t, attempts[0].ID)

	clock.Advance(4 * time.Minute)
	assert.Empty(t, trig.Evaluate(ctx, snapshot))
	assert.Equal(t, 1, runs, "repair must run exactly once within its cooldown")

	clock.Advance(time.Minute)
	assert.Len(t, trig.Evaluate(ctx, snapshot), 1)
	assert.Equal(t, 2, runs)
}

func TestEvaluateSkipsUntriggered(t *testing.T) {
	trig, _ := newTestTrigger(t)

	runs := 0
	require.NoError(t, trig.RegisterRepair("memory_cleanup", Definition{
		Trigger: CheckUnhealthy("memory"),
		Action:  countingAction(&runs),
	}))

	snapshot := map[string]health.Reading{
		"memory":     {Name: "memory", Healthy: true},
		"error_rate": unhealthy("error_rate", true),
	}
	assert.Empty(t, trig.Evaluate(context.Background(), snapshot))
	assert.Zero(t, runs)
	assert.Empty(t, trig.History())
}

func TestEvaluateRunsSequentiallyInOrder(t *testing.T) {
	trig, _ := newTestTrigger(t)

	var (
		mu     sync.Mutex
		order  []string
		active int
		maxAct int
	)
	action := func(name string) ActionFunc {
		return func(_ context.Context) (Result, error) {
			mu.Lock()
			active++
			if active > maxAct {
				maxAct = active
			}
			order = append(order, name)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return nil, nil
		}
	}

	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, trig.RegisterRepair(name, Definition{
			Trigger: func(map[string]health.Reading) bool { return true },
			Action:  action(name),
		}))
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trig.Evaluate(context.Background(), nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxAct, "repairs must never overlap")
	require.Len(t, order, 9)
	assert.Equal(t, []string{"first", "second", "third"}, order[:3])
}

func TestFailingRepairStillRecordsCooldown(t *testing.T) {
	trig, clock := newTestTrigger(t)
	ctx := context.Background()

	failRuns := 0
	okRuns := 0
	require.NoError(t, trig.RegisterRepair("broken", Definition{
		Trigger: func(map[string]health.Reading) bool { return true },
		Action: func(_ context.Context) (Result, error) {
			failRuns++
			return nil, fmt.Errorf("journal store locked")
		},
		Cooldown: time.Minute,
	}))
	require.NoError(t, trig.RegisterRepair("panics", Definition{
		Trigger: func(map[string]health.Reading) bool { return true },
		Action: func(_ context.Context) (Result, error) {
			panic("nil sample slice")
		},
		Cooldown: time.Minute,
	}))
	require.NoError(t, trig.RegisterRepair("healthy", Definition{
		Trigger:  func(map[string]health.Reading) bool { return true },
		Action:   countingAction(&okRuns),
		Cooldown: time.Minute,
	}))

	attempts := trig.Evaluate(ctx, nil)
	require.Len(t, attempts, 3)
	assert.False(t, attempts[0].Success)
	assert.Contains(t, attempts[0].Error, "journal store locked")
	assert.False(t, attempts[1].Success)
	assert.Contains(t, attempts[1].Error, "nil sample slice")
	assert.True(t, attempts[2].Success)

	clock.Advance(30 * time.Second)
	assert.Empty(t, trig.Evaluate(ctx, nil))
	assert.Equal(t, 1, failRuns)
	assert.Equal(t, 1, okRuns)

	history := trig.History()
	require.Len(t, history, 3)
	assert.Contains(t, history[0].LastError, "journal store locked")
	assert.False(t, history[0].LastSuccess)
}

func TestTriggerPanicCountsAsNotTriggered(t *testing.T) {
	trig, _ := newTestTrigger(t)

	runs := 0
	require.NoError(t, trig.RegisterRepair("bad_trigger", Definition{
		Trigger: func(snapshot map[string]health.Reading) bool {
			return snapshot["memory"].Details["heap"].(float64) > 0
		},
		Action: countingAction(&runs),
	}))
	require.NoError(t, trig.RegisterRepair("good", Definition{
		Trigger: func(map[string]health.Reading) bool { return true },
		Action:  countingAction(&runs),
	}))

	attempts := trig.Evaluate(context.Background(), map[string]health.Reading{})
	require.Len(t, attempts, 1)
	assert.Equal(t, "good", attempts[0].Repair)
}

func TestHistoryCooldownRemaining(t *testing.T) {
	trig, clock := newTestTrigger(t)

	runs := 0
	require.NoError(t, trig.RegisterRepair("memory_cleanup", Definition{
		Label:    "Memory Cleanup",
		Trigger:  CheckUnhealthy("memory"),
		Action:   countingAction(&runs),
		Cooldown: 5 * time.Minute,
	}))
	require.NoError(t, trig.RegisterRepair("error_mitigation", Definition{
		Trigger:  CheckUnhealthy("error_rate"),
		Action:   countingAction(&runs),
		Cooldown: 15 * time.Minute,
	}))

	trig.Evaluate(context.Background(), map[string]health.Reading{"memory": unhealthy("memory", true)})

	history := trig.History()
	require.Len(t, history, 1)
	assert.Equal(t, "memory_cleanup", history[0].Repair)
	assert.Equal(t, "Memory Cleanup", history[0].Label)
	assert.Equal(t, 1, history[0].Attempts)

	previous := history[0].CooldownRemaining
	assert.Greater(t, previous, time.Duration(0))

	for i := 0; i < 6; i++ {
		clock.Advance(time.Minute)
		remaining := trig.History()[0].CooldownRemaining
		assert.LessOrEqual(t, remaining, previous)
		previous = remaining
	}
	assert.Zero(t, previous)
}

func TestAttemptsLogIsBounded(t *testing.T) {
	trig, _ := newTestTrigger(t)
	trig.maxLog = 5

	runs := 0
	require.NoError(t, trig.RegisterRepair("always", Definition{
		Trigger: func(map[string]health.Reading) bool { return true },
		Action:  countingAction(&runs),
	}))

	for i := 0; i < 8; i++ {
		trig.Evaluate(context.Background(), nil)
	}

	all := trig.Attempts(0)
	require.Len(t, all, 5)
	assert.Equal(t, 8, all[0].Result["runs"], "newest attempt comes first")

	assert.Len(t, trig.Attempts(2), 2)
}

func TestHookEvaluates(t *testing.T) {
	trig, _ := newTestTrigger(t)

	runs := 0
	require.NoError(t, trig.RegisterRepair("memory_cleanup", Definition{
		Trigger: CheckUnhealthy("memory"),
		Action:  countingAction(&runs),
	}))

	trig.Hook()(context.Background(), map[string]health.Reading{"memory": unhealthy("memory", true)})
	assert.Equal(t, 1, runs)
}

func TestRepairOutcomeIsLogged(t *testing.T) {
	log, logs := newObservedLogger()
	trig := NewTrigger(log)

	require.NoError(t, trig.RegisterRepair("broken", Definition{
		Trigger: func(map[string]health.Reading) bool { return true },
		Action: func(_ context.Context) (Result, error) {
			return nil, fmt.Errorf("cannot reach cache")
		},
	}))

	var received []string
	log.OnError(func(message, errText string) {
		received = append(received, message+": "+errText)
	})

	trig.Evaluate(context.Background(), nil)

	failed := logs.FilterMessage("Repair failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].ContextMap()["repair"])
	require.Len(t, received, 1)
	assert.Contains(t, received[0], "cannot reach cache")
}
