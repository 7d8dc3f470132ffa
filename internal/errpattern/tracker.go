package errpattern

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"buddy-monitor/internal/config"
	"buddy-monitor/pkg/errors"
	"buddy-monitor/pkg/logger"
)

// Pattern is a normalized error message and its occurrence statistics
type Pattern struct {
	Key       string    `json:"pattern"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	// Recent holds the latest raw messages, oldest first
	Recent []string `json:"recent"`
}

func (p *Pattern) clone() Pattern {
	c := *p
	c.Recent = append([]string(nil), p.Recent...)
	return c
}

// Tracker counts error patterns. The number of distinct patterns is capped;
// when full, the least recently seen pattern is evicted.
type Tracker struct {
	cfg    config.ErrorPatternsConfig
	logger *logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	patterns *lru.Cache[string, *Pattern]
	evicted  int64
}

// NewTracker creates a tracker bounded by cfg. Zero fields take defaults.
func NewTracker(cfg config.ErrorPatternsConfig, log *logger.Logger) (*Tracker, error) {
	defaults := config.Default().ErrorPatterns
	if cfg.MaxPatterns <= 0 {
		cfg.MaxPatterns = defaults.MaxPatterns
	}
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = defaults.RecentMessages
	}
	if cfg.RecurringThreshold <= 0 {
		cfg.RecurringThreshold = defaults.RecurringThreshold
	}
	if cfg.MaxKeyLength <= 0 {
		cfg.MaxKeyLength = defaults.MaxKeyLength
	}

	t := &Tracker{
		cfg:    cfg,
		logger: log.WithComponent("error-patterns"),
		now:    time.Now,
	}

	cache, err := lru.NewWithEvict[string, *Pattern](cfg.MaxPatterns, t.onEvict)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "INVALID_PATTERN_CAP", "failed to create pattern cache")
	}
	t.patterns = cache

	return t, nil
}

// Record normalizes msg and counts it. Once a pattern has been seen
// RecurringThreshold times, every further occurrence logs a warning.
func (t *Tracker) Record(msg string) Pattern {
	key := Normalize(msg, t.cfg.MaxKeyLength)
	now := t.now()

	t.mu.Lock()
	p, ok := t.patterns.Get(key)
	if !ok {
		p = &Pattern{Key: key, FirstSeen: now}
		t.patterns.Add(key, p)
	}

	p.Count++
	p.LastSeen = now
	p.Recent = append(p.Recent, msg)
	if len(p.Recent) > t.cfg.RecentMessages {
		p.Recent = append([]string(nil), p.Recent[len(p.Recent)-t.cfg.RecentMessages:]...)
	}

	snapshot := p.clone()
	t.mu.Unlock()

	if snapshot.Count >= t.cfg.RecurringThreshold {
		t.logger.Warn("Recurring error pattern",
			logger.String("pattern", snapshot.Key),
			logger.Int("count", snapshot.Count),
			logger.Time("first_seen", snapshot.FirstSeen))
	}

	return snapshot
}

// Summary returns every tracked pattern, most frequent first
func (t *Tracker) Summary() []Pattern {
	t.mu.Lock()
	values := t.patterns.Values()
	summary := make([]Pattern, 0, len(values))
	for _, p := range values {
		summary = append(summary, p.clone())
	}
	t.mu.Unlock()

	sort.Slice(summary, func(i, j int) bool {
		if summary[i].Count != summary[j].Count {
			return summary[i].Count > summary[j].Count
		}
		return summary[i].Key < summary[j].Key
	})
	return summary
}

// Len returns the number of distinct patterns tracked
func (t *Tracker) Len() int {
	return t.patterns.Len()
}

// Evicted returns how many patterns have been dropped to respect the cap
func (t *Tracker) Evicted() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evicted
}

// Listener returns an error listener that records every error-level log
// entry. Register it with logger.OnError.
func (t *Tracker) Listener() logger.ErrorListener {
	return func(message, errText string) {
		if errText != "" {
			message = message + ": " + errText
		}
		t.Record(message)
	}
}

// Guard runs fn and converts a panic into a recorded pattern and a returned
// error, so the calling goroutine survives.
func (t *Tracker) Guard(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = t.RecordPanic(name, r)
		}
	}()

	fn()
	return nil
}

// RecordPanic records an already recovered panic value under name and
// returns it as an error.
func (t *Tracker) RecordPanic(name string, value interface{}, fields ...logger.Field) *errors.Error {
	panicErr := errors.NewPanicError(name, value)
	t.Record(panicErr.Error())

	fields = append([]logger.Field{
		logger.String("component", name),
		logger.Any("panic", value),
	}, fields...)
	t.logger.Warn("Recovered panic", fields...)
	return panicErr
}

// onEvict runs inside Add while t.mu is held
func (t *Tracker) onEvict(key string, _ *Pattern) {
	t.evicted++
	t.logger.Debug("Error pattern evicted", logger.String("pattern", key))
}
