package logger

import (
	"sync"

	"go.uber.org/zap/zapcore"
)

// ErrorListener receives the message and error text of every entry logged
// at error level or above. errText is empty when the entry carries no
// "error" field.
type ErrorListener func(message, errText string)

type listenerHub struct {
	mu        sync.RWMutex
	listeners []ErrorListener
}

func newListenerHub() *listenerHub {
	return &listenerHub{}
}

func (h *listenerHub) add(fn ErrorListener) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *listenerHub) snapshot() []ErrorListener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ErrorListener, len(h.listeners))
	copy(out, h.listeners)
	return out
}

// listenerCore is tee'd next to the encoding cores. It never writes output;
// it only forwards error entries to the hub.
type listenerCore struct {
	hub    *listenerHub
	fields []zapcore.Field
}

func (c *listenerCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= zapcore.ErrorLevel
}

func (c *listenerCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &listenerCore{hub: c.hub, fields: merged}
}

func (c *listenerCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *listenerCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	listeners := c.hub.snapshot()
	if len(listeners) == 0 {
		return nil
	}

	// Entry fields win over fields attached with With.
	errText := errorText(fields)
	if errText == "" {
		errText = errorText(c.fields)
	}

	for _, fn := range listeners {
		fn(ent.Message, errText)
	}
	return nil
}

func (c *listenerCore) Sync() error {
	return nil
}

func errorText(fields []zapcore.Field) string {
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if f.Key != "error" {
			continue
		}
		switch f.Type {
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				return err.Error()
			}
		case zapcore.StringType:
			return f.String
		}
	}
	return ""
}
