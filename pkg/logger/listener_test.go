package logger

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type capturedError struct {
	message string
	errText string
}

type errorRecorder struct {
	mu     sync.Mutex
	events []capturedError
}

func (r *errorRecorder) listen(message, errText string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, capturedError{message: message, errText: errText})
}

func (r *errorRecorder) all() []capturedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedError(nil), r.events...)
}

func TestOnErrorReceivesErrorEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core)

	rec := &errorRecorder{}
	log.OnError(rec.listen)

	log.Info("not an error")
	log.Warn("still not an error")
	log.Error("save failed", Err(errors.New("disk full")))
	log.Error("plain failure")

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("Expected 2 error events, got %d", len(events))
	}
	if events[0].message != "save failed" || events[0].errText != "disk full" {
		t.Errorf("Unexpected first event: %+v", events[0])
	}
	if events[1].message != "plain failure" || events[1].errText != "" {
		t.Errorf("Unexpected second event: %+v", events[1])
	}

	// The wrapped core still receives every entry.
	if logs.Len() != 4 {
		t.Errorf("Expected 4 observed entries, got %d", logs.Len())
	}
}

func TestOnErrorSharedWithDerivedLoggers(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core)

	rec := &errorRecorder{}
	log.OnError(rec.listen)

	derived := log.WithComponent("health").WithError(errors.New("from context"))
	derived.Error("check crashed")
	derived.Error("check crashed again", String("error", "explicit text"))

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].errText != "from context" {
		t.Errorf("Expected error text from With fields, got %q", events[0].errText)
	}
	if events[1].errText != "explicit text" {
		t.Errorf("Expected entry field to win, got %q", events[1].errText)
	}
}

func TestOnErrorIgnoresNilListener(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core)
	log.OnError(nil)

	// Must not panic.
	log.Error("no listeners")
}
