package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewWithCore(core), logs
}

func TestNewLoggerConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "json", config: Config{Level: "info", Format: "json"}},
		{name: "text", config: Config{Level: "debug", Format: "text"}},
		{name: "console alias", config: Config{Level: "warn", Format: "console"}},
		{name: "bad level", config: Config{Level: "verbose", Format: "json"}, wantErr: "invalid log level"},
		{name: "bad format", config: Config{Level: "info", Format: "xml"}, wantErr: "unsupported log format"},
		{
			name:    "unwritable output",
			config:  Config{Level: "info", Format: "json", OutputPath: filepath.Join(t.TempDir(), "missing", "dir", "out.log")},
			wantErr: "failed to open log output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.config)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			_ = log.Sync()
		})
	}
}

func TestNewLoggerSplitsOutputByLevel(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "monitor.log")
	errFile := filepath.Join(dir, "monitor-error.log")

	log, err := NewLogger(Config{
		Level:      "info",
		Format:     "json",
		OutputPath: outFile,
		ErrorPath:  errFile,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	log.Debug("cache primed")
	log.Info("check registered", String("check", "memory"))
	log.Error("speech synthesis failed", Err(errors.New("upstream timeout")))
	_ = log.Sync()

	out, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}
	errOut, err := os.ReadFile(errFile)
	if err != nil {
		t.Fatalf("Failed to read error file: %v", err)
	}

	if strings.Contains(string(out), "cache primed") {
		t.Error("Debug entry written at info level")
	}
	if !strings.Contains(string(out), `"check":"memory"`) {
		t.Errorf("Output missing info entry: %s", out)
	}
	if strings.Contains(string(out), "speech synthesis failed") {
		t.Error("Error entry written to the info output")
	}
	if !strings.Contains(string(errOut), "upstream timeout") {
		t.Errorf("Error output missing error entry: %s", errOut)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
		ok    bool
	}{
		{"debug", zapcore.DebugLevel, true},
		{"INFO", zapcore.InfoLevel, true},
		{" warn ", zapcore.WarnLevel, true},
		{"Warning", zapcore.WarnLevel, true},
		{"error", zapcore.ErrorLevel, true},
		{"fatal", zapcore.FatalLevel, true},
		{"loud", zapcore.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			if (err == nil) != tt.ok {
				t.Fatalf("parseLevel(%q) error = %v, want ok=%v", tt.input, err, tt.ok)
			}
			if level != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, level, tt.want)
			}
		})
	}
}

func TestScopedLoggersCarryFields(t *testing.T) {
	log, logs := observed(zapcore.DebugLevel)

	log.WithComponent("health").WithCheck("memory").Info("polled")
	log.WithRepair("memory_cleanup").WithError(errors.New("busy")).Warn("skipped")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	polled := entries[0].ContextMap()
	if polled["component"] != "health" || polled["check"] != "memory" {
		t.Errorf("Unexpected context: %v", polled)
	}

	skipped := entries[1].ContextMap()
	if skipped["repair"] != "memory_cleanup" || skipped["error"] != "busy" {
		t.Errorf("Unexpected context: %v", skipped)
	}
}

func TestLogHealthCheckLevels(t *testing.T) {
	log, logs := observed(zapcore.DebugLevel)

	log.LogHealthCheck("memory", true, "Heap usage 40.0%", 2*time.Millisecond)
	log.LogHealthCheck("error_rate", false, "Error rate 32.0%", time.Millisecond)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("Healthy result logged at %v", entries[0].Level)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].Message != "Health check unhealthy" {
		t.Errorf("Unexpected unhealthy entry: %v %q", entries[1].Level, entries[1].Message)
	}
}

func TestLogRepair(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	log.LogRepair("memory_cleanup", 12*time.Millisecond, map[string]interface{}{"samples_removed": 700}, nil)
	log.LogRepair("error_mitigation", time.Millisecond, nil, errors.New("store unavailable"))

	done := logs.FilterMessage("Repair completed").All()
	if len(done) != 1 || done[0].ContextMap()["repair"] != "memory_cleanup" {
		t.Errorf("Unexpected completed entries: %v", done)
	}

	failed := logs.FilterMessage("Repair failed").All()
	if len(failed) != 1 {
		t.Fatalf("Expected 1 failed entry, got %d", len(failed))
	}
	if failed[0].Level != zapcore.ErrorLevel {
		t.Errorf("Failed repair logged at %v", failed[0].Level)
	}
	if failed[0].ContextMap()["error"] != "store unavailable" {
		t.Errorf("Unexpected context: %v", failed[0].ContextMap())
	}
}

func TestLifecycleEvents(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	log.LogStartup("1.4.0", "2026-10-01T12:00:00Z", "9f2c1ab")
	log.LogConfigLoad("", []string{"server", "memory"})
	log.LogCheckStatus("memory", true, 15*time.Second)
	log.LogError("load config", errors.New("permission denied"), String("path", "/etc/buddy.yaml"))
	log.LogShutdown("signal", 3*time.Second)

	if n := logs.FilterMessage("Application starting").FilterField(String("git_commit", "9f2c1ab")).Len(); n != 1 {
		t.Errorf("Expected startup entry, got %d", n)
	}
	if n := logs.FilterField(String("config_path", "<defaults>")).Len(); n != 1 {
		t.Errorf("Expected defaults placeholder for empty config path, got %d", n)
	}

	failed := logs.FilterMessage("Operation failed").All()
	if len(failed) != 1 {
		t.Fatalf("Expected 1 operation failure, got %d", len(failed))
	}
	ctx := failed[0].ContextMap()
	if ctx["operation"] != "load config" || ctx["path"] != "/etc/buddy.yaml" {
		t.Errorf("Unexpected context: %v", ctx)
	}

	if logs.FilterMessage("Application shutting down").Len() != 1 {
		t.Error("Expected shutdown entry")
	}
}

func BenchmarkLogger(b *testing.B) {
	log := NewWithCore(zapcore.NewNopCore())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.Info("sample recorded",
			String("endpoint", "/api/journal"),
			Int("status_code", 200),
			Bool("slow", false),
		)
	}
}
