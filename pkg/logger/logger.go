// Package logger is the monitor's structured logger: a zap logger with
// component scoping, error listeners and a handful of lifecycle events.
package logger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger. Loggers derived with WithFields share their
// parent's error listeners.
type Logger struct {
	*zap.Logger
	listeners *listenerHub
}

// Config holds logger configuration
type Config struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=json text"`
	OutputPath string `yaml:"output_path"`
	ErrorPath  string `yaml:"error_path"`
}

// Field represents a structured log field
type Field = zap.Field

// Field constructors, re-exported so callers only import this package
var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Int64    = zap.Int64
	Uint64   = zap.Uint64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Duration = zap.Duration
	Time     = zap.Time
	Any      = zap.Any
	Err      = zap.Error
	Stack    = zap.Stack
)

// NewLogger builds a logger from cfg. Entries below error level go to
// OutputPath (stdout by default), error and above to ErrorPath (stderr by
// default).
func NewLogger(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoder, err := newEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	out, _, err := zap.Open(pathOr(cfg.OutputPath, "stdout"))
	if err != nil {
		return nil, fmt.Errorf("failed to open log output: %w", err)
	}
	errOut, _, err := zap.Open(pathOr(cfg.ErrorPath, "stderr"))
	if err != nil {
		return nil, fmt.Errorf("failed to open error log output: %w", err)
	}

	below := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= level && lvl < zapcore.ErrorLevel
	})
	above := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	return NewWithCore(zapcore.NewTee(
		zapcore.NewCore(encoder, out, below),
		zapcore.NewCore(encoder, errOut, above),
	)), nil
}

// NewWithCore builds a Logger over an arbitrary zap core. Error listeners
// are attached the same way as for NewLogger.
func NewWithCore(core zapcore.Core) *Logger {
	hub := newListenerHub()

	return &Logger{
		Logger: zap.New(zapcore.NewTee(core, &listenerCore{hub: hub}),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		),
		listeners: hub,
	}
}

// OnError subscribes fn to every entry logged at error level or above,
// through this logger or any logger derived from it.
func (l *Logger) OnError(fn ErrorListener) {
	l.listeners.add(fn)
}

// WithFields returns a child logger carrying fields
func (l *Logger) WithFields(fields ...Field) *Logger {
	return &Logger{
		Logger:    l.Logger.With(fields...),
		listeners: l.listeners,
	}
}

// WithComponent scopes the logger to a component such as "health" or "healing"
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields(String("component", component))
}

func (l *Logger) WithCheck(check string) *Logger {
	return l.WithFields(String("check", check))
}

func (l *Logger) WithRepair(repair string) *Logger {
	return l.WithFields(String("repair", repair))
}

func (l *Logger) WithError(err error) *Logger {
	return l.WithFields(Err(err))
}

// LogStartup records the binary's build information
func (l *Logger) LogStartup(version, buildTime, gitCommit string) {
	l.Info("Application starting",
		String("version", version),
		String("build_time", buildTime),
		String("git_commit", gitCommit))
}

// LogConfigLoad records where configuration came from and which checks it
// enables
func (l *Logger) LogConfigLoad(path string, enabledChecks []string) {
	if path == "" {
		path = "<defaults>"
	}
	l.Info("Configuration loaded",
		String("config_path", path),
		Strings("enabled_checks", enabledChecks))
}

func (l *Logger) LogCheckStatus(check string, enabled bool, interval time.Duration) {
	l.Info("Health check configured",
		String("check", check),
		Bool("enabled", enabled),
		Duration("interval", interval))
}

// LogError reports a failed operation at error level, which also reaches
// every OnError listener
func (l *Logger) LogError(operation string, err error, fields ...Field) {
	l.Error("Operation failed", append([]Field{String("operation", operation), Err(err)}, fields...)...)
}

// LogHealthCheck records one check result. Healthy results are debug noise;
// unhealthy ones are warnings.
func (l *Logger) LogHealthCheck(check string, healthy bool, message string, took time.Duration) {
	log := l.Debug
	msg := "Health check passed"
	if !healthy {
		log = l.Warn
		msg = "Health check unhealthy"
	}
	log(msg,
		String("check", check),
		Bool("healthy", healthy),
		String("message", message),
		Duration("duration", took))
}

// LogRepair records the outcome of a repair action
func (l *Logger) LogRepair(repair string, took time.Duration, result map[string]interface{}, err error) {
	log := l.WithFields(String("repair", repair), Duration("duration", took))
	if err != nil {
		log.Error("Repair failed", Err(err))
		return
	}
	log.Info("Repair completed", Any("result", result))
}

func (l *Logger) LogShutdown(reason string, took time.Duration) {
	l.Info("Application shutting down",
		String("reason", reason),
		Duration("shutdown_duration", took))
}

// parseLevel accepts zap's level names in any case, plus "warning"
func parseLevel(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	switch strings.ToLower(format) {
	case "json":
		return zapcore.NewJSONEncoder(cfg), nil
	case "text", "console":
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.ConsoleSeparator = " "
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func pathOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}
