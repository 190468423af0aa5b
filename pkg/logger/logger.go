package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

// Init initializes the global zap logger. Level and sink may be overridden
// via MEMODB_LOG_LEVEL ("debug", "info", "warn", "error") and
// MEMODB_LOG_SINK (e.g. "file:/path/to/log").
func Init() {
	InitWithLevel("")
}

// InitWithLevel initializes the global logger honoring the provided level
// string. If level is empty it falls back to MEMODB_LOG_LEVEL.
func InitWithLevel(level string) {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("MEMODB_LOG_LEVEL")))
	}
	var lv zapcore.Level
	switch lvl {
	case "debug":
		lv = zapcore.DebugLevel
	case "warn", "warning":
		lv = zapcore.WarnLevel
	case "error":
		lv = zapcore.ErrorLevel
	default:
		lv = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lv)
	cfg.OutputPaths = []string{"stdout"}
	if sink := os.Getenv("MEMODB_LOG_SINK"); strings.HasPrefix(sink, "file:") {
		cfg.OutputPaths = []string{strings.TrimPrefix(sink, "file:")}
	}

	l, err := cfg.Build()
	if err != nil {
		// fall back to a no-frills logger rather than failing startup
		l = zap.NewNop()
	}
	Log = l
}

// Sync flushes buffered log entries. Safe to call on shutdown.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

func init() {
	// ensure Log is always usable even before Init is called (tests)
	if Log == nil {
		Log = zap.NewNop()
	}
}
