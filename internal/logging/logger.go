// Package logging builds the zap loggers used across apkmerge.
// Each pipeline subsystem logs through a named child of the root logger so
// that output can be filtered by category.
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // CLI startup, configuration
	CategoryPipeline  Category = "pipeline"  // Stage transitions
	CategoryArchive   Category = "archive"   // Archive discovery and inspection
	CategoryDecompile Category = "decompile" // External decompiler runs
	CategoryReconcile Category = "reconcile" // Identifier reconciliation
	CategoryRewrite   Category = "rewrite"   // Reference rewriting
	CategoryMerge     Category = "merge"     // File tree merging
	CategoryHacks     Category = "hacks"     // Structural hacks
	CategoryBuild     Category = "build"     // Rebuild and tool environment
	CategoryTactile   Category = "tactile"   // Command execution
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // text, json
	Verbose bool   // forces debug level
}

// New builds the root logger. Verbose raises the level to debug regardless
// of the configured level.
func New(opts Options) (*zap.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "", "text", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
		cfg.Development = false
		cfg.DisableStacktrace = true
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: text, json)", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// NewWriter builds a logger that writes console-encoded entries to w.
// Used by tests and by callers that want to capture the trace.
func NewWriter(w zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), w, level)
	return zap.New(core)
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// For returns the child logger for a category. A nil logger yields a no-op.
func For(l *zap.Logger, c Category) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(string(c))
}

// Sync flushes the logger, ignoring the EINVAL/ENOTTY errors stderr returns
// on some platforms.
func Sync(l *zap.Logger) {
	if l == nil {
		return
	}
	if err := l.Sync(); err != nil && !isIgnorableSyncError(err) {
		fmt.Fprintf(os.Stderr, "[logging] sync failed: %v\n", err)
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	logger *zap.Logger
	op     string
	start  time.Time
}

// StartTimer begins timing an operation
func StartTimer(l *zap.Logger, operation string) *Timer {
	if l == nil {
		l = zap.NewNop()
	}
	return &Timer{logger: l, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Info(t.op+" completed", zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		t.logger.Warn(t.op+" was slow", zap.Duration("elapsed", elapsed), zap.Duration("threshold", threshold))
	} else {
		t.logger.Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
