// Package logging provides config-driven categorized logging for the DDA harness.
// Each category maps to a named zap logger; categories can be disabled individually.
// Until Initialize or SetBase is called, every logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot        Category = "boot"        // Boot/initialization
	CategoryConfig      Category = "config"      // Config loading and overrides
	CategoryPerformance Category = "performance" // Slow operations

	CategoryEncoder  Category = "encoder"  // Request -> argv
	CategoryTactile  Category = "tactile"  // Process launch, completion policy
	CategoryDecoder  Category = "decoder"  // Output parsing
	CategoryAnalyzer Category = "analyzer" // Pipeline orchestration
	CategoryStore    Category = "store"    // Run history database
	CategoryEDF      Category = "edf"      // EDF header reading
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // optional log file; stderr when empty
	DebugMode  bool            // forces debug level
	Categories map[string]bool // per-category toggles; missing = enabled
	AuditFile  string          // optional JSONL audit trail
}

// Logger is a category-scoped logger with printf-style helpers.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	options Options
	loggers = make(map[Category]*Logger)
)

// Initialize builds the base zap logger from options and installs it.
// It returns the base logger so callers can use it directly.
func Initialize(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.DebugMode {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Sampling = nil
	if strings.EqualFold(opts.Format, "console") || strings.EqualFold(opts.Format, "text") {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = []string{opts.File}
		cfg.ErrorOutputPaths = []string{opts.File}
	} else {
		cfg.OutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	options = opts
	mu.Unlock()
	SetBase(logger)

	if opts.AuditFile != "" {
		if err := InitAudit(opts.AuditFile); err != nil {
			Get(CategoryBoot).Warn("audit trail disabled: %v", err)
		}
	}

	Get(CategoryBoot).Debug("logging initialized: level=%s format=%s file=%q", level, cfg.Encoding, opts.File)
	return logger, nil
}

// SetBase installs an existing zap logger (e.g. the CLI's) as the base for all categories.
func SetBase(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = logger
	loggers = make(map[Category]*Logger)
}

// SetCategories replaces the per-category enable map.
func SetCategories(categories map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	options.Categories = categories
	loggers = make(map[Category]*Logger)
}

// Base returns the installed zap logger.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// ParseLevel maps a config string to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
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

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if options.Categories == nil {
		return true
	}
	enabled, exists := options.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	z := zap.NewNop()
	if categoryEnabled(category) {
		z = base.Named(string(category))
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// Zap returns the structured logger behind l.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// With returns a structured logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *zap.Logger {
	return l.sugar.Desugar().With(fields...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// CloseAll flushes the base logger and the audit trail (call at shutdown).
func CloseAll() {
	_ = Base().Sync()
	CloseAudit()
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Config(format string, args ...interface{})      { Get(CategoryConfig).Info(format, args...) }
func ConfigDebug(format string, args ...interface{}) { Get(CategoryConfig).Debug(format, args...) }

func Encoder(format string, args ...interface{})      { Get(CategoryEncoder).Info(format, args...) }
func EncoderDebug(format string, args ...interface{}) { Get(CategoryEncoder).Debug(format, args...) }

// Tactile logs to the tactile category
func Tactile(format string, args ...interface{}) {
	Get(CategoryTactile).Info(format, args...)
}

// TactileDebug logs debug to the tactile category
func TactileDebug(format string, args ...interface{}) {
	Get(CategoryTactile).Debug(format, args...)
}

// TactileWarn logs warning to the tactile category
func TactileWarn(format string, args ...interface{}) {
	Get(CategoryTactile).Warn(format, args...)
}

// TactileError logs error to the tactile category
func TactileError(format string, args ...interface{}) {
	Get(CategoryTactile).Error(format, args...)
}

func Decoder(format string, args ...interface{})      { Get(CategoryDecoder).Info(format, args...) }
func DecoderDebug(format string, args ...interface{}) { Get(CategoryDecoder).Debug(format, args...) }
func DecoderWarn(format string, args ...interface{})  { Get(CategoryDecoder).Warn(format, args...) }

func Analyzer(format string, args ...interface{})      { Get(CategoryAnalyzer).Info(format, args...) }
func AnalyzerDebug(format string, args ...interface{}) { Get(CategoryAnalyzer).Debug(format, args...) }
func AnalyzerWarn(format string, args ...interface{})  { Get(CategoryAnalyzer).Warn(format, args...) }
func AnalyzerError(format string, args ...interface{}) { Get(CategoryAnalyzer).Error(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

func EDF(format string, args ...interface{})      { Get(CategoryEDF).Info(format, args...) }
func EDFDebug(format string, args ...interface{}) { Get(CategoryEDF).Debug(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(CategoryPerformance).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
