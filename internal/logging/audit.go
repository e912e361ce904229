package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// AUDIT TRAIL - one JSON line per run lifecycle event
// =============================================================================

// AuditEventType names a run lifecycle event.
type AuditEventType string

const (
	AuditRunStart     AuditEventType = "run_start"
	AuditRunComplete  AuditEventType = "run_complete"
	AuditRunKilled    AuditEventType = "run_killed"
	AuditRunError     AuditEventType = "run_error"
	AuditDecodeWarn   AuditEventType = "decode_warning"
	AuditDecodeResult AuditEventType = "decode_result"
)

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	z    *zap.Logger
	file *os.File
}

var (
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// InitAudit opens (appending) the audit file at path.
func InitAudit(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.MessageKey = "event"
	enc.EncodeTime = zapcore.EpochMillisTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), zapcore.DebugLevel)

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger != nil && auditLogger.file != nil {
		_ = auditLogger.file.Close()
	}
	auditLogger = &AuditLogger{z: zap.New(core), file: f}
	return nil
}

// CloseAudit flushes and closes the audit file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger == nil {
		return
	}
	_ = auditLogger.z.Sync()
	if auditLogger.file != nil {
		_ = auditLogger.file.Close()
	}
	auditLogger = nil
}

// Audit returns the audit logger, or a no-op one when no audit file is configured.
func Audit() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger == nil {
		return &AuditLogger{z: zap.NewNop()}
	}
	return auditLogger
}

// Log writes one event with arbitrary fields.
func (a *AuditLogger) Log(event AuditEventType, runID string, fields ...zap.Field) {
	a.z.Info(string(event), append([]zap.Field{zap.String("run_id", runID)}, fields...)...)
}

// RunStart records a launch.
func (a *AuditLogger) RunStart(runID string, argv []string) {
	a.Log(AuditRunStart, runID, zap.Strings("argv", argv))
}

// RunComplete records a finished run and which artifact satisfied the completion policy.
func (a *AuditLogger) RunComplete(runID string, exitCode int, duration time.Duration, artifact string) {
	a.Log(AuditRunComplete, runID,
		zap.Int("exit_code", exitCode),
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.String("artifact", artifact))
}

// RunKilled records a timeout or cancellation.
func (a *AuditLogger) RunKilled(runID string, reason string) {
	a.Log(AuditRunKilled, runID, zap.String("reason", reason))
}

// RunError records a failed run with its error kind.
func (a *AuditLogger) RunError(runID string, kind string, err error) {
	a.Log(AuditRunError, runID, zap.String("kind", kind), zap.Error(err))
}

// DecodeWarning records a non-fatal decode problem for one variant.
func (a *AuditLogger) DecodeWarning(runID, variant, warning string) {
	a.Log(AuditDecodeWarn, runID, zap.String("variant", variant), zap.String("warning", warning))
}

// DecodeResult records one decoded matrix shape.
func (a *AuditLogger) DecodeResult(runID, variant string, rows, cols int) {
	a.Log(AuditDecodeResult, runID, zap.String("variant", variant), zap.Int("rows", rows), zap.Int("cols", cols))
}
