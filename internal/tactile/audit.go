package tactile

import (
	"time"

	"ddaharness/internal/logging"
	"ddaharness/internal/types"
)

// emitAudit emits an audit event if a callback is registered.
func (e *Engine) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.config.AuditCallback
	e.mu.RUnlock()

	if callback == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	callback(event)
}

// AuditTrail returns a callback that writes engine events to the JSON audit trail.
func AuditTrail() func(AuditEvent) {
	return func(event AuditEvent) {
		audit := logging.Audit()
		switch event.Type {
		case AuditEventStart:
			audit.RunStart(event.RunID, event.Argv)
		case AuditEventComplete:
			audit.RunComplete(event.RunID, event.Result.ExitCode, event.Result.Duration, event.Result.Artifact)
		case AuditEventKilled:
			audit.RunKilled(event.RunID, event.Result.KillReason)
		case AuditEventError:
			audit.RunError(event.RunID, types.Kind(event.Err), event.Err)
		}
	}
}

// ChainAudit fans one event out to several callbacks, skipping nil ones.
func ChainAudit(callbacks ...func(AuditEvent)) func(AuditEvent) {
	return func(event AuditEvent) {
		for _, cb := range callbacks {
			if cb != nil {
				cb(event)
			}
		}
	}
}
