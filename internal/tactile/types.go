// Package tactile is the execution layer that physically runs the DDA binary.
//
// It owns everything between a built InvocationCommand and a ProcessResult:
//   - Format detection: native executable vs. self-bootstrapping shell shim
//   - Permission repair before launch
//   - Blocking (Run) and suspending (Submit) launch
//   - Process-group kill on timeout or cancellation
//   - The completion policy: an output artifact on disk outranks the exit code
//   - Audit events for every run
package tactile

import (
	"time"

	"ddaharness/internal/types"
)

// ExecutorConfig configures an Engine.
type ExecutorConfig struct {
	// WorkingDir is the process working directory. Empty means the output directory.
	WorkingDir string `json:"working_dir"`

	// DefaultTimeout applies when a run does not specify one. Zero leaves
	// such runs bounded only by MaxTimeout.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxTimeout caps every timeout. Zero means uncapped.
	MaxTimeout time.Duration `json:"max_timeout"`

	// WaitDelay bounds how long Wait blocks on inherited pipes after the process is killed.
	WaitDelay time.Duration `json:"wait_delay"`

	// MaxOutputBytes caps stdout and stderr capture, each.
	MaxOutputBytes int64 `json:"max_output_bytes"`

	// AllowedEnvironment lists environment variables passed through to the binary.
	// Empty passes the whole parent environment.
	AllowedEnvironment []string `json:"allowed_environment"`

	// WatchArtifacts records output files created during the run via fsnotify.
	WatchArtifacts bool `json:"watch_artifacts"`

	// EnableResourceUsage collects CPU time and peak RSS after exit.
	EnableResourceUsage bool `json:"enable_resource_usage"`

	// AuditCallback is called for each run event (optional).
	AuditCallback func(AuditEvent) `json:"-"`
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultTimeout:      10 * time.Minute,
		MaxTimeout:          2 * time.Hour,
		WaitDelay:           2 * time.Second,
		MaxOutputBytes:      10 * 1024 * 1024, // 10MB
		AllowedEnvironment:  []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR", "SYSTEMROOT"},
		WatchArtifacts:      true,
		EnableResourceUsage: true,
	}
}

// EffectiveTimeout resolves a per-run request against the defaults and the cap.
// It returns zero, meaning no deadline, only when both DefaultTimeout and
// MaxTimeout are zero and nothing was requested.
func (c ExecutorConfig) EffectiveTimeout(requested time.Duration) time.Duration {
	timeout := requested
	if timeout <= 0 {
		timeout = c.DefaultTimeout
	}
	if c.MaxTimeout > 0 && (timeout <= 0 || timeout > c.MaxTimeout) {
		timeout = c.MaxTimeout
	}
	return timeout
}

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent describes one step of a run's lifecycle.
type AuditEvent struct {
	Type      AuditEventType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`

	// RunID is the output path's base name, which is unique per invocation.
	RunID string   `json:"run_id"`
	Argv  []string `json:"argv"`

	// Result is set for complete and killed events.
	Result *types.ProcessResult `json:"result,omitempty"`

	// Err is set for error events.
	Err error `json:"-"`
}
