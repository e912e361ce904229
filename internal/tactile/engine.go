package tactile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ddaharness/internal/logging"
	"ddaharness/internal/types"
	"ddaharness/internal/variants"
)

// Engine runs DDA invocations against one configured binary.
// It holds no per-run state; concurrent runs are safe as long as each
// command uses a distinct output path.
type Engine struct {
	binaryPath string

	mu     sync.RWMutex
	config ExecutorConfig
}

// NewEngine creates an engine for the binary at binaryPath.
func NewEngine(binaryPath string, config ExecutorConfig) *Engine {
	logging.TactileDebug("Creating Engine: binary=%s timeout=%s maxOutput=%d bytes",
		binaryPath, config.DefaultTimeout, config.MaxOutputBytes)
	return &Engine{binaryPath: binaryPath, config: config}
}

// BinaryPath returns the configured binary.
func (e *Engine) BinaryPath() string {
	return e.binaryPath
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() ExecutorConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// SetAuditCallback sets the callback for audit events.
func (e *Engine) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.AuditCallback = callback
}

// Run executes cmd and blocks the calling goroutine until the process exits.
// The configured default timeout applies.
func (e *Engine) Run(ctx context.Context, cmd types.InvocationCommand) (*types.ProcessResult, error) {
	return e.RunWithTimeout(ctx, cmd, 0)
}

// RunWithTimeout is Run with a per-call timeout. Zero uses the configured default.
func (e *Engine) RunWithTimeout(ctx context.Context, cmd types.InvocationCommand, timeout time.Duration) (*types.ProcessResult, error) {
	p, err := e.launch(ctx, cmd, timeout)
	if err != nil {
		return nil, err
	}
	return e.complete(p)
}

// launch prepares the binary and starts the process.
func (e *Engine) launch(ctx context.Context, cmd types.InvocationCommand, timeout time.Duration) (*process, error) {
	if err := e.validate(cmd); err != nil {
		e.emitAudit(AuditEvent{Type: AuditEventError, RunID: runID(cmd), Argv: cmd.Argv(), Err: err})
		return nil, err
	}
	if err := EnsureExecutable(cmd.Binary()); err != nil {
		logging.TactileError("Permission repair failed for %s: %v", cmd.Binary(), err)
		e.emitAudit(AuditEvent{Type: AuditEventError, RunID: runID(cmd), Argv: cmd.Argv(), Err: err})
		return nil, err
	}

	cfg := e.Config()
	effective := cfg.EffectiveTimeout(timeout)

	logging.Tactile("Executing %s binary: %s", cmd.Format(), cmd.String())
	e.emitAudit(AuditEvent{Type: AuditEventStart, RunID: runID(cmd), Argv: cmd.Argv()})

	p, err := e.startProcess(ctx, cmd, effective)
	if err != nil {
		logging.TactileError("Launch failed: %v", err)
		e.emitAudit(AuditEvent{Type: AuditEventError, RunID: runID(cmd), Argv: cmd.Argv(), Err: err})
		return nil, err
	}
	return p, nil
}

// complete waits for p and applies the completion policy.
func (e *Engine) complete(p *process) (*types.ProcessResult, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "DDA binary execution")
	defer timer.Stop()

	cmd := p.inv
	result, waitErr := p.wait(e.Config().EnableResourceUsage)
	result.OutputListing = listOutputDir(cmd.OutputPath())

	if result.Killed {
		logging.TactileWarn("DDA binary killed: %s", result.KillReason)
		e.emitAudit(AuditEvent{Type: AuditEventKilled, RunID: runID(cmd), Argv: cmd.Argv(), Result: result})
		return result, waitErr
	}
	if waitErr != nil {
		err := fmt.Errorf("%w: waiting for %s: %v", types.ErrExternalProcess, cmd.Binary(), waitErr)
		e.emitAudit(AuditEvent{Type: AuditEventError, RunID: runID(cmd), Argv: cmd.Argv(), Result: result, Err: err})
		return result, err
	}

	result.Artifact = FindArtifact(cmd.OutputPath(), cmd.Variants())
	usable := result.ArtifactFound() && fileSize(result.Artifact) > 0

	switch {
	case usable && result.ExitCode != 0:
		// This binary family crashes during cleanup after writing valid results.
		logging.TactileWarn("DDA binary exited %d but wrote %s; treating run as successful",
			result.ExitCode, result.Artifact)
	case result.ExitCode != 0:
		if result.ArtifactFound() {
			logging.TactileWarn("DDA binary exited %d leaving empty %s", result.ExitCode, result.Artifact)
		}
		err := &types.ExternalProcessError{
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			Argv:     cmd.Argv(),
		}
		logging.TactileError("DDA binary failed: exit=%d stderr=%q", result.ExitCode, result.Stderr)
		e.emitAudit(AuditEvent{Type: AuditEventError, RunID: runID(cmd), Argv: cmd.Argv(), Result: result, Err: err})
		return result, err
	case !result.ArtifactFound():
		logging.TactileWarn("DDA binary exited 0 without writing any expected output for %s", cmd.OutputPath())
	}

	e.emitAudit(AuditEvent{Type: AuditEventComplete, RunID: runID(cmd), Argv: cmd.Argv(), Result: result})
	logging.Tactile("DDA binary completed: exit=%d duration=%s artifact=%s stdout=%d bytes",
		result.ExitCode, result.Duration, result.Artifact, len(result.Stdout))
	return result, nil
}

func (e *Engine) validate(cmd types.InvocationCommand) error {
	if cmd.IsZero() || cmd.Binary() == "" {
		return fmt.Errorf("%w: empty invocation command", types.ErrMissingParameter)
	}
	if cmd.OutputPath() == "" {
		return fmt.Errorf("%w: output path", types.ErrMissingParameter)
	}
	return nil
}

// FindArtifact returns the first expected output file that exists for any of the
// requested variants, or "" when none does. An empty variant list means the default.
func FindArtifact(outputPath string, requested []string) string {
	if len(requested) == 0 {
		requested = []string{variants.Default}
	}
	descriptors, err := variants.Resolve(requested)
	if err != nil {
		logging.TactileWarn("Ignoring unknown variants while probing artifacts: %v", err)
	}
	for _, d := range descriptors {
		for _, candidate := range variants.Candidates(outputPath, d) {
			info, err := os.Stat(candidate)
			if err == nil && info.Mode().IsRegular() {
				return candidate
			}
		}
	}
	return ""
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func listOutputDir(outputPath string) []string {
	entries, err := os.ReadDir(filepath.Dir(outputPath))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.TactileDebug("Could not list output directory: %v", err)
		}
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func runID(cmd types.InvocationCommand) string {
	return filepath.Base(cmd.OutputPath())
}
