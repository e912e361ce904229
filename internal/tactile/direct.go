package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"ddaharness/internal/logging"
	"ddaharness/internal/types"
)

// process is one launched binary, from Start until Wait returns.
type process struct {
	inv     types.InvocationCommand
	cmd     *exec.Cmd
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	stdoutBuf, stderrBuf bytes.Buffer
	stdout, stderr       *limitedWriter

	watcher   *artifactWatcher
	startedAt time.Time

	// canceled is set once exec asks us to kill a process that is still running.
	canceled atomic.Bool
}

// startProcess launches inv and returns without waiting for it.
// The caller must call wait exactly once.
func (e *Engine) startProcess(ctx context.Context, inv types.InvocationCommand, timeout time.Duration) (*process, error) {
	argv := inv.Argv()
	outDir := filepath.Dir(inv.OutputPath())
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	p := &process{inv: inv, timeout: timeout}
	if timeout > 0 {
		p.ctx, p.cancel = context.WithTimeout(ctx, timeout)
	} else {
		p.ctx, p.cancel = context.WithCancel(ctx)
	}

	cmd := exec.CommandContext(p.ctx, argv[0], argv[1:]...)
	cmd.Dir = e.config.WorkingDir
	if cmd.Dir == "" {
		cmd.Dir = outDir
	}
	cmd.Env = e.buildEnvironment()
	setupProcessGroup(cmd)
	// The binary may fork helpers that inherit our pipes; kill the whole group.
	cmd.Cancel = func() error {
		p.canceled.Store(true)
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = e.config.WaitDelay

	maxOutput := e.config.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultExecutorConfig().MaxOutputBytes
	}
	p.stdout = &limitedWriter{w: &p.stdoutBuf, max: maxOutput}
	p.stderr = &limitedWriter{w: &p.stderrBuf, max: maxOutput}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	p.cmd = cmd

	if e.config.WatchArtifacts {
		w, err := watchArtifacts(outDir, filepath.Base(inv.OutputPath()))
		if err != nil {
			logging.TactileWarn("Artifact watcher unavailable for %s: %v", outDir, err)
		} else {
			p.watcher = w
		}
	}

	logging.TactileDebug("Starting process: %s (dir=%s, timeout=%s)", inv.String(), cmd.Dir, timeout)
	p.startedAt = time.Now()
	if err := cmd.Start(); err != nil {
		p.cancel()
		if p.watcher != nil {
			p.watcher.Stop()
		}
		return nil, fmt.Errorf("%w: failed to launch %s: %v", types.ErrExternalProcess, argv[0], err)
	}
	return p, nil
}

// wait blocks until the process exits and its pipes are drained.
// The returned error is the raw Wait error; classification happens in the engine.
func (p *process) wait(collectUsage bool) (*types.ProcessResult, error) {
	defer p.cancel()

	err := p.cmd.Wait()

	result := &types.ProcessResult{
		ExitCode:   -1,
		StartedAt:  p.startedAt,
		FinishedAt: time.Now(),
		Stdout:     p.stdoutBuf.String(),
		Stderr:     p.stderrBuf.String(),
	}
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	if p.cmd.ProcessState != nil {
		result.ExitCode = p.cmd.ProcessState.ExitCode()
	}

	if p.stdout.truncated || p.stderr.truncated {
		result.Truncated = true
		logging.TactileWarn("Process output truncated: %d bytes discarded", p.stdout.discarded+p.stderr.discarded)
	}

	if p.watcher != nil {
		result.ObservedArtifacts = p.watcher.Stop()
	}

	if collectUsage {
		if usage := getProcessResourceUsage(p.cmd); usage != nil {
			result.CPUTime = usage.UserTime + usage.SystemTime
			result.MaxRSS = usage.MaxRSSBytes
		}
	}

	// A deadline that lands after the process exited on its own does not make it a kill.
	ctxErr := p.ctx.Err()
	if !p.stoppedByUs() {
		ctxErr = nil
	}
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", p.timeout)
		return result, fmt.Errorf("dda binary %s: %w", result.KillReason, context.DeadlineExceeded)
	case errors.Is(ctxErr, context.Canceled):
		result.Killed = true
		result.KillReason = "context canceled"
		return result, fmt.Errorf("dda binary canceled: %w", context.Canceled)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		return result, err
	}
	return result, nil
}

// stoppedByUs reports whether the process was killed on cancellation rather than
// exiting by itself.
func (p *process) stoppedByUs() bool {
	return p.canceled.Load() && !exitedNormally(p.cmd.ProcessState)
}

// buildEnvironment creates the environment variable list.
// A nil slice makes the process inherit the parent environment.
func (e *Engine) buildEnvironment() []string {
	if len(e.config.AllowedEnvironment) == 0 {
		return nil
	}
	env := make([]string, 0, len(e.config.AllowedEnvironment))
	for _, key := range e.config.AllowedEnvironment {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	return env
}

// resourceUsage is what the OS reports about a finished process.
type resourceUsage struct {
	UserTime    time.Duration
	SystemTime  time.Duration
	MaxRSSBytes int64
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
