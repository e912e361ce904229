package tactile

import (
	"context"
	"time"

	"ddaharness/internal/types"
)

// Job is a run started with Submit. The caller keeps working and collects the
// result from Done or Wait once the process has exited and its pipes have closed.
type Job struct {
	cmd  types.InvocationCommand
	done chan struct{}

	result *types.ProcessResult
	err    error
}

// Submit launches cmd and returns immediately. Launch failures are reported
// through the Job, never by blocking. Cancelling ctx kills the process group.
func (e *Engine) Submit(ctx context.Context, cmd types.InvocationCommand) *Job {
	return e.SubmitWithTimeout(ctx, cmd, 0)
}

// SubmitWithTimeout is Submit with a per-call timeout. Zero uses the configured default.
func (e *Engine) SubmitWithTimeout(ctx context.Context, cmd types.InvocationCommand, timeout time.Duration) *Job {
	j := &Job{cmd: cmd, done: make(chan struct{})}

	p, err := e.launch(ctx, cmd, timeout)
	if err != nil {
		j.err = err
		close(j.done)
		return j
	}

	go func() {
		defer close(j.done)
		j.result, j.err = e.complete(p)
	}()
	return j
}

// Command returns the invocation this job runs.
func (j *Job) Command() types.InvocationCommand {
	return j.cmd
}

// Done is closed when the result is available.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait suspends until the job finishes or ctx ends. Giving up on the wait does
// not stop the process; cancel the context passed to Submit for that.
func (j *Job) Wait(ctx context.Context) (*types.ProcessResult, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while the job is running.
func (j *Job) Result() (result *types.ProcessResult, err error, ok bool) {
	select {
	case <-j.done:
		return j.result, j.err, true
	default:
		return nil, nil, false
	}
}
