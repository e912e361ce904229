//go:build !windows

package tactile

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// getProcessResourceUsage extracts resource usage on Unix systems.
func getProcessResourceUsage(cmd *exec.Cmd) *resourceUsage {
	if cmd.ProcessState == nil {
		return nil
	}

	rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return nil
	}

	return &resourceUsage{
		UserTime:    time.Duration(rusage.Utime.Nano()),
		SystemTime:  time.Duration(rusage.Stime.Nano()),
		MaxRSSBytes: getMaxRSSBytes(rusage),
	}
}

// setupProcessGroup configures the command to run in its own process group.
// This allows killing all child processes when the parent is terminated.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup kills the process and all its children on Unix.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	pid := cmd.Process.Pid

	pgid, err := syscall.Getpgid(pid)
	if err == nil && pgid > 0 {
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
			syscall.Kill(-pgid, syscall.SIGTERM)
		}
	}

	// Also kill the main process directly as a fallback
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func needsExecBit() bool { return true }

// exitedNormally reports whether the process called exit rather than dying on a signal.
func exitedNormally(state *os.ProcessState) bool {
	return state != nil && state.Exited()
}
