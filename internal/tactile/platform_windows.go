//go:build windows

package tactile

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// getProcessResourceUsage extracts CPU times on Windows. Peak memory is not
// available once the process handle is released.
func getProcessResourceUsage(cmd *exec.Cmd) *resourceUsage {
	if cmd.ProcessState == nil {
		return nil
	}
	return &resourceUsage{
		UserTime:   cmd.ProcessState.UserTime(),
		SystemTime: cmd.ProcessState.SystemTime(),
	}
}

// killProcessGroup kills the process and attempts to terminate child processes.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	// On Windows, use taskkill to kill process tree
	killCmd := exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", cmd.Process.Pid))
	killCmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}

	if err := killCmd.Run(); err != nil {
		// Fall back to direct kill
		return cmd.Process.Kill()
	}

	return nil
}

// setupProcessGroup starts the binary in a new process group with no console window.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// Windows has no execute permission bit.
func needsExecBit() bool { return false }

// exitedNormally is always false: a terminated process reports an ordinary exit code.
func exitedNormally(state *os.ProcessState) bool { return false }
