//go:build !windows

package provider

import (
	"fmt"
	"os/exec"
	"syscall"
)

// configureProcAttr starts the provider in its own process group so the
// whole tree can be signalled at teardown.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcess(cmd *exec.Cmd) error {
	return signalProcessGroup(cmd.Process.Pid, syscall.SIGTERM)
}

func killProcess(cmd *exec.Cmd) error {
	return signalProcessGroup(cmd.Process.Pid, syscall.SIGKILL)
}

// signalProcessGroup signals the group led by pid, falling back to the
// process itself.
func signalProcessGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil {
		if err2 := syscall.Kill(pid, sig); err2 != nil {
			return fmt.Errorf("failed to signal process group -%d: %v, also failed to signal process %d: %v", pid, err, pid, err2)
		}
	}
	return nil
}
