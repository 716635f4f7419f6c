//go:build !windows

package orchestrator

import (
	"syscall"
	"testing"
)

func assertProcessGone(t *testing.T, pid int) {
	t.Helper()
	if err := syscall.Kill(pid, 0); err == nil {
		t.Errorf("process %d is still running", pid)
	}
}
