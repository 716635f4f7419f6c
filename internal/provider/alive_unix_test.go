//go:build !windows

package provider

import (
	"syscall"
	"testing"
)

func assertProcessGone(t *testing.T, pid int) {
	t.Helper()
	if pid <= 0 {
		t.Fatalf("invalid pid %d", pid)
	}
	if err := syscall.Kill(pid, 0); err == nil {
		t.Errorf("process %d is still running", pid)
	}
}
