//go:build windows

package orchestrator

import "testing"

func assertProcessGone(t *testing.T, pid int) {
	t.Helper()
}
