package provider

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"finpal/pkg/logging"
)

const stderrTailLines = 20

// stderrTail logs a provider's stderr and keeps the last lines for error
// reports. Draining is required: a child blocked on a full stderr pipe
// stops answering on stdout.
type stderrTail struct {
	mu    sync.Mutex
	lines []string
}

func (t *stderrTail) drain(r io.Reader, subsystem string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		logging.Debug(subsystem, "stderr: %s", line)

		t.mu.Lock()
		t.lines = append(t.lines, line)
		if len(t.lines) > stderrTailLines {
			t.lines = t.lines[len(t.lines)-stderrTailLines:]
		}
		t.mu.Unlock()
	}
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
