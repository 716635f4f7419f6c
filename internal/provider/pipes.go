package provider

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// pipes are the parent ends of the subprocess's standard streams. The
// connection closes them once their readers reached EOF, after the process
// was reaped.
type pipes struct {
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	// child ends, closed in the parent once the process started.
	childIn, childOut, childErr *os.File

	stdoutDone chan struct{}
	stderrDone chan struct{}
}

func newPipes() (*pipes, error) {
	p := &pipes{
		stdoutDone: make(chan struct{}),
		stderrDone: make(chan struct{}),
	}
	var err error
	if p.childIn, p.stdin, err = os.Pipe(); err != nil {
		return nil, err
	}
	if p.stdout, p.childOut, err = os.Pipe(); err != nil {
		closeFiles(p.childIn, p.stdin)
		return nil, err
	}
	if p.stderr, p.childErr, err = os.Pipe(); err != nil {
		closeFiles(p.childIn, p.stdin, p.stdout, p.childOut)
		return nil, err
	}
	return p, nil
}

// attach hands the child ends to cmd.
func (p *pipes) attach(cmd *exec.Cmd) {
	cmd.Stdin = p.childIn
	cmd.Stdout = p.childOut
	cmd.Stderr = p.childErr
}

// started closes the child ends in the parent so the parent's readers see
// EOF once every process holding them has exited.
func (p *pipes) started() {
	closeFiles(p.childIn, p.childOut, p.childErr)
}

// abort closes everything after a failed start.
func (p *pipes) abort() {
	closeFiles(p.childIn, p.childOut, p.childErr, p.stdin, p.stdout, p.stderr)
}

// stdoutReader returns stdout wrapped so that reaching EOF is observable.
func (p *pipes) stdoutReader() io.Reader {
	return &eofReader{r: p.stdout, done: p.stdoutDone}
}

// drainStderr feeds stderr to tail until EOF.
func (p *pipes) drainStderr(tail *stderrTail, subsystem string) {
	defer close(p.stderrDone)
	tail.drain(p.stderr, subsystem)
}

// closeStdin signals end of input to the child. Closing twice is harmless.
func (p *pipes) closeStdin() {
	_ = p.stdin.Close()
}

// release waits up to wait for the readers to reach EOF, then closes the
// read ends. A grandchild that inherited the pipes can keep them open; the
// wait bounds that case.
func (p *pipes) release(wait time.Duration) {
	p.closeStdin()
	waitExit(p.stdoutDone, wait)
	waitExit(p.stderrDone, wait)
	closeFiles(p.stdout, p.stderr)
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// eofReader closes done the first time the wrapped reader fails.
type eofReader struct {
	r    io.Reader
	once sync.Once
	done chan struct{}
}

func (e *eofReader) Read(b []byte) (int, error) {
	n, err := e.r.Read(b)
	if err != nil {
		e.once.Do(func() { close(e.done) })
	}
	return n, err
}
