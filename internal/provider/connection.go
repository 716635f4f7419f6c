package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"finpal/internal/config"
	"finpal/internal/tools"
	"finpal/pkg/logging"
)

const (
	clientName = "finpal"

	// DefaultShutdownGracePeriod is used when Options leaves it unset.
	DefaultShutdownGracePeriod = 5 * time.Second

	// killWait bounds the wait for a SIGKILLed process to be reaped.
	killWait = 2 * time.Second

	// maxListPages stops a provider that keeps returning cursors.
	maxListPages = 100
)

var (
	errProcessExited    = errors.New("provider process exited")
	errClosedDuringInit = errors.New("connection closed during initialization")
)

// Options tunes a Connection.
type Options struct {
	// ShutdownGracePeriod is how long the process may take to exit after
	// stdin closes, and again after SIGTERM.
	ShutdownGracePeriod time.Duration
	// CallTimeout bounds Invoke when the caller's context has no deadline.
	CallTimeout time.Duration
	// ClientVersion is reported in the handshake.
	ClientVersion string
}

// Connection owns one provider subprocess.
type Connection struct {
	def       config.ServerDefinition
	opts      Options
	subsystem string
	stderr    *stderrTail

	// lifecycleMu serializes Cleanup.
	lifecycleMu sync.Mutex

	mu       sync.Mutex
	state    State
	closing  bool
	lastErr  error
	cmd      *exec.Cmd
	pipes    *pipes
	pid      int
	exited   chan struct{}
	waitErr  error
	client   *client.Client
	cancel   context.CancelFunc
	inflight map[string]context.CancelFunc
}

// New creates an Uninitialized connection for def. Nothing is spawned until
// Initialize.
func New(def config.ServerDefinition, opts Options) *Connection {
	if opts.ShutdownGracePeriod <= 0 {
		opts.ShutdownGracePeriod = DefaultShutdownGracePeriod
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}
	return &Connection{
		def:       def,
		opts:      opts,
		subsystem: "Provider-" + def.Name,
		stderr:    &stderrTail{},
		state:     StateUninitialized,
		inflight:  make(map[string]context.CancelFunc),
	}
}

// Name returns the provider name.
func (c *Connection) Name() string { return c.def.Name }

// Definition returns the definition the connection was created from.
func (c *Connection) Definition() config.ServerDefinition { return c.def }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PID returns the subprocess id, or 0 when no process is attached.
func (c *Connection) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid
}

// LastError returns the error that moved the connection to Failed.
func (c *Connection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// InFlight returns the number of calls currently waiting on the provider.
func (c *Connection) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Connection) newError(op string, kind, err error) *Error {
	return &Error{Provider: c.def.Name, Op: op, Kind: kind, Err: err}
}

// Initialize resolves the command, spawns the subprocess and performs the
// MCP handshake. On failure the connection is torn down before returning.
func (c *Connection) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUninitialized || c.closing {
		state := c.state
		c.mu.Unlock()
		return c.newError("initialize", ErrNotReady, fmt.Errorf("cannot initialize from state %s", state))
	}
	c.state = StateInitializing
	c.mu.Unlock()

	logging.Debug(c.subsystem, "Starting provider: %s %s", c.def.Command, strings.Join(c.def.Args, " "))

	path, err := resolveCommand(c.def.Command)
	if err != nil {
		return c.fail(c.newError("resolve command", ErrCommandNotFound, err))
	}
	if err := checkModule(c.def.Command, c.def.Args); err != nil {
		return c.fail(c.newError("check module", ErrModuleNotFound, err))
	}

	cl, exited, err := c.spawn(path)
	if err != nil {
		return c.fail(err)
	}

	if err := c.handshake(ctx, cl, exited); err != nil {
		if tail := c.stderr.String(); tail != "" {
			err = fmt.Errorf("%w; stderr: %s", err, tail)
		}
		return c.fail(c.newError("handshake", ErrHandshakeFailed, err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || c.state != StateInitializing {
		return c.newError("initialize", ErrHandshakeFailed, errClosedDuringInit)
	}
	c.state = StateReady
	logging.Info(c.subsystem, "Provider ready (pid %d)", c.pid)
	return nil
}

// fail records err, moves to Failed and tears down.
func (c *Connection) fail(err error) error {
	c.mu.Lock()
	if !c.closing && c.state != StateClosed {
		c.state = StateFailed
	}
	c.lastErr = err
	c.mu.Unlock()

	logging.Error(c.subsystem, err, "Provider initialization failed")
	if cleanupErr := c.Cleanup(); cleanupErr != nil {
		logging.Error(c.subsystem, cleanupErr, "Cleanup after failed initialization")
	}
	return err
}

// spawn starts the subprocess and its transport. It holds mu throughout so a
// concurrent Cleanup either runs before (and spawn refuses) or sees the
// handles.
func (c *Connection) spawn(path string) (*client.Client, <-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return nil, nil, c.newError("spawn", ErrSpawnFailed, errClosedDuringInit)
	}

	cmd := exec.Command(path, c.def.Args...)
	cmd.Env = buildEnv(c.def.Env)
	configureProcAttr(cmd)

	p, err := newPipes()
	if err != nil {
		return nil, nil, c.newError("spawn", ErrSpawnFailed, err)
	}
	p.attach(cmd)

	if err := cmd.Start(); err != nil {
		p.abort()
		return nil, nil, c.newError("spawn", ErrSpawnFailed, err)
	}
	p.started()

	exited := make(chan struct{})
	go func() {
		err := waitProcess(cmd.Process)
		c.mu.Lock()
		c.waitErr = err
		c.mu.Unlock()
		close(exited)
	}()
	go p.drainStderr(c.stderr, c.subsystem)

	connCtx, cancel := context.WithCancel(context.Background())
	// stderr is drained above, the transport gets an empty stream.
	tr := transport.NewIO(p.stdoutReader(), p.stdin, io.NopCloser(strings.NewReader("")))

	c.cmd = cmd
	c.pipes = p
	c.pid = cmd.Process.Pid
	c.exited = exited
	c.cancel = cancel

	if err := tr.Start(connCtx); err != nil {
		return nil, nil, c.newError("spawn", ErrSpawnFailed, err)
	}
	c.client = client.NewClient(tr)

	logging.Debug(c.subsystem, "Spawned pid %d", c.pid)
	return c.client, exited, nil
}

func (c *Connection) handshake(ctx context.Context, cl *client.Client, exited <-chan struct{}) error {
	hctx, cancel := watchProcess(ctx, exited)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: c.opts.ClientVersion}
	req.Params.Capabilities = mcp.ClientCapabilities{}

	res, err := cl.Initialize(hctx, req)
	if err != nil {
		return c.explain(hctx, err)
	}

	logging.Debug(c.subsystem, "Handshake complete: %s %s (protocol %s)",
		res.ServerInfo.Name, res.ServerInfo.Version, res.ProtocolVersion)
	return nil
}

// watchProcess derives a context that is cancelled when the subprocess
// exits, so calls fail fast instead of waiting for their deadline.
func watchProcess(ctx context.Context, exited <-chan struct{}) (context.Context, context.CancelFunc) {
	wctx, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-exited:
			cancel(errProcessExited)
		case <-wctx.Done():
		}
	}()
	return wctx, func() { cancel(context.Canceled) }
}

// explain replaces a bare context error with the process exit status when
// the process exit is what cancelled the call.
func (c *Connection) explain(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errProcessExited) {
		c.mu.Lock()
		waitErr := c.waitErr
		c.mu.Unlock()
		if waitErr != nil {
			return fmt.Errorf("%w: %v", errProcessExited, waitErr)
		}
		return errProcessExited
	}
	return err
}

// ready returns the client and exit channel of a Ready connection.
func (c *Connection) ready(op string) (*client.Client, <-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || c.closing || c.client == nil {
		return nil, nil, c.newError(op, ErrNotReady, fmt.Errorf("state %s", c.state))
	}
	return c.client, c.exited, nil
}

// DiscoverTools lists the provider's tools. On failure it logs and returns
// an empty list together with an error wrapping ErrDiscoveryFailed.
func (c *Connection) DiscoverTools(ctx context.Context) ([]tools.Descriptor, error) {
	cl, exited, err := c.ready("discover tools")
	if err != nil {
		return []tools.Descriptor{}, err
	}

	lctx, cancel := watchProcess(ctx, exited)
	defer cancel()

	var published []mcp.Tool
	req := mcp.ListToolsRequest{}
	for page := 0; ; page++ {
		if page >= maxListPages {
			logging.Warn(c.subsystem, "Stopped listing tools after %d pages", maxListPages)
			break
		}
		res, err := cl.ListTools(lctx, req)
		if err != nil {
			err = c.newError("discover tools", ErrDiscoveryFailed, c.explain(lctx, err))
			logging.Error(c.subsystem, err, "Tool discovery failed")
			return []tools.Descriptor{}, err
		}
		published = append(published, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		req.Params.Cursor = res.NextCursor
	}

	descriptors := make([]tools.Descriptor, 0, len(published))
	for _, t := range published {
		if t.Name == "" {
			logging.Warn(c.subsystem, "Ignoring tool without a name")
			continue
		}
		d, err := descriptorFromMCP(t)
		if err != nil {
			logging.Warn(c.subsystem, "Ignoring tool %s: %v", t.Name, err)
			continue
		}
		descriptors = append(descriptors, d)
	}

	logging.Info(c.subsystem, "Discovered %d tools", len(descriptors))
	return descriptors, nil
}

// Invoke calls tool, the provider-local name, with args. A tool-level error
// reported by the provider is returned as an *InvocationError carrying its
// payload.
func (c *Connection) Invoke(ctx context.Context, tool string, args map[string]interface{}) (*tools.Result, error) {
	c.mu.Lock()
	if c.state != StateReady || c.closing || c.client == nil {
		state := c.state
		c.mu.Unlock()
		return nil, c.newError("invoke", ErrNotReady, fmt.Errorf("state %s", state))
	}

	callCtx, cancelCall := context.WithCancel(ctx)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.opts.CallTimeout > 0 {
		cancelCall()
		callCtx, cancelCall = context.WithTimeout(ctx, c.opts.CallTimeout)
	}
	id := uuid.NewString()
	c.inflight[id] = cancelCall
	cl, exited := c.client, c.exited
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
		cancelCall()
	}()

	wctx, cancelWatch := watchProcess(callCtx, exited)
	defer cancelWatch()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	logging.Debug(c.subsystem, "Calling %s (call %s)", tool, id)
	res, err := cl.CallTool(wctx, req)
	if err != nil {
		return nil, &InvocationError{Provider: c.def.Name, Tool: tool, Err: c.explain(wctx, err)}
	}
	if res.IsError {
		return nil, &InvocationError{Provider: c.def.Name, Tool: tool, Payload: contentText(res.Content)}
	}
	return resultFromMCP(res), nil
}

// Cleanup releases everything the connection owns: in-flight calls are
// cancelled, the transport closed and the subprocess stopped. It is
// idempotent and safe from any state. The returned error is informational;
// the connection is Closed either way.
func (c *Connection) Cleanup() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	from := c.state
	cl, cmd, exited, cancel, p := c.client, c.cmd, c.exited, c.cancel, c.pipes
	inflight := c.inflight
	c.client, c.cmd, c.cancel, c.pipes = nil, nil, nil, nil
	c.inflight = make(map[string]context.CancelFunc)
	c.mu.Unlock()

	for _, cancelCall := range inflight {
		cancelCall()
	}

	var errs []error
	if cl != nil {
		if err := c.closeClient(cl); err != nil {
			errs = append(errs, err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if p != nil {
		p.closeStdin()
	}
	if cmd != nil {
		if err := c.stopProcess(cmd, exited); err != nil {
			errs = append(errs, err)
		}
	}
	if p != nil {
		p.release(killWait)
	}

	c.mu.Lock()
	c.state = StateClosed
	c.pid = 0
	c.exited = nil
	c.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		logging.Error(c.subsystem, err, "Provider closed from %s with errors", from)
	} else {
		logging.Debug(c.subsystem, "Provider closed from %s", from)
	}
	return err
}

// closeClient closes the transport, which closes the child's stdin. It
// does not wait longer than the grace period.
func (c *Connection) closeClient(cl *client.Client) error {
	done := make(chan error, 1)
	go func() { done <- cl.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close transport: %w", err)
		}
		return nil
	case <-time.After(c.opts.ShutdownGracePeriod):
		return fmt.Errorf("close transport: timed out after %s", c.opts.ShutdownGracePeriod)
	}
}

// stopProcess waits for the process to exit after stdin closed, then
// escalates to SIGTERM and finally SIGKILL of the process group.
func (c *Connection) stopProcess(cmd *exec.Cmd, exited <-chan struct{}) error {
	grace := c.opts.ShutdownGracePeriod
	pid := cmd.Process.Pid

	if waitExit(exited, grace) {
		return nil
	}

	logging.Warn(c.subsystem, "Process %d still running %s after stdin closed, sending SIGTERM", pid, grace)
	if err := terminateProcess(cmd); err != nil {
		logging.Debug(c.subsystem, "SIGTERM failed: %v", err)
	}
	if waitExit(exited, grace) {
		return nil
	}

	if err := killProcess(cmd); err != nil {
		logging.Debug(c.subsystem, "SIGKILL failed: %v", err)
	}
	if waitExit(exited, killWait) {
		return fmt.Errorf("process %d did not exit within %s and was killed", pid, 2*grace)
	}
	return fmt.Errorf("process %d did not exit after SIGKILL", pid)
}

// waitProcess reaps the process. It replaces cmd.Wait, which would close
// the pipes under the transport's reader.
func waitProcess(proc *os.Process) error {
	state, err := proc.Wait()
	if err != nil {
		return err
	}
	if !state.Success() {
		return &exec.ExitError{ProcessState: state}
	}
	return nil
}

func waitExit(exited <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-exited:
		return true
	case <-timer.C:
		return false
	}
}
