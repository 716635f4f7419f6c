package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"finpal/internal/config"
	"finpal/internal/provider"
	"finpal/internal/tools"
	"finpal/pkg/logging"
)

const subsystem = "Orchestrator"

// Options tunes startup, invocation and teardown. Zero values fall back to
// the config package defaults.
type Options struct {
	Concurrency         int
	InitTimeout         time.Duration
	DiscoveryTimeout    time.Duration
	CallTimeout         time.Duration
	ShutdownGracePeriod time.Duration
	// ClientVersion is reported to providers in the handshake.
	ClientVersion string

	// MeterProvider and TracerProvider default to the otel globals.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// OptionsFromSettings converts file settings into Options.
func OptionsFromSettings(s config.Settings) Options {
	return Options{
		Concurrency:         s.Concurrency,
		InitTimeout:         s.InitTimeout.Std(),
		DiscoveryTimeout:    s.DiscoveryTimeout.Std(),
		CallTimeout:         s.CallTimeout.Std(),
		ShutdownGracePeriod: s.ShutdownGracePeriod.Std(),
	}
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = config.DefaultConcurrency
	}
	if o.InitTimeout <= 0 {
		o.InitTimeout = config.DefaultInitTimeout
	}
	if o.DiscoveryTimeout <= 0 {
		o.DiscoveryTimeout = config.DefaultDiscoveryTimeout
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = config.DefaultCallTimeout
	}
	if o.ShutdownGracePeriod <= 0 {
		o.ShutdownGracePeriod = config.DefaultShutdownGracePeriod
	}
	return o
}

// Orchestrator owns the provider connections and the aggregated tools.
type Orchestrator struct {
	registry  *registry
	telemetry *telemetry

	mu        sync.Mutex
	opts      Options
	conns     []*provider.Connection
	outcomes  map[string]Outcome
	startErrs map[string]error

	startDone   chan struct{}
	startErr    error
	startCancel context.CancelFunc
	// restart is set when the last Start was cancelled. The next Start
	// replaces the closed connections and runs again.
	restart bool

	shutdown     bool
	shutdownDone chan struct{}
}

// New creates an orchestrator without providers. Call LoadDefinitions or
// SetDefinitions before Start.
func New(opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		registry:  newRegistry(),
		telemetry: newTelemetry(opts.MeterProvider, opts.TracerProvider),
		opts:      opts,
		outcomes:  make(map[string]Outcome),
		startErrs: make(map[string]error),
	}
}

// LoadDefinitions loads the provider file at path and creates one
// connection per definition. The file's settings replace the timing
// options. Nothing is started. A missing or malformed file is returned as
// config.ErrConfigNotFound or a *config.ParseError.
func (o *Orchestrator) LoadDefinitions(path string) (*config.File, error) {
	file, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	fromFile := OptionsFromSettings(file.Settings)
	fromFile.ClientVersion = o.opts.ClientVersion
	fromFile.MeterProvider = o.opts.MeterProvider
	fromFile.TracerProvider = o.opts.TracerProvider
	err = o.setDefinitions(file.Definitions(), fromFile.withDefaults())
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	logging.Info(subsystem, "Loaded %d provider definitions from %s", len(file.MCPServers), file.Path)
	return file, nil
}

// SetDefinitions replaces the provider set. Names must be unique. It fails
// once Start has been called.
func (o *Orchestrator) SetDefinitions(defs []config.ServerDefinition) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.setDefinitions(defs, o.opts)
}

// setDefinitions validates defs and installs them together with opts. The
// options are left untouched when it fails. Callers hold mu.
func (o *Orchestrator) setDefinitions(defs []config.ServerDefinition, opts Options) error {
	if o.shutdown {
		return ErrShutdown
	}
	if o.startDone != nil && !o.restart {
		return ErrAlreadyStarted
	}

	seen := make(map[string]bool, len(defs))
	conns := make([]*provider.Connection, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return errors.New("provider definition without a name")
		}
		if seen[def.Name] {
			return fmt.Errorf("duplicate provider name %q", def.Name)
		}
		seen[def.Name] = true
		conns = append(conns, newConnection(def, opts))
	}

	o.opts = opts
	o.conns = conns
	o.outcomes = make(map[string]Outcome)
	o.startErrs = make(map[string]error)
	o.startDone, o.startErr, o.restart = nil, nil, false
	return nil
}

func newConnection(def config.ServerDefinition, opts Options) *provider.Connection {
	return provider.New(def, provider.Options{
		ShutdownGracePeriod: opts.ShutdownGracePeriod,
		CallTimeout:         opts.CallTimeout,
		ClientVersion:       opts.ClientVersion,
	})
}

// providerResult is the outcome of starting one provider.
type providerResult struct {
	conn    *provider.Connection
	tools   []tools.Tool
	outcome Outcome
	err     error
}

// Start initializes every provider that is essential or marked autostart,
// discovers and adapts their tools and returns the aggregated list. A
// provider that fails is torn down and skipped. Start is idempotent: later
// calls wait for the first and return its result.
//
// If ctx is cancelled before Start finishes, every selected provider is
// torn down before Start returns, the registry is emptied and the context
// error is returned. A later Start with a live context starts the
// providers again on fresh connections.
func (o *Orchestrator) Start(ctx context.Context) ([]tools.Tool, error) {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return nil, ErrShutdown
	}
	if o.restart {
		o.renewConnections()
	}
	if o.startDone != nil {
		done := o.startDone
		o.mu.Unlock()
		<-done
		o.mu.Lock()
		err := o.startErr
		o.mu.Unlock()
		return o.registry.list(), err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.startDone = done
	o.startCancel = cancel
	conns := o.conns
	opts := o.opts
	o.mu.Unlock()
	defer cancel()

	err := o.start(ctx, conns, opts)

	o.mu.Lock()
	o.startErr = err
	o.startCancel = nil
	o.restart = err != nil && !o.shutdown
	o.mu.Unlock()
	close(done)

	if err != nil {
		return nil, err
	}
	return o.registry.list(), nil
}

// renewConnections replaces every connection left closed by a cancelled
// Start with an uninitialized one for the same definition. Callers hold mu.
func (o *Orchestrator) renewConnections() {
	conns := make([]*provider.Connection, 0, len(o.conns))
	for _, conn := range o.conns {
		conns = append(conns, newConnection(conn.Definition(), o.opts))
	}
	logging.Info(subsystem, "Retrying start of %d providers after cancellation", len(conns))
	o.conns = conns
	o.outcomes = make(map[string]Outcome)
	o.startErrs = make(map[string]error)
	o.startDone, o.startErr, o.restart = nil, nil, false
}

func (o *Orchestrator) start(ctx context.Context, conns []*provider.Connection, opts Options) error {
	var selected []*provider.Connection
	for _, conn := range conns {
		def := conn.Definition()
		if !def.ShouldStart() {
			logging.Info(subsystem, "Deferring provider %s (priority %s, autostart disabled)", def.Name, def.Priority.OrDefault())
			o.setOutcome(def.Name, OutcomeDeferred, nil)
			continue
		}
		selected = append(selected, conn)
	}

	logging.Info(subsystem, "Starting %d of %d providers (concurrency %d)", len(selected), len(conns), opts.Concurrency)

	g := new(errgroup.Group)
	g.SetLimit(opts.Concurrency)
	for _, conn := range selected {
		g.Go(func() error {
			res := o.startProvider(ctx, conn, opts)
			o.collect(res)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		logging.Warn(subsystem, "Start cancelled, tearing down %d providers", len(selected))
		o.teardown(selected)
		o.registry.reset()
		for _, conn := range selected {
			o.markCancelled(conn.Name())
		}
		return fmt.Errorf("start providers: %w", err)
	}

	count := o.registry.len()
	if count == 0 {
		logging.Warn(subsystem, "No tools available, continuing in degraded mode")
	} else {
		logging.Info(subsystem, "%d tools available", count)
	}
	return nil
}

// startProvider runs one provider through initialize and discovery. Any
// failure leaves the connection torn down and is returned as a result,
// never as a panic or a batch abort.
func (o *Orchestrator) startProvider(ctx context.Context, conn *provider.Connection, opts Options) (res providerResult) {
	res.conn = conn
	name := conn.Name()

	spanCtx, span := o.telemetry.startProvider(ctx, name)
	started := time.Now()
	defer func() {
		o.telemetry.endProvider(spanCtx, span, name, res.outcome, len(res.tools), time.Since(started), res.err)
	}()

	if err := ctx.Err(); err != nil {
		res.outcome, res.err = OutcomeCancelled, err
		return res
	}

	initCtx, cancel := context.WithTimeout(spanCtx, opts.InitTimeout)
	err := conn.Initialize(initCtx)
	cancel()
	if err != nil {
		res.outcome, res.err = failureOutcome(ctx), err
		return res
	}

	discoverCtx, cancel := context.WithTimeout(spanCtx, opts.DiscoveryTimeout)
	descriptors, err := conn.DiscoverTools(discoverCtx)
	cancel()
	if err != nil {
		if cleanupErr := conn.Cleanup(); cleanupErr != nil {
			logging.Error(subsystem, cleanupErr, "Cleanup of provider %s after failed discovery", name)
		}
		res.outcome, res.err = failureOutcome(ctx), err
		return res
	}

	res.tools = tools.AdaptAll(descriptors, conn)
	res.outcome = OutcomeReady
	return res
}

// failureOutcome tells a provider failure caused by Start being cancelled
// apart from one local to the provider.
func failureOutcome(ctx context.Context) Outcome {
	if ctx.Err() != nil {
		return OutcomeCancelled
	}
	return OutcomeFailed
}

// collect registers the tools of a finished provider. Providers are
// collected in the order they complete.
func (o *Orchestrator) collect(res providerResult) {
	name := res.conn.Name()
	if res.err != nil {
		if res.outcome == OutcomeFailed {
			logging.Error(subsystem, res.err, "Skipping provider %s", name)
		}
		o.setOutcome(name, res.outcome, res.err)
		return
	}

	registered := 0
	for _, tool := range res.tools {
		if err := o.registry.add(tool); err != nil {
			logging.Warn(subsystem, "Dropping tool: %v", err)
			continue
		}
		registered++
	}
	logging.Info(subsystem, "Provider %s ready with %d tools", name, registered)
	o.setOutcome(name, OutcomeReady, nil)
}

func (o *Orchestrator) setOutcome(name string, outcome Outcome, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[name] = outcome
	if err != nil {
		o.startErrs[name] = err
	}
}

func (o *Orchestrator) markCancelled(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes[name] != OutcomeFailed {
		o.outcomes[name] = OutcomeCancelled
	}
}

// teardown cleans up conns concurrently. Errors are logged.
func (o *Orchestrator) teardown(conns []*provider.Connection) {
	g := new(errgroup.Group)
	for _, conn := range conns {
		g.Go(func() error {
			if err := conn.Cleanup(); err != nil {
				logging.Error(subsystem, err, "Cleanup of provider %s", conn.Name())
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Tools returns a copy of the aggregated tool list.
func (o *Orchestrator) Tools() []tools.Tool {
	return o.registry.list()
}

// Tool looks up a registered tool by its global name.
func (o *Orchestrator) Tool(name string) (tools.Tool, bool) {
	return o.registry.get(name)
}

// Invoke calls the tool registered under name. An unregistered name fails
// with *UnknownToolError without touching any provider; tool errors come
// back as *provider.InvocationError.
func (o *Orchestrator) Invoke(ctx context.Context, name string, args map[string]interface{}) (*tools.Result, error) {
	o.mu.Lock()
	shutdown := o.shutdown
	o.mu.Unlock()
	if shutdown {
		return nil, ErrShutdown
	}

	tool, ok := o.registry.get(name)
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	ctx, span := o.telemetry.startCall(ctx, tool.Name, tool.Provider)
	started := time.Now()
	res, err := tool.Call(ctx, args)
	o.telemetry.endCall(ctx, span, tool.Name, tool.Provider, time.Since(started), err)
	return res, err
}

// Shutdown cancels a running Start, then cleans up every provider
// regardless of its state. Cleanup errors are logged, never returned. It is
// idempotent; a concurrent second call waits for the first to finish.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if o.shutdown {
		done := o.shutdownDone
		o.mu.Unlock()
		<-done
		return
	}
	o.shutdown = true
	done := make(chan struct{})
	o.shutdownDone = done
	cancel, startDone := o.startCancel, o.startDone
	conns := o.conns
	o.mu.Unlock()
	defer close(done)

	if cancel != nil {
		cancel()
	}
	if startDone != nil {
		<-startDone
	}

	logging.Info(subsystem, "Shutting down %d providers", len(conns))
	o.teardown(conns)
	o.registry.reset()
	logging.Info(subsystem, "Shutdown complete")
}
