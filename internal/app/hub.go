package app

import (
	"context"
	"fmt"
	"sync"

	"finpal/internal/orchestrator"
	"finpal/internal/tools"
	"finpal/pkg/logging"
)

const hubSubsystem = "Hub"

// Hub holds the active orchestrator and lets it be replaced while the
// process keeps serving. It implements server.Backend and agent.Toolbox.
type Hub struct {
	path string
	opts orchestrator.Options

	// reloadMu serializes Load, Reload and Shutdown.
	reloadMu sync.Mutex

	mu      sync.RWMutex
	current *orchestrator.Orchestrator
	started bool
	closed  bool
}

// NewHub creates a hub for the provider file at path. Until Load succeeds
// it serves an empty orchestrator.
func NewHub(path string, opts orchestrator.Options) *Hub {
	return &Hub{
		path:    path,
		opts:    opts,
		current: orchestrator.New(opts),
	}
}

// Path returns the provider file the hub loads.
func (h *Hub) Path() string { return h.path }

// Load reads the provider file into a fresh orchestrator and makes it
// current. Nothing is started.
func (h *Hub) Load() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	next := orchestrator.New(h.opts)
	if _, err := next.LoadDefinitions(h.path); err != nil {
		return err
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.started = false
	h.mu.Unlock()

	prev.Shutdown()
	return nil
}

// Start starts the current orchestrator's providers. Later calls return the
// same tools without restarting anything. If a reload swaps the
// orchestrator while Start runs, the new one is started and its tools are
// returned.
func (h *Hub) Start(ctx context.Context) ([]tools.Tool, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, orchestrator.ErrShutdown
	}
	current := h.current
	h.started = true
	h.mu.Unlock()

	for {
		list, err := current.Start(ctx)

		h.mu.RLock()
		latest := h.current
		h.mu.RUnlock()
		if latest == current {
			return list, err
		}
		current = latest
	}
}

// Reload re-reads the provider file and swaps in a new orchestrator. If the
// hub was started, before or during the reload, the new providers are
// started before the swap. On error the current orchestrator stays in place.
func (h *Hub) Reload(ctx context.Context) error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return orchestrator.ErrShutdown
	}

	next := orchestrator.New(h.opts)
	if _, err := next.LoadDefinitions(h.path); err != nil {
		return fmt.Errorf("reload %s: %w", h.path, err)
	}

	nextStarted := false
	for {
		h.mu.Lock()
		if !h.started || nextStarted {
			prev := h.current
			h.current = next
			h.mu.Unlock()

			prev.Shutdown()
			return nil
		}
		h.mu.Unlock()

		list, err := next.Start(ctx)
		if err != nil {
			next.Shutdown()
			return fmt.Errorf("reload %s: %w", h.path, err)
		}
		nextStarted = true
		logging.Info(hubSubsystem, "Reloaded providers from %s: %d tools", h.path, len(list))
	}
}

// Orchestrator returns the current orchestrator.
func (h *Hub) Orchestrator() *orchestrator.Orchestrator {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Tools returns the current aggregated tool list.
func (h *Hub) Tools() []tools.Tool {
	return h.Orchestrator().Tools()
}

// Invoke routes a call to the current orchestrator.
func (h *Hub) Invoke(ctx context.Context, name string, args map[string]interface{}) (*tools.Result, error) {
	return h.Orchestrator().Invoke(ctx, name, args)
}

// Providers reports the current providers.
func (h *Hub) Providers() []orchestrator.ProviderStatus {
	return h.Orchestrator().Providers()
}

// Shutdown stops every provider. The hub cannot be started again.
func (h *Hub) Shutdown() {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.mu.Lock()
	h.closed = true
	current := h.current
	h.mu.Unlock()

	current.Shutdown()
}
