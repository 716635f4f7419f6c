package orchestrator

import (
	"fmt"
	"sync"

	"finpal/internal/tools"
)

// registry holds the aggregated tools in registration order with a name
// index. The first tool registered under a name wins.
type registry struct {
	mu     sync.RWMutex
	order  []tools.Tool
	byName map[string]int
}

func newRegistry() *registry {
	return &registry{byName: make(map[string]int)}
}

// add registers tool. A name that is already taken is rejected with an
// error wrapping ErrDuplicateToolName naming the current owner.
func (r *registry) add(tool tools.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, exists := r.byName[tool.Name]; exists {
		return fmt.Errorf("%w: %s from provider %s already registered by %s",
			ErrDuplicateToolName, tool.Name, tool.Provider, r.order[idx].Provider)
	}
	r.byName[tool.Name] = len(r.order)
	r.order = append(r.order, tool)
	return nil
}

func (r *registry) get(name string) (tools.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byName[name]
	if !ok {
		return tools.Tool{}, false
	}
	return r.order[idx], true
}

// list returns a copy so callers can never mutate the registry.
func (r *registry) list() []tools.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]tools.Tool, len(r.order))
	copy(out, r.order)
	return out
}

func (r *registry) countByProvider() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, t := range r.order {
		counts[t.Provider]++
	}
	return counts
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.byName = make(map[string]int)
}
