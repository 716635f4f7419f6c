package orchestrator

import (
	"finpal/internal/config"
	"finpal/internal/provider"
)

// Outcome is what Start decided or achieved for one provider.
type Outcome string

const (
	// OutcomePending means Start has not reached the provider yet.
	OutcomePending Outcome = "pending"
	// OutcomeDeferred means the provider is neither essential nor
	// autostarted and was intentionally not spawned.
	OutcomeDeferred Outcome = "deferred"
	OutcomeReady    Outcome = "ready"
	OutcomeFailed   Outcome = "failed"
	// OutcomeCancelled means Start was cancelled before the provider
	// finished starting.
	OutcomeCancelled Outcome = "cancelled"
)

// ProviderStatus is a point-in-time view of one provider.
type ProviderStatus struct {
	Name      string          `json:"name"`
	Priority  config.Priority `json:"priority"`
	Essential bool            `json:"essential"`
	Autostart bool            `json:"autostart"`
	State     provider.State  `json:"state"`
	Outcome   Outcome         `json:"outcome"`
	PID       int             `json:"pid,omitempty"`
	Tools     int             `json:"tools"`
	LastError string          `json:"lastError,omitempty"`
}

// Providers returns the status of every configured provider in startup
// order.
func (o *Orchestrator) Providers() []ProviderStatus {
	o.mu.Lock()
	conns := o.conns
	outcomes := make(map[string]Outcome, len(o.outcomes))
	errs := make(map[string]error, len(o.startErrs))
	for name, outcome := range o.outcomes {
		outcomes[name] = outcome
	}
	for name, err := range o.startErrs {
		errs[name] = err
	}
	o.mu.Unlock()

	counts := o.registry.countByProvider()
	out := make([]ProviderStatus, 0, len(conns))
	for _, conn := range conns {
		def := conn.Definition()
		status := ProviderStatus{
			Name:      def.Name,
			Priority:  def.Priority.OrDefault(),
			Essential: def.Essential,
			Autostart: def.Autostart,
			State:     conn.State(),
			Outcome:   outcomes[def.Name],
			PID:       conn.PID(),
			Tools:     counts[def.Name],
		}
		if status.Outcome == "" {
			status.Outcome = OutcomePending
		}
		if err := errs[def.Name]; err != nil {
			status.LastError = err.Error()
		}
		out = append(out, status)
	}
	return out
}
