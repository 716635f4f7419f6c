package tools

import (
	"context"
	"errors"
)

// Descriptor is a tool as published by a provider. Name is unique within
// that provider only.
type Descriptor struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// Result is the outcome of a successful tool call. Text is the canonical
// value handed to the model; Structured is set when the provider returned
// structured content as well.
type Result struct {
	Text       string      `json:"text"`
	Structured interface{} `json:"structured,omitempty"`
}

// Invoker is the owning side of a tool: the connection a call is forwarded to.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, tool string, args map[string]interface{}) (*Result, error)
}

// Tool is the adapted, globally named form the agent consumes.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Schema      map[string]interface{} `json:"parameters"`
	// Provider names the connection that owns the tool.
	Provider string `json:"provider"`

	call func(ctx context.Context, args map[string]interface{}) (*Result, error)
}

var errUnbound = errors.New("tool is not bound to a provider")

// Call forwards args to the owning provider.
func (t Tool) Call(ctx context.Context, args map[string]interface{}) (*Result, error) {
	if t.call == nil {
		return nil, errUnbound
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return t.call(ctx, args)
}
