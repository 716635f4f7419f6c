package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandNotFound means the launch command could not be resolved.
	ErrCommandNotFound = errors.New("command not found")
	// ErrModuleNotFound means the script an interpreter was asked to run
	// does not exist.
	ErrModuleNotFound = errors.New("module not found")
	// ErrSpawnFailed means the process could not be started.
	ErrSpawnFailed = errors.New("spawn failed")
	// ErrHandshakeFailed means the MCP initialize exchange did not succeed.
	ErrHandshakeFailed = errors.New("handshake failed")
	// ErrDiscoveryFailed means tools/list did not succeed.
	ErrDiscoveryFailed = errors.New("tool discovery failed")
	// ErrNotReady means the operation requires a Ready connection.
	ErrNotReady = errors.New("provider not ready")
)

// Error is a failure local to one provider. It matches both its Kind and
// its cause with errors.Is.
type Error struct {
	Provider string
	Op       string
	Kind     error
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvocationError is returned by Invoke when the provider reported a tool
// error (Payload set) or the call could not be completed (Err set).
type InvocationError struct {
	Provider string
	Tool     string
	// Payload is the provider's own error text.
	Payload string
	Err     error
}

func (e *InvocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("call %s on provider %s: %v", e.Tool, e.Provider, e.Err)
	}
	return fmt.Sprintf("tool %s on provider %s returned an error: %s", e.Tool, e.Provider, e.Payload)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// IsInvocationError reports whether err is, or wraps, an *InvocationError.
func IsInvocationError(err error) bool {
	var invErr *InvocationError
	return errors.As(err, &invErr)
}
