package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateToolName is logged when a provider publishes a tool whose
	// name is already registered. It never fails Start.
	ErrDuplicateToolName = errors.New("duplicate tool name")
	// ErrShutdown is returned by operations on an orchestrator that has been
	// shut down.
	ErrShutdown = errors.New("orchestrator is shut down")
	// ErrAlreadyStarted is returned by SetDefinitions after Start.
	ErrAlreadyStarted = errors.New("orchestrator already started")
)

// UnknownToolError is returned by Invoke for a name that is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// IsUnknownTool reports whether err is, or wraps, an *UnknownToolError.
func IsUnknownTool(err error) bool {
	var unknown *UnknownToolError
	return errors.As(err, &unknown)
}
