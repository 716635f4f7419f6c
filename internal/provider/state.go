package provider

// State is the lifecycle state of a Connection.
type State string

const (
	StateUninitialized State = "Uninitialized"
	StateInitializing  State = "Initializing"
	StateReady         State = "Ready"
	StateFailed        State = "Failed"
	StateClosed        State = "Closed"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further transitions other than Cleanup are possible.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}
