package mock

// Config describes one mock provider.
type Config struct {
	// Name is reported in the handshake as mock-<name>.
	Name     string       `yaml:"name"`
	Tools    []ToolConfig `yaml:"tools"`
	Behavior Behavior     `yaml:"behavior,omitempty"`
}

// Behavior switches for misbehaving providers.
type Behavior struct {
	// ExitImmediately exits before reading any request.
	ExitImmediately bool `yaml:"exit_immediately,omitempty"`
	// HangOnInitialize never answers the handshake.
	HangOnInitialize bool `yaml:"hang_on_initialize,omitempty"`
	// HangOnList answers the handshake but never answers tools/list.
	HangOnList bool `yaml:"hang_on_list,omitempty"`
	// IgnoreShutdown keeps the process alive after stdin closes and ignores
	// SIGTERM and SIGINT.
	IgnoreShutdown bool `yaml:"ignore_shutdown,omitempty"`
	// PIDFile, when set, receives the process id at startup.
	PIDFile string `yaml:"pid_file,omitempty"`
}

func (b Behavior) misbehaves() bool {
	return b.HangOnInitialize || b.HangOnList || b.IgnoreShutdown
}

// ToolConfig defines configuration for a mock tool
type ToolConfig struct {
	// Name is the unique identifier for the tool
	Name string `yaml:"name"`
	// Description describes what the tool does
	Description string `yaml:"description"`
	// InputSchema defines the expected input schema (JSON Schema)
	InputSchema map[string]interface{} `yaml:"input_schema,omitempty"`
	// Responses defines possible responses for this tool
	Responses []ToolResponse `yaml:"responses"`
}

// ToolResponse defines a conditional response for a mock tool
type ToolResponse struct {
	// Condition defines parameter matching for this response (optional)
	// If empty, this response is used as a fallback
	Condition map[string]interface{} `yaml:"condition,omitempty"`
	// Response is the response data to return
	Response interface{} `yaml:"response,omitempty"`
	// Error is returned to the caller as a tool error payload
	Error string `yaml:"error,omitempty"`
	// Delay simulates response latency (e.g., "2s", "500ms")
	Delay string `yaml:"delay,omitempty"`
}
