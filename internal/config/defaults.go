package config

import "time"

const (
	DefaultConcurrency         = 4
	DefaultInitTimeout         = 30 * time.Second
	DefaultDiscoveryTimeout    = 15 * time.Second
	DefaultCallTimeout         = 60 * time.Second
	DefaultShutdownGracePeriod = 5 * time.Second

	// DefaultConfigFile is used when neither a flag nor MCP_CONFIG_PATH is set.
	DefaultConfigFile = "mcp_config.json"
	// ConfigPathEnv overrides the default config location.
	ConfigPathEnv = "MCP_CONFIG_PATH"
)

func (s Settings) withDefaults() Settings {
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.InitTimeout <= 0 {
		s.InitTimeout = Duration(DefaultInitTimeout)
	}
	if s.DiscoveryTimeout <= 0 {
		s.DiscoveryTimeout = Duration(DefaultDiscoveryTimeout)
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = Duration(DefaultCallTimeout)
	}
	if s.ShutdownGracePeriod <= 0 {
		s.ShutdownGracePeriod = Duration(DefaultShutdownGracePeriod)
	}
	return s
}

// DefaultSettings returns Settings with every field set to its default.
func DefaultSettings() Settings {
	return Settings{}.withDefaults()
}

// DefaultFile returns the provider set written by `finpal config init`.
// API keys are left as env templates so secrets never land in the file.
func DefaultFile() *File {
	return &File{
		MCPServers: map[string]ServerDefinition{
			"brave-search": {
				Command:  "npx",
				Args:     []string{"-y", "--max-old-space-size=96", "@modelcontextprotocol/server-brave-search"},
				Env:      map[string]string{"BRAVE_API_KEY": `{{ env "BRAVE_API_KEY" }}`},
				Priority: PriorityImportant,
			},
			"sequential-thinking": {
				Command:   "npx",
				Args:      []string{"-y", "--max-old-space-size=64", "@modelcontextprotocol/server-sequential-thinking"},
				Priority:  PriorityEssential,
				Autostart: true,
			},
			"google-maps": {
				Command:  "npx",
				Args:     []string{"-y", "--max-old-space-size=64", "@modelcontextprotocol/server-google-maps"},
				Env:      map[string]string{"GOOGLE_MAPS_API_KEY": `{{ env "GOOGLE_MAPS_API_KEY" }}`},
				Priority: PriorityImportant,
			},
			"memory": {
				Command:   "npx",
				Args:      []string{"-y", "--max-old-space-size=64", "@modelcontextprotocol/server-memory"},
				Priority:  PriorityEssential,
				Autostart: true,
			},
			"yfinance": {
				Command:  "npx",
				Args:     []string{"-y", "--max-old-space-size=64", "@elektrothing/server-yahoofinance"},
				Priority: PriorityOptional,
			},
		},
		ServerPriorities: PriorityGroups{
			Essential: []string{"memory", "sequential-thinking"},
			Important: []string{"google-maps", "brave-search"},
			Optional:  []string{"yfinance"},
		},
		Settings: DefaultSettings(),
	}
}
