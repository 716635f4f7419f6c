package config

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Priority is the startup tier of a provider.
type Priority string

const (
	PriorityEssential Priority = "essential"
	PriorityImportant Priority = "important"
	PriorityOptional  Priority = "optional"
)

// Valid reports whether p is a known tier. The empty string is valid and
// means optional.
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityEssential, PriorityImportant, PriorityOptional:
		return true
	}
	return false
}

// OrDefault returns p, or PriorityOptional when p is empty.
func (p Priority) OrDefault() Priority {
	if p == "" {
		return PriorityOptional
	}
	return p
}

// ServerDefinition describes one tool provider subprocess.
type ServerDefinition struct {
	// Name is the map key in mcpServers.
	Name      string            `json:"-"`
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Priority  Priority          `json:"priority,omitempty"`
	Autostart bool              `json:"autostart,omitempty"`

	// Essential is resolved at load time from Priority and the
	// serverPriorities.essential group.
	Essential bool `json:"-"`
}

// ShouldStart reports whether the provider is started automatically.
func (d ServerDefinition) ShouldStart() bool {
	return d.Essential || d.Autostart
}

// PriorityGroups lists provider names per tier.
type PriorityGroups struct {
	Essential []string `json:"essential,omitempty"`
	Important []string `json:"important,omitempty"`
	Optional  []string `json:"optional,omitempty"`
}

// Settings tunes provider startup and teardown.
type Settings struct {
	// Concurrency bounds how many providers initialize at once.
	Concurrency         int      `json:"concurrency,omitempty"`
	InitTimeout         Duration `json:"initTimeout,omitempty"`
	DiscoveryTimeout    Duration `json:"discoveryTimeout,omitempty"`
	CallTimeout         Duration `json:"callTimeout,omitempty"`
	ShutdownGracePeriod Duration `json:"shutdownGracePeriod,omitempty"`
}

// File is the on-disk provider configuration.
type File struct {
	MCPServers       map[string]ServerDefinition `json:"mcpServers"`
	ServerPriorities PriorityGroups              `json:"serverPriorities,omitempty"`
	Settings         Settings                    `json:"settings,omitempty"`

	// Path is where the file was loaded from, empty for generated files.
	Path string `json:"-"`
}

// Definitions returns the server definitions in startup order: essential
// providers first, then by name.
func (f *File) Definitions() []ServerDefinition {
	defs := make([]ServerDefinition, 0, len(f.MCPServers))
	for _, def := range f.MCPServers {
		defs = append(defs, def)
	}
	slices.SortFunc(defs, func(a, b ServerDefinition) int {
		if a.Essential != b.Essential {
			if a.Essential {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return defs
}

// resolve fills in derived fields after parsing.
func (f *File) resolve() {
	essential := make(map[string]bool, len(f.ServerPriorities.Essential))
	for _, name := range f.ServerPriorities.Essential {
		essential[name] = true
	}
	for name, def := range f.MCPServers {
		def.Name = name
		def.Priority = def.Priority.OrDefault()
		def.Essential = def.Priority == PriorityEssential || essential[name]
		f.MCPServers[name] = def
	}
	f.Settings = f.Settings.withDefaults()
}

// Duration is a time.Duration that reads either a Go duration string ("5s")
// or a number of seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}
