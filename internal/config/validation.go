package config

import (
	"fmt"
	"sort"
	"strings"

	"finpal/pkg/logging"
)

// Validate checks the file for errors that would make startup impossible.
// Priority group entries naming undefined servers are only warned about.
func (f *File) Validate() error {
	var errs ValidationErrors

	if len(f.MCPServers) == 0 {
		logging.Warn("ConfigLoader", "No servers defined in mcpServers")
	}

	names := make([]string, 0, len(f.MCPServers))
	for name := range f.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := f.MCPServers[name]
		field := fmt.Sprintf("mcpServers.%s", name)
		if strings.TrimSpace(name) == "" {
			errs.Add("mcpServers", "server name cannot be empty")
		}
		if strings.TrimSpace(def.Command) == "" {
			errs.Add(field+".command", "is required")
		}
		if !def.Priority.Valid() {
			errs.Add(field+".priority", "must be one of essential, important, optional", def.Priority)
		}
	}

	groups := map[string][]string{
		"essential": f.ServerPriorities.Essential,
		"important": f.ServerPriorities.Important,
		"optional":  f.ServerPriorities.Optional,
	}
	for tier, members := range groups {
		for _, name := range members {
			if _, ok := f.MCPServers[name]; !ok {
				logging.Warn("ConfigLoader", "serverPriorities.%s references undefined server %q", tier, name)
			}
		}
	}

	if f.Settings.Concurrency < 0 {
		errs.Add("settings.concurrency", "cannot be negative", f.Settings.Concurrency)
	}
	durations := map[string]Duration{
		"settings.initTimeout":         f.Settings.InitTimeout,
		"settings.discoveryTimeout":    f.Settings.DiscoveryTimeout,
		"settings.callTimeout":         f.Settings.CallTimeout,
		"settings.shutdownGracePeriod": f.Settings.ShutdownGracePeriod,
	}
	for field, d := range durations {
		if d < 0 {
			errs.Add(field, "cannot be negative", d.Std().String())
		}
	}

	if errs.HasErrors() {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return errs
	}
	return nil
}
