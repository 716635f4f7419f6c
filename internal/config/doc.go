// Package config loads the tool-provider definitions that finpal starts at
// runtime.
//
// The file format is the conventional MCP client layout, accepted as JSON or
// YAML:
//
//	{
//	  "mcpServers": {
//	    "memory": {"command": "npx", "args": ["-y", "@modelcontextprotocol/server-memory"], "priority": "essential"},
//	    "yfinance": {"command": "npx", "args": ["-y", "@elektrothing/server-yahoofinance"], "autostart": false}
//	  },
//	  "serverPriorities": {"essential": ["memory"]},
//	  "settings": {"concurrency": 4, "shutdownGracePeriod": "5s"}
//	}
//
// Env and argument values may use Go templates with the sprig function set,
// for example {{ env "BRAVE_API_KEY" }}. Templates are rendered once at load
// time; the resulting ServerDefinitions are immutable.
package config
