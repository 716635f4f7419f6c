package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"finpal/internal/tools"
	"finpal/pkg/logging"
)

const (
	mcpServerName    = "finpal"
	mcpServerVersion = "1.0.0"
)

// mcpBridge re-exports the backend's aggregated tools as one MCP server.
// The exposed tool set is synced with the backend before every request.
type mcpBridge struct {
	backend Backend
	server  *mcpserver.MCPServer
	http    *mcpserver.StreamableHTTPServer

	mu      sync.Mutex
	exposed []string
	key     string
}

func newMCPBridge(backend Backend) *mcpBridge {
	s := mcpserver.NewMCPServer(mcpServerName, mcpServerVersion,
		mcpserver.WithToolCapabilities(true),
	)
	return &mcpBridge{
		backend: backend,
		server:  s,
		http:    mcpserver.NewStreamableHTTPServer(s),
	}
}

func (b *mcpBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.sync()
	b.http.ServeHTTP(w, r)
}

// sync replaces the exposed tools when the backend's tool set changed.
func (b *mcpBridge) sync() {
	available := b.backend.Tools()

	names := make([]string, 0, len(available))
	for _, t := range available {
		names = append(names, t.Provider+"/"+t.Name)
	}
	slices.Sort(names)
	key := strings.Join(names, ",")

	b.mu.Lock()
	defer b.mu.Unlock()
	if key == b.key {
		return
	}

	if len(b.exposed) > 0 {
		b.server.DeleteTools(b.exposed...)
	}

	serverTools := make([]mcpserver.ServerTool, 0, len(available))
	exposed := make([]string, 0, len(available))
	for _, t := range available {
		st, err := b.serverTool(t)
		if err != nil {
			logging.Warn(subsystem, "Not exporting tool %s over MCP: %v", t.Name, err)
			continue
		}
		serverTools = append(serverTools, st)
		exposed = append(exposed, t.Name)
	}
	if len(serverTools) > 0 {
		b.server.AddTools(serverTools...)
	}

	b.exposed, b.key = exposed, key
	logging.Debug(subsystem, "Exporting %d tools over MCP", len(exposed))
}

func (b *mcpBridge) serverTool(t tools.Tool) (mcpserver.ServerTool, error) {
	schema, err := json.Marshal(t.Schema)
	if err != nil {
		return mcpserver.ServerTool{}, err
	}
	name := t.Name
	return mcpserver.ServerTool{
		Tool: mcp.NewToolWithRawSchema(name, t.Description, schema),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res, err := b.backend.Invoke(ctx, name, req.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out := mcp.NewToolResultText(res.Text)
			if res.Structured != nil {
				out.StructuredContent = res.Structured
			}
			return out, nil
		},
	}, nil
}
