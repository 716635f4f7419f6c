package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"finpal/internal/config"
	"finpal/internal/template"
)

// ConfigEnv names the environment variable RunIfRequested looks for.
const ConfigEnv = "FINPAL_MOCK_PROVIDER_CONFIG"

// ErrExitRequested is returned by Serve for exit_immediately providers.
var ErrExitRequested = errors.New("mock provider configured to exit immediately")

// Server represents a mock MCP server for testing
type Server struct {
	config         Config
	toolHandlers   map[string]*ToolHandler
	templateEngine *template.Engine
	mcpServer      *server.MCPServer
}

// NewServerFromFile creates a new mock MCP server from a configuration file
func NewServerFromFile(configPath string) (*Server, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mock config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse mock config file %s: %w", configPath, err)
	}
	if cfg.Name == "" {
		name := filepath.Base(configPath)
		cfg.Name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return NewServer(cfg)
}

// NewServer creates a mock MCP server from cfg.
func NewServer(cfg Config) (*Server, error) {
	mcpServer := server.NewMCPServer(
		fmt.Sprintf("mock-%s", cfg.Name),
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:         cfg,
		toolHandlers:   make(map[string]*ToolHandler),
		templateEngine: template.New(),
		mcpServer:      mcpServer,
	}

	for _, toolConfig := range cfg.Tools {
		if _, dup := s.toolHandlers[toolConfig.Name]; dup {
			return nil, fmt.Errorf("duplicate mock tool %q", toolConfig.Name)
		}
		s.toolHandlers[toolConfig.Name] = NewToolHandler(toolConfig, s.templateEngine)

		tool, err := toolConfig.mcpTool()
		if err != nil {
			return nil, err
		}
		mcpServer.AddTool(tool, s.createToolHandler(toolConfig.Name))
	}

	return s, nil
}

func (tc ToolConfig) mcpTool() (mcp.Tool, error) {
	if tc.InputSchema == nil {
		return mcp.NewTool(tc.Name, mcp.WithDescription(tc.Description)), nil
	}
	raw, err := json.Marshal(tc.InputSchema)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("tool %s: invalid input_schema: %w", tc.Name, err)
	}
	return mcp.NewToolWithRawSchema(tc.Name, tc.Description, raw), nil
}

// createToolHandler creates an MCP tool handler function for the given tool name
func (s *Server) createToolHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		handler, exists := s.toolHandlers[toolName]
		if !exists {
			return mcp.NewToolResultError(fmt.Sprintf("tool %s not found", toolName)), nil
		}

		text, isError, err := handler.HandleCall(ctx, request.GetArguments())
		if err != nil {
			return nil, err
		}
		if isError {
			return mcp.NewToolResultError(text), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// Serve runs the provider on the given streams until in is exhausted or ctx
// is done.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	b := s.config.Behavior
	if b.PIDFile != "" {
		if err := os.WriteFile(b.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
	}

	switch {
	case b.ExitImmediately:
		return ErrExitRequested
	case b.misbehaves():
		return s.serveRaw(ctx, in, out)
	default:
		stdio := server.NewStdioServer(s.mcpServer)
		return stdio.Listen(ctx, in, out)
	}
}

// RunIfRequested turns the current process into a mock provider when
// ConfigEnv is set, and never returns in that case. Call it first thing in
// TestMain.
func RunIfRequested() {
	path := os.Getenv(ConfigEnv)
	if path == "" {
		return
	}

	srv, err := NewServerFromFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "mock provider %s serving %d tools\n", srv.config.Name, len(srv.config.Tools))

	if err := srv.Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
	os.Exit(0)
}

// WriteConfig writes cfg as YAML into dir and returns the file path.
func WriteConfig(dir string, cfg Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, cfg.Name+".yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// Definition returns a ServerDefinition that re-executes the running binary
// as the mock provider configured at configPath. The binary must call
// RunIfRequested on startup.
func Definition(name, configPath string) config.ServerDefinition {
	return config.ServerDefinition{
		Name:     name,
		Command:  os.Args[0],
		Args:     []string{"-test.run=^$"},
		Env:      map[string]string{ConfigEnv: configPath},
		Priority: config.PriorityOptional,
	}
}
