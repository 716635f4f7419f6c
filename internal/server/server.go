package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"finpal/internal/agent"
	"finpal/internal/orchestrator"
	"finpal/internal/tools"
	"finpal/pkg/logging"
)

const (
	// DefaultAddr is used when Config.Addr is empty.
	DefaultAddr = "127.0.0.1:8000"

	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default timeout for writing responses. Chat
	// turns with several tool calls can take a while.
	DefaultWriteTimeout = 180 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown of open requests.
	DefaultShutdownTimeout = 10 * time.Second

	// maxBodyBytes limits request bodies.
	maxBodyBytes = 4 << 20

	subsystem = "HTTPServer"
)

// Backend is the tool side of the API. The application hub implements it.
type Backend interface {
	Start(ctx context.Context) ([]tools.Tool, error)
	Tools() []tools.Tool
	Invoke(ctx context.Context, name string, args map[string]interface{}) (*tools.Result, error)
	Providers() []orchestrator.ProviderStatus
}

// Chatter answers chat messages.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string) (*agent.Reply, error)
}

// DocumentSink stores opaque documents.
type DocumentSink interface {
	Put(ctx context.Context, collection string, document interface{}) (string, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr              string
	AllowedOrigin     string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	// DisableMCP turns off the /mcp re-export.
	DisableMCP bool
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.AllowedOrigin == "" {
		c.AllowedOrigin = "*"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// Server serves the HTTP API.
type Server struct {
	cfg     Config
	backend Backend
	chat    Chatter
	sink    DocumentSink
	bridge  *mcpBridge
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// New creates a server. chat and sink may be nil; the matching endpoints
// then report that the feature is not configured.
func New(cfg Config, backend Backend, chat Chatter, sink DocumentSink) *Server {
	s := &Server{
		cfg:     cfg.withDefaults(),
		backend: backend,
		chat:    chat,
		sink:    sink,
	}
	if !s.cfg.DisableMCP {
		s.bridge = newMCPBridge(backend)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/connect", s.handleConnect)
	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("POST /api/tools/call", s.handleToolCall)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("POST /api/receipts", s.handleReceipt)
	if s.bridge != nil {
		mux.Handle("/mcp", s.bridge)
	}
	return withCORS(s.cfg.AllowedOrigin, withRequestLog(mux))
}

// Start binds the listener and serves in the background. Use Addr for the
// bound address when Config.Addr used port 0.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(subsystem, err, "HTTP server error")
		}
	}()

	s.httpServer, s.listener, s.done = srv, ln, done
	logging.Info(subsystem, "Listening on http://%s", ln.Addr())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Shutdown stops accepting requests and waits for open ones, bounded by
// Config.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.httpServer, s.done
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	logging.Info(subsystem, "Shutting down")
	err := srv.Shutdown(ctx)
	<-done
	return err
}
