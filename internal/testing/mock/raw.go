package mock

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type rawRequest struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rawError       `json:"error,omitempty"`
}

type rawError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// serveRaw is a bare JSON-RPC loop for providers that must misbehave in ways
// the mcp-go server will not.
func (s *Server) serveRaw(ctx context.Context, in io.Reader, out io.Writer) error {
	if s.config.Behavior.IgnoreShutdown {
		signal.Ignore(syscall.SIGTERM, syscall.SIGINT)
	}

	var writeMu sync.Mutex
	reply := func(resp rawResponse) {
		resp.JSONRPC = "2.0"
		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_, _ = out.Write(append(data, '\n'))
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		var req rawRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		if len(req.ID) == 0 {
			// notification
			continue
		}

		switch req.Method {
		case "initialize":
			if s.config.Behavior.HangOnInitialize {
				continue
			}
			var params struct {
				ProtocolVersion string `json:"protocolVersion"`
			}
			_ = json.Unmarshal(req.Params, &params)
			reply(rawResponse{ID: req.ID, Result: map[string]interface{}{
				"protocolVersion": params.ProtocolVersion,
				"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
				"serverInfo":      map[string]interface{}{"name": "mock-" + s.config.Name, "version": "1.0.0"},
			}})
		case "ping":
			reply(rawResponse{ID: req.ID, Result: map[string]interface{}{}})
		case "tools/list":
			if s.config.Behavior.HangOnList {
				continue
			}
			reply(rawResponse{ID: req.ID, Result: map[string]interface{}{"tools": s.rawTools()}})
		case "tools/call":
			go s.rawCall(ctx, req, reply)
		default:
			reply(rawResponse{ID: req.ID, Error: &rawError{Code: -32601, Message: "method not found: " + req.Method}})
		}
	}

	if s.config.Behavior.IgnoreShutdown {
		for {
			time.Sleep(time.Hour)
		}
	}
	return scanner.Err()
}

func (s *Server) rawTools() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(s.config.Tools))
	for _, tc := range s.config.Tools {
		schema := tc.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		out = append(out, map[string]interface{}{
			"name":        tc.Name,
			"description": tc.Description,
			"inputSchema": schema,
		})
	}
	return out
}

func (s *Server) rawCall(ctx context.Context, req rawRequest, reply func(rawResponse)) {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		reply(rawResponse{ID: req.ID, Error: &rawError{Code: -32602, Message: err.Error()}})
		return
	}

	handler, ok := s.toolHandlers[params.Name]
	if !ok {
		reply(rawResponse{ID: req.ID, Error: &rawError{Code: -32602, Message: "unknown tool " + params.Name}})
		return
	}

	text, isError, err := handler.HandleCall(ctx, params.Arguments)
	if err != nil {
		reply(rawResponse{ID: req.ID, Error: &rawError{Code: -32603, Message: err.Error()}})
		return
	}
	reply(rawResponse{ID: req.ID, Result: map[string]interface{}{
		"content": []map[string]interface{}{{"type": "text", "text": text}},
		"isError": isError,
	}})
}
