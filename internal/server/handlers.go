package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"finpal/internal/agent"
	"finpal/internal/orchestrator"
	"finpal/internal/provider"
	"finpal/internal/store"
	"finpal/internal/tools"
	"finpal/pkg/logging"
)

type errorResponse struct {
	Error   string `json:"error"`
	Payload string `json:"payload,omitempty"`
}

type healthResponse struct {
	Status    string                        `json:"status"`
	Connected bool                          `json:"connected"`
	Tools     int                           `json:"tools"`
	Degraded  bool                          `json:"degraded"`
	Providers []orchestrator.ProviderStatus `json:"providers"`
}

type toolName struct {
	Name string `json:"name"`
}

type connectResponse struct {
	Status string     `json:"status"`
	Tools  []toolName `json:"tools"`
}

type toolsResponse struct {
	Tools []tools.Tool `json:"tools"`
}

type toolCallRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type toolCallResponse struct {
	Result *tools.Result `json:"result"`
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type chatResponse struct {
	Response  string           `json:"response"`
	SessionID string           `json:"sessionId"`
	ToolCalls []agent.ToolCall `json:"toolCalls,omitempty"`
}

type providersResponse struct {
	Providers []orchestrator.ProviderStatus `json:"providers"`
}

type receiptResponse struct {
	ID string `json:"id"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug(subsystem, "Writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	available := s.backend.Tools()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Connected: true,
		Tools:     len(available),
		Degraded:  len(available) == 0,
		Providers: s.backend.Providers(),
	})
}

// handleConnect starts the providers. The start outlives the request: a
// client that goes away must not cancel it for everyone else.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	available, err := s.backend.Start(context.WithoutCancel(r.Context()))
	if err != nil {
		logging.Error(subsystem, err, "Connect failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	names := make([]toolName, 0, len(available))
	for _, t := range available {
		names = append(names, toolName{Name: t.Name})
	}
	writeJSON(w, http.StatusOK, connectResponse{Status: "connected", Tools: names})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	available := s.backend.Tools()
	if available == nil {
		available = []tools.Tool{}
	}
	writeJSON(w, http.StatusOK, toolsResponse{Tools: available})
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	var req toolCallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	res, err := s.backend.Invoke(r.Context(), req.Name, req.Arguments)
	if err != nil {
		var invErr *provider.InvocationError
		switch {
		case orchestrator.IsUnknownTool(err):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, orchestrator.ErrShutdown):
			writeError(w, http.StatusServiceUnavailable, err)
		case errors.As(err, &invErr):
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Payload: invErr.Payload})
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, toolCallResponse{Result: res})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, errors.New("message is required"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	if s.chat == nil {
		writeJSON(w, http.StatusOK, chatResponse{
			Response:  "Sorry, an error occurred: chat is not configured",
			SessionID: req.SessionID,
		})
		return
	}

	reply, err := s.chat.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		// The frontend shows the response text as is, so errors are answered
		// in band.
		logging.Error(subsystem, err, "Chat failed")
		writeJSON(w, http.StatusOK, chatResponse{
			Response:  "Sorry, an error occurred: " + err.Error(),
			SessionID: req.SessionID,
		})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:  reply.Text,
		SessionID: req.SessionID,
		ToolCalls: reply.ToolCalls,
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{Providers: s.backend.Providers()})
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("document store is not configured"))
		return
	}

	var doc map[string]interface{}
	if err := decodeJSON(w, r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("receipt must be a JSON object"))
		return
	}

	id, err := s.sink.Put(r.Context(), store.CollectionReceipts, doc)
	if err != nil {
		logging.Error(subsystem, err, "Storing receipt")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, receiptResponse{ID: id})
}
