package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"finpal/internal/store"
	"finpal/internal/tools"
	"finpal/pkg/logging"
	pkgstrings "finpal/pkg/strings"
)

const (
	// DefaultModel is used when MODEL_CHOICE is unset.
	DefaultModel = "gemini-2.0-flash"
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultTemperature = 0.3
	DefaultMaxSteps    = 8
	DefaultHistory     = 20

	subsystem = "Agent"
)

// DefaultSystemPrompt frames the assistant for receipt questions.
const DefaultSystemPrompt = "You are a helpful financial assistant for the FinPal receipt tracking app. " +
	"Use the available tools when they help answer the question. " +
	"If you don't know or can't find the information, say so. " +
	"Be concise, accurate, and professional. " +
	"Format currency values as dollars with two decimal places, e.g., $12.34. " +
	"Do not make up information and do not describe system internals."

// ErrStepLimit is returned when the model keeps calling tools past
// Config.MaxSteps.
var ErrStepLimit = errors.New("agent step limit reached")

// Toolbox is what the agent may call. The orchestrator implements it.
type Toolbox interface {
	Tools() []tools.Tool
	Invoke(ctx context.Context, name string, args map[string]interface{}) (*tools.Result, error)
}

// History stores chat turns per session.
type History interface {
	AppendMessage(ctx context.Context, sessionID, role, content string) error
	Messages(ctx context.Context, sessionID string, limit int) ([]store.Message, error)
}

// ChatClient is the subset of *openai.Client the agent uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config tunes the agent. Zero values take the defaults above.
type Config struct {
	Model        string
	Temperature  float32
	MaxSteps     int
	HistoryLimit int
	SystemPrompt string
	Normalizer   ResponseNormalizer
}

// ToolCall records one tool call the model made while answering.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Reply is the outcome of one chat turn. Text is the answer shown to the
// user.
type Reply struct {
	Text      string     `json:"text"`
	SessionID string     `json:"sessionId,omitempty"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Steps     int        `json:"steps"`
}

// Agent runs the tool-calling loop.
type Agent struct {
	client  ChatClient
	toolbox Toolbox
	history History
	cfg     Config
}

// NewClient builds an OpenAI-compatible client. An empty baseURL means
// DefaultBaseURL.
func NewClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	return openai.NewClientWithConfig(cfg)
}

// New creates an agent. toolbox and history may be nil: the agent then
// answers without tools or without memory between turns.
func New(client ChatClient, toolbox Toolbox, history History, cfg Config) *Agent {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistory
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = FirstChoice
	}
	return &Agent{client: client, toolbox: toolbox, history: history, cfg: cfg}
}

// Model returns the configured model name.
func (a *Agent) Model() string { return a.cfg.Model }

// Chat answers message within sessionID. Tool failures are handed back to
// the model as tool output; only model and history errors fail the turn.
func (a *Agent) Chat(ctx context.Context, sessionID, message string) (*Reply, error) {
	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: a.cfg.SystemPrompt}}

	if a.history != nil && sessionID != "" {
		past, err := a.history.Messages(ctx, sessionID, a.cfg.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		for _, m := range past {
			messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	definitions := a.toolDefinitions()
	reply := &Reply{SessionID: sessionID}

	for reply.Steps < a.cfg.MaxSteps {
		reply.Steps++

		req := openai.ChatCompletionRequest{
			Model:       a.cfg.Model,
			Messages:    messages,
			Temperature: a.cfg.Temperature,
		}
		if len(definitions) > 0 {
			req.Tools = definitions
		}

		resp, err := a.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		msg, err := a.cfg.Normalizer.Normalize(resp)
		if err != nil {
			return nil, fmt.Errorf("normalize response: %w", err)
		}

		if len(msg.ToolCalls) == 0 {
			reply.Text = msg.Content
			if err := a.remember(ctx, sessionID, message, reply.Text); err != nil {
				return nil, err
			}
			return reply, nil
		}

		msg.Role = openai.ChatMessageRoleAssistant
		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			record := a.runTool(ctx, call)
			reply.ToolCalls = append(reply.ToolCalls, record)

			content := record.Result
			if record.Error != "" {
				content = "Error: " + record.Error
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}

	return nil, fmt.Errorf("%w after %d steps", ErrStepLimit, reply.Steps)
}

func (a *Agent) runTool(ctx context.Context, call openai.ToolCall) ToolCall {
	record := ToolCall{Name: call.Function.Name, Arguments: call.Function.Arguments}

	if a.toolbox == nil {
		record.Error = "no tools are available"
		return record
	}

	args := map[string]interface{}{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			record.Error = fmt.Sprintf("arguments are not a JSON object: %v", err)
			return record
		}
	}

	logging.Debug(subsystem, "Calling tool %s", call.Function.Name)
	res, err := a.toolbox.Invoke(ctx, call.Function.Name, args)
	if err != nil {
		logging.Warn(subsystem, "Tool %s failed: %v", call.Function.Name, err)
		record.Error = err.Error()
		return record
	}
	logging.Debug(subsystem, "Tool %s returned: %s", call.Function.Name, pkgstrings.Truncate(res.Text, pkgstrings.PreviewWidth))
	record.Result = res.Text
	return record
}

func (a *Agent) remember(ctx context.Context, sessionID, question, answer string) error {
	if a.history == nil || sessionID == "" {
		return nil
	}
	if err := a.history.AppendMessage(ctx, sessionID, openai.ChatMessageRoleUser, question); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if err := a.history.AppendMessage(ctx, sessionID, openai.ChatMessageRoleAssistant, answer); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (a *Agent) toolDefinitions() []openai.Tool {
	if a.toolbox == nil {
		return nil
	}
	available := a.toolbox.Tools()
	defs := make([]openai.Tool, 0, len(available))
	for _, t := range available {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return defs
}
