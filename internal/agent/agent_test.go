package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpal/internal/store"
	"finpal/internal/tools"
)

// fakeModel serves /chat/completions from a queue of canned messages and
// records every request it receives.
type fakeModel struct {
	mu       sync.Mutex
	replies  []openai.ChatCompletionMessage
	requests []openai.ChatCompletionRequest
	status   int
}

func (m *fakeModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.URL.Path != "/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.requests = append(m.requests, req)

	if m.status != 0 {
		w.WriteHeader(m.status)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"rate_limit"}}`))
		return
	}
	if len(m.replies) == 0 {
		http.Error(w, "no more replies", http.StatusInternalServerError)
		return
	}
	msg := m.replies[0]
	m.replies = m.replies[1:]

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: openai.FinishReasonStop,
		}},
	})
}

func (m *fakeModel) recorded() []openai.ChatCompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]openai.ChatCompletionRequest(nil), m.requests...)
}

func newFakeModel(t *testing.T, replies ...openai.ChatCompletionMessage) (*fakeModel, *openai.Client) {
	t.Helper()
	model := &fakeModel{replies: replies}
	srv := httptest.NewServer(model)
	t.Cleanup(srv.Close)
	return model, NewClient("test-key", srv.URL+"/")
}

type fakeToolbox struct {
	calls []string
	args  []map[string]interface{}
}

func (f *fakeToolbox) Tools() []tools.Tool {
	return []tools.Tool{{
		Name:        "lookup",
		Description: "Find a receipt by merchant",
		Schema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"merchant": map[string]interface{}{"type": "string"}},
		},
	}}
}

func (f *fakeToolbox) Invoke(_ context.Context, name string, args map[string]interface{}) (*tools.Result, error) {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	if name != "lookup" {
		return nil, errors.New("unknown tool " + name)
	}
	return &tools.Result{Text: "Cafe Luna $12.50"}, nil
}

func toolCallMessage(name, args string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:   "call_" + name,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      name,
				Arguments: args,
			},
		}},
	}
}

func answer(text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}
}

func TestChat_ToolCallingLoop(t *testing.T) {
	model, client := newFakeModel(t,
		toolCallMessage("lookup", `{"merchant":"Cafe Luna"}`),
		answer("You spent $12.50 at Cafe Luna."),
	)
	toolbox := &fakeToolbox{}
	a := New(client, toolbox, nil, Config{})

	reply, err := a.Chat(context.Background(), "", "How much at Cafe Luna?")
	require.NoError(t, err)
	assert.Equal(t, "You spent $12.50 at Cafe Luna.", reply.Text)
	assert.Equal(t, 2, reply.Steps)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "Cafe Luna $12.50", reply.ToolCalls[0].Result)

	assert.Equal(t, []string{"lookup"}, toolbox.calls)
	assert.Equal(t, "Cafe Luna", toolbox.args[0]["merchant"])

	requests := model.recorded()
	require.Len(t, requests, 2)
	assert.Equal(t, DefaultModel, requests[0].Model)
	assert.InDelta(t, DefaultTemperature, requests[0].Temperature, 0.001)
	require.Len(t, requests[0].Tools, 1)
	assert.Equal(t, "lookup", requests[0].Tools[0].Function.Name)

	last := requests[1].Messages[len(requests[1].Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Equal(t, "call_lookup", last.ToolCallID)
	assert.Equal(t, "Cafe Luna $12.50", last.Content)
}

func TestChat_ToolErrorsGoBackToModel(t *testing.T) {
	model, client := newFakeModel(t,
		toolCallMessage("missing", `{}`),
		toolCallMessage("lookup", `not json`),
		answer("I could not find that."),
	)
	a := New(client, &fakeToolbox{}, nil, Config{})

	reply, err := a.Chat(context.Background(), "", "Anything?")
	require.NoError(t, err)
	require.Len(t, reply.ToolCalls, 2)
	assert.Contains(t, reply.ToolCalls[0].Error, "unknown tool missing")
	assert.Contains(t, reply.ToolCalls[1].Error, "not a JSON object")

	requests := model.recorded()
	require.Len(t, requests, 3)
	last := requests[1].Messages[len(requests[1].Messages)-1]
	assert.Contains(t, last.Content, "Error: unknown tool missing")
}

func TestChat_StepLimit(t *testing.T) {
	_, client := newFakeModel(t,
		toolCallMessage("lookup", `{}`),
		toolCallMessage("lookup", `{}`),
		toolCallMessage("lookup", `{}`),
	)
	a := New(client, &fakeToolbox{}, nil, Config{MaxSteps: 2})

	_, err := a.Chat(context.Background(), "", "loop forever")
	assert.ErrorIs(t, err, ErrStepLimit)
}

func TestChat_WithoutToolsSendsNoToolDefinitions(t *testing.T) {
	model, client := newFakeModel(t, answer("Hello!"))
	a := New(client, nil, nil, Config{Model: "custom-model"})

	reply, err := a.Chat(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply.Text)

	requests := model.recorded()
	require.Len(t, requests, 1)
	assert.Empty(t, requests[0].Tools)
	assert.Equal(t, "custom-model", requests[0].Model)
}

func TestChat_HistoryPerSession(t *testing.T) {
	history, err := store.Open(":memory:")
	require.NoError(t, err)
	defer history.Close()

	model, client := newFakeModel(t, answer("first answer"), answer("second answer"))
	a := New(client, nil, history, Config{})
	ctx := context.Background()

	_, err = a.Chat(ctx, "s1", "first question")
	require.NoError(t, err)
	reply, err := a.Chat(ctx, "s1", "second question")
	require.NoError(t, err)
	assert.Equal(t, "s1", reply.SessionID)

	requests := model.recorded()
	require.Len(t, requests, 2)
	var contents []string
	for _, m := range requests[1].Messages[1:] {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first question", "first answer", "second question"}, contents)

	msgs, err := history.Messages(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestChat_ModelError(t *testing.T) {
	model, client := newFakeModel(t)
	model.status = http.StatusTooManyRequests
	a := New(client, nil, nil, Config{})

	_, err := a.Chat(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion")
}

func TestNormalizers(t *testing.T) {
	resp := openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: answer("<think>adding up receipts</think>\nTotal: $40.00"),
	}}}

	msg, err := FirstChoice.Normalize(resp)
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "<think>")

	msg, err = StripReasoning(nil).Normalize(resp)
	require.NoError(t, err)
	assert.Equal(t, "Total: $40.00", msg.Content)

	_, err = FirstChoice.Normalize(openai.ChatCompletionResponse{})
	assert.Error(t, err)

	msg, err = NormalizerByName("strip-reasoning").Normalize(resp)
	require.NoError(t, err)
	assert.Equal(t, "Total: $40.00", msg.Content)
}
