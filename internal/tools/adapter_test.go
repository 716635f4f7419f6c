package tools

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvoker struct {
	name string

	mu    sync.Mutex
	calls []string
	args  []map[string]interface{}
}

func (r *recordingInvoker) Name() string { return r.name }

func (r *recordingInvoker) Invoke(_ context.Context, tool string, args map[string]interface{}) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, tool)
	r.args = append(r.args, args)
	if tool == "broken" {
		return nil, errors.New("provider error")
	}
	return &Result{Text: "ok:" + tool}, nil
}

func TestSanitizeSchema(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]interface{}
		expected map[string]interface{}
	}{
		{
			name:     "nil schema becomes empty object",
			input:    nil,
			expected: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			name: "missing type injected",
			input: map[string]interface{}{
				"properties": map[string]interface{}{"q": map[string]interface{}{"type": "string"}},
			},
			expected: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"q": map[string]interface{}{"type": "string"}},
			},
		},
		{
			name:  "empty type injected",
			input: map[string]interface{}{"type": "", "properties": map[string]interface{}{}},
			expected: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			name: "meta-schema reference stripped at every level",
			input: map[string]interface{}{
				"$schema": "http://json-schema.org/draft-07/schema#",
				"type":    "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"$schema": "http://json-schema.org/draft-07/schema#",
						"type":    "string",
					},
					"filter": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"field": map[string]interface{}{"$schema": "x", "type": "string"},
						},
					},
					"tags": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"$schema": "x", "type": "string"},
					},
				},
				"required": []interface{}{"query"},
			},
			expected: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string"},
					"filter": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"field": map[string]interface{}{"type": "string"},
						},
					},
					"tags": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
				},
				"required": []interface{}{"query"},
			},
		},
		{
			name:     "explicit non-object type kept",
			input:    map[string]interface{}{"type": "string"},
			expected: map[string]interface{}{"type": "string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeSchema(tt.input))
		})
	}
}

func TestSanitizeSchema_DoesNotMutateInput(t *testing.T) {
	input := map[string]interface{}{
		"$schema": "x",
		"properties": map[string]interface{}{
			"a": map[string]interface{}{"$schema": "x"},
		},
	}

	_ = SanitizeSchema(input)

	assert.Equal(t, "x", input["$schema"])
	assert.NotContains(t, input, "type")
	nested := input["properties"].(map[string]interface{})["a"].(map[string]interface{})
	assert.Equal(t, "x", nested["$schema"])
}

func TestAdapt(t *testing.T) {
	inv := &recordingInvoker{name: "memory"}

	tool := Adapt(Descriptor{Name: "create_entities"}, inv)

	assert.Equal(t, "create_entities", tool.Name)
	assert.Equal(t, "", tool.Description)
	assert.Equal(t, "memory", tool.Provider)
	assert.Equal(t, "object", tool.Schema["type"])

	res, err := tool.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok:create_entities", res.Text)
	assert.Equal(t, []string{"create_entities"}, inv.calls)
	assert.NotNil(t, inv.args[0], "nil arguments are sent as an empty object")
}

func TestAdapt_UsesProviderLocalName(t *testing.T) {
	inv := &recordingInvoker{name: "search"}

	tool := Adapt(Descriptor{Name: "broken", Description: "always fails"}, inv)
	tool.Name = "search_broken"

	_, err := tool.Call(context.Background(), map[string]interface{}{"q": "x"})
	assert.EqualError(t, err, "provider error")
	assert.Equal(t, []string{"broken"}, inv.calls)
}

func TestAdaptAll(t *testing.T) {
	inv := &recordingInvoker{name: "p"}
	out := AdaptAll([]Descriptor{{Name: "a"}, {Name: "b", Description: "second"}}, inv)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Name)
	assert.Equal(t, "second", out[1].Description)
}

func TestTool_CallUnbound(t *testing.T) {
	_, err := Tool{Name: "x"}.Call(context.Background(), nil)
	assert.Error(t, err)
}
