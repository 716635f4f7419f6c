package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"finpal/internal/template"
)

// ToolHandler handles mock tool calls with configurable responses
type ToolHandler struct {
	config         ToolConfig
	templateEngine *template.Engine
}

// NewToolHandler creates a new mock tool handler
func NewToolHandler(config ToolConfig, templateEngine *template.Engine) *ToolHandler {
	return &ToolHandler{
		config:         config,
		templateEngine: templateEngine,
	}
}

// HandleCall selects the first response whose condition matches args and
// renders it. isError reports that the text is a tool error payload.
func (h *ToolHandler) HandleCall(ctx context.Context, args map[string]interface{}) (text string, isError bool, err error) {
	mergedArgs := h.mergeWithDefaults(args)

	var selected *ToolResponse
	for i := range h.config.Responses {
		if h.matchesCondition(h.config.Responses[i].Condition, mergedArgs) {
			selected = &h.config.Responses[i]
			break
		}
	}
	if selected == nil {
		return "", false, fmt.Errorf("no response configured for tool %s", h.config.Name)
	}

	if selected.Delay != "" {
		if d, err := time.ParseDuration(selected.Delay); err == nil {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return "", false, ctx.Err()
			}
		}
	}

	if selected.Error != "" {
		msg, err := h.templateEngine.Render(selected.Error, mergedArgs)
		if err != nil {
			return "", false, fmt.Errorf("failed to render error message: %w", err)
		}
		return msg, true, nil
	}

	rendered, err := h.templateEngine.Replace(selected.Response, mergedArgs)
	if err != nil {
		return "", false, fmt.Errorf("failed to render response: %w", err)
	}

	switch v := rendered.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, false, nil
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v), false, nil
		}
		return string(data), false, nil
	default:
		return fmt.Sprintf("%v", v), false, nil
	}
}

// mergeWithDefaults merges provided args with default values from input schema
func (h *ToolHandler) mergeWithDefaults(args map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})

	if properties, ok := h.config.InputSchema["properties"].(map[string]interface{}); ok {
		for propName, propDef := range properties {
			if propDefMap, ok := propDef.(map[string]interface{}); ok {
				if defaultValue, hasDefault := propDefMap["default"]; hasDefault {
					merged[propName] = defaultValue
				}
			}
		}
	}

	for k, v := range args {
		merged[k] = v
	}
	return merged
}

// matchesCondition checks if the given arguments match the condition. An
// empty condition matches anything.
func (h *ToolHandler) matchesCondition(condition map[string]interface{}, args map[string]interface{}) bool {
	for key, expected := range condition {
		actual, ok := args[key]
		if !ok || !valuesEqual(expected, actual) {
			return false
		}
	}
	return true
}

// valuesEqual compares YAML-decoded expectations with JSON-decoded arguments,
// where numbers arrive as float64.
func valuesEqual(expected, actual interface{}) bool {
	if reflect.DeepEqual(expected, actual) {
		return true
	}
	return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
}
