package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders configuration values written as Go templates. The sprig
// function map is available, so values such as
//
//	{{ env "BRAVE_API_KEY" }}
//	{{ env "MEMORY_ROOT" | default "/var/lib/finpal/memory" }}
//
// are resolved against the process environment at load time.
type Engine struct {
	funcs template.FuncMap
}

// New creates a new template engine
func New() *Engine {
	return &Engine{funcs: sprig.TxtFuncMap()}
}

// Render renders a single string. Strings without template actions are
// returned unchanged.
func (e *Engine) Render(value string, data map[string]interface{}) (string, error) {
	if !strings.Contains(value, "{{") {
		return value, nil
	}

	tmpl, err := template.New("value").Funcs(e.funcs).Option("missingkey=error").Parse(value)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", value, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", value, err)
	}
	return buf.String(), nil
}

// Replace walks strings, maps and slices and renders every string it finds.
// Other values are returned as-is.
func (e *Engine) Replace(value interface{}, data map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return e.Render(v, data)
	case map[string]string:
		return e.RenderMap(v, data)
	case []string:
		return e.RenderSlice(v, data)
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, item := range v {
			rendered, err := e.Replace(item, data)
			if err != nil {
				return nil, fmt.Errorf("error in key '%s': %w", key, err)
			}
			result[key] = rendered
		}
		return result, nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			rendered, err := e.Replace(item, data)
			if err != nil {
				return nil, fmt.Errorf("error at index %d: %w", i, err)
			}
			result[i] = rendered
		}
		return result, nil
	default:
		return value, nil
	}
}

// RenderMap renders every value of m into a new map.
func (e *Engine) RenderMap(m map[string]string, data map[string]interface{}) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	result := make(map[string]string, len(m))
	for key, value := range m {
		rendered, err := e.Render(value, data)
		if err != nil {
			return nil, fmt.Errorf("error in key '%s': %w", key, err)
		}
		result[key] = rendered
	}
	return result, nil
}

// RenderSlice renders every element of s into a new slice.
func (e *Engine) RenderSlice(s []string, data map[string]interface{}) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	result := make([]string, len(s))
	for i, value := range s {
		rendered, err := e.Render(value, data)
		if err != nil {
			return nil, fmt.Errorf("error at index %d: %w", i, err)
		}
		result[i] = rendered
	}
	return result, nil
}
