package tools

import "context"

// metadataKeys are stripped from every schema level handed to the agent.
var metadataKeys = []string{"$schema"}

// Adapt converts a provider descriptor into a Tool bound to inv. The call
// closure captures inv and the provider-local name only.
func Adapt(d Descriptor, inv Invoker) Tool {
	localName := d.Name
	return Tool{
		Name:        d.Name,
		Description: d.Description,
		Schema:      SanitizeSchema(d.Schema),
		Provider:    inv.Name(),
		call: func(ctx context.Context, args map[string]interface{}) (*Result, error) {
			return inv.Invoke(ctx, localName, args)
		},
	}
}

// AdaptAll adapts every descriptor published by inv.
func AdaptAll(descriptors []Descriptor, inv Invoker) []Tool {
	out := make([]Tool, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, Adapt(d, inv))
	}
	return out
}

// SanitizeSchema returns a copy of schema that is always an object schema:
// a missing or empty type becomes "object", an object without properties
// gets an empty properties map, and metadata keys such as "$schema" are
// removed at the top level and from every nested property schema. The input
// is not modified.
func SanitizeSchema(schema map[string]interface{}) map[string]interface{} {
	out, _ := deepCopy(schema).(map[string]interface{})
	if out == nil {
		out = map[string]interface{}{}
	}

	if t, ok := out["type"].(string); !ok || t == "" {
		if _, isList := out["type"].([]interface{}); !isList {
			out["type"] = "object"
		}
	}
	if out["type"] == "object" {
		if _, ok := out["properties"]; !ok {
			out["properties"] = map[string]interface{}{}
		}
	}

	stripMetadata(out)
	return out
}

func stripMetadata(schema map[string]interface{}) {
	for _, key := range metadataKeys {
		delete(schema, key)
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		for _, prop := range props {
			if nested, ok := prop.(map[string]interface{}); ok {
				stripMetadata(nested)
			}
		}
	}

	switch items := schema["items"].(type) {
	case map[string]interface{}:
		stripMetadata(items)
	case []interface{}:
		for _, item := range items {
			if nested, ok := item.(map[string]interface{}); ok {
				stripMetadata(nested)
			}
		}
	}
}

func deepCopy(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
