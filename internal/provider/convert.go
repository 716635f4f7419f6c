package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"finpal/internal/tools"
)

// descriptorFromMCP converts a published tool into a raw descriptor. The
// schema is taken verbatim; sanitizing is the adapter's job.
func descriptorFromMCP(t mcp.Tool) (tools.Descriptor, error) {
	schema, err := schemaFromMCP(t)
	if err != nil {
		return tools.Descriptor{}, err
	}
	return tools.Descriptor{
		Name:        t.Name,
		Description: t.Description,
		Schema:      schema,
	}, nil
}

func schemaFromMCP(t mcp.Tool) (map[string]interface{}, error) {
	var raw []byte
	if len(t.RawInputSchema) > 0 {
		raw = t.RawInputSchema
	} else {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("encode input schema of %s: %w", t.Name, err)
		}
		raw = data
	}

	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode input schema of %s: %w", t.Name, err)
	}
	return schema, nil
}

// resultFromMCP flattens call content into the canonical text form.
func resultFromMCP(res *mcp.CallToolResult) *tools.Result {
	return &tools.Result{
		Text:       contentText(res.Content),
		Structured: res.StructuredContent,
	}
}

func contentText(contents []mcp.Content) string {
	parts := make([]string, 0, len(contents))
	for _, content := range contents {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
			continue
		}
		if image, ok := mcp.AsImageContent(content); ok {
			parts = append(parts, fmt.Sprintf("[image %s]", image.MIMEType))
			continue
		}
		data, err := json.Marshal(content)
		if err != nil {
			parts = append(parts, fmt.Sprintf("%v", content))
			continue
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n")
}
