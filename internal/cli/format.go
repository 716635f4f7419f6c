package cli

import (
	"fmt"
	"strings"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	// OutputFormatTable prints a bordered table.
	OutputFormatTable OutputFormat = "table"
	// OutputFormatJSON prints indented JSON.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML prints YAML.
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidOutputFormats lists every accepted format.
var ValidOutputFormats = []OutputFormat{OutputFormatTable, OutputFormatJSON, OutputFormatYAML}

// ParseOutputFormat validates s. An empty string means table.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputFormatTable:
		return OutputFormatTable, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	case OutputFormatYAML, "yml":
		return OutputFormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %q (valid: table, json, yaml)", s)
	}
}
