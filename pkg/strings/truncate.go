// Package strings holds small text helpers shared by the CLI and the agent.
package strings

import (
	"strings"
)

// DescriptionWidth is the width tool descriptions are cut to in tables.
const DescriptionWidth = 80

// PreviewWidth bounds tool results quoted in log lines.
const PreviewWidth = 120

const ellipsis = "..."

// OneLine collapses every run of whitespace, newlines included, into a
// single space.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate returns OneLine(s) cut to at most width runes, ending in "..."
// when something was dropped. Widths below 4 are treated as 4.
func Truncate(s string, width int) string {
	if width < len(ellipsis)+1 {
		width = len(ellipsis) + 1
	}
	s = OneLine(s)
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-len(ellipsis)]) + ellipsis
}
