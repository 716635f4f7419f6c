// Package cli renders finpal command output.
//
// Tool lists, provider status and tool results can be printed as a table,
// JSON or YAML. Long operations show a spinner on stderr unless quiet mode
// is on. Hint turns common errors into a short suggestion for the user.
package cli
