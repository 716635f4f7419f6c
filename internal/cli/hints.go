package cli

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"

	"finpal/internal/config"
	"finpal/internal/orchestrator"
	"finpal/internal/provider"
)

// Hint returns a one-line suggestion for err, or "" when there is none.
func Hint(err error) string {
	var invocation *provider.InvocationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, config.ErrConfigNotFound):
		return "Create one with `finpal config init` or point --config at an existing file."
	case config.IsParseError(err):
		return "Check the file is valid JSON or YAML with an \"mcpServers\" object."
	case orchestrator.IsUnknownTool(err):
		return "Run `finpal tools list` to see the available tools."
	case errors.As(err, &invocation):
		return fmt.Sprintf("The %s provider rejected the call; check the arguments.", invocation.Provider)
	case errors.Is(err, provider.ErrCommandNotFound), errors.Is(err, provider.ErrModuleNotFound):
		return "Install the provider's command or fix its path in the configuration."
	case errors.Is(err, provider.ErrNotReady):
		return "The provider is not running; `finpal check` shows why."
	default:
		return ""
	}
}

// FormatError formats err with its hint for the terminal.
func FormatError(err error) string {
	msg := text.FgRed.Sprint("Error: ") + err.Error()
	if hint := Hint(err); hint != "" {
		msg += "\n" + text.FgHiBlack.Sprint(hint)
	}
	return msg
}

// FormatSuccess formats a success message.
func FormatSuccess(msg string) string {
	return text.FgGreen.Sprint("✓ ") + msg
}

// FormatWarning formats a warning message.
func FormatWarning(msg string) string {
	return text.FgYellow.Sprint("⚠ ") + msg
}
