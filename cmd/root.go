package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"finpal/internal/cli"
	"finpal/internal/config"
	"finpal/internal/orchestrator"
	"finpal/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeConfig indicates a missing, malformed or invalid provider file.
	ExitCodeConfig = 2
	// ExitCodeUnknownTool indicates a call to a tool no provider exposes.
	ExitCodeUnknownTool = 3
)

var (
	configPath string
	logLevel   string
	logFormat  string
	quiet      bool
)

// rootCmd is the base command when finpal is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "finpal",
	Short: "Run and query FinPal's tool providers and chat agent",
	Long: `finpal starts the MCP tool providers listed in a configuration file,
aggregates their tools, and exposes them over HTTP together with a
tool-calling chat agent for the FinPal receipt tracking app.

Providers are read from --config, then $MCP_CONFIG_PATH, then
./mcp_config.json.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initLogging,
}

// SetVersion sets the version reported by `finpal version` and --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code derived from the
// error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "finpal version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err))
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps errors to exit codes for scripting.
func getExitCode(err error) int {
	var validation config.ValidationErrors
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, config.ErrConfigNotFound), config.IsParseError(err), errors.As(err, &validation):
		return ExitCodeConfig
	case orchestrator.IsUnknownTool(err):
		return ExitCodeUnknownTool
	default:
		return ExitCodeError
	}
}

func initLogging(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	format := logging.Format(logFormat)
	if format != logging.FormatText && format != logging.FormatJSON {
		return fmt.Errorf("unknown log format %q (valid: text, json)", logFormat)
	}
	logging.Init(logging.Config{Level: level, Format: format, Output: cmd.ErrOrStderr()})
	return nil
}

func resolvedConfigPath() string {
	return config.ResolvePath(configPath)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Provider configuration file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	rootCmd.AddCommand(newVersionCmd())
}
