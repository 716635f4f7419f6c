package cmd

import (
	"github.com/spf13/cobra"

	"finpal/internal/app"
	"finpal/pkg/logging"
)

var (
	serveAddr       string
	serveDBPath     string
	serveModel      string
	serveBaseURL    string
	serveNormalizer string
	serveWatch      bool
	serveLazy       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the providers and the FinPal HTTP API",
	Long: `Starts every essential and autostart provider, then serves:

  GET  /api/health        liveness and provider summary
  POST /api/connect       start providers (when --lazy is set)
  GET  /api/tools         aggregated tool list
  POST /api/tools/call    invoke a tool by name
  POST /api/chat          chat with the tool-calling agent
  GET  /api/providers     per-provider status
  POST /api/receipts      store a receipt document
  /mcp                    the aggregated tools as an MCP server

Chat needs LLM_API_KEY or GEMINI_API_KEY. Flags override the FINPAL_*
environment variables. With --watch, providers are reloaded when the
configuration file changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("log-level") {
		logLevel = "info"
		if err := initLogging(cmd, args); err != nil {
			return err
		}
	}

	settings := serveSettings(cmd)
	application, err := app.New(settings)
	if err != nil {
		return err
	}
	logging.Info("Serve", "Using providers from %s", settings.ConfigPath)
	return application.Run(cmd.Context())
}

// serveSettings merges flags that were set over the environment.
func serveSettings(cmd *cobra.Command) app.Settings {
	s := app.SettingsFromEnv()
	s.ConfigPath = resolvedConfigPath()
	s.Version = GetVersion()

	flags := cmd.Flags()
	if flags.Changed("addr") {
		s.Addr = serveAddr
	}
	if flags.Changed("db") {
		s.DBPath = serveDBPath
	}
	if flags.Changed("model") {
		s.Model = serveModel
	}
	if flags.Changed("base-url") {
		s.BaseURL = serveBaseURL
	}
	if flags.Changed("normalizer") {
		s.Normalizer = serveNormalizer
	}
	if flags.Changed("lazy") {
		s.LazyConnect = serveLazy
	}
	s.Watch = serveWatch
	return s
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default $FINPAL_ADDR or 127.0.0.1:8000)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite database for receipts and chat history (default $FINPAL_DB_PATH or finpal.db)")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "Chat model (default $MODEL_CHOICE)")
	serveCmd.Flags().StringVar(&serveBaseURL, "base-url", "", "OpenAI-compatible API base URL (default $LLM_BASE_URL)")
	serveCmd.Flags().StringVar(&serveNormalizer, "normalizer", "", "Model response normalizer: strip-reasoning")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload providers when the configuration file changes")
	serveCmd.Flags().BoolVar(&serveLazy, "lazy", false, "Start providers on the first /api/connect instead of at startup")
}
