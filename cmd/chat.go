package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"finpal/internal/agent"
	"finpal/internal/app"
	"finpal/internal/cli"
	"finpal/internal/store"
)

var (
	chatSession    string
	chatDBPath     string
	chatModel      string
	chatShowTools  bool
	chatNormalizer string
)

var chatCmd = &cobra.Command{
	Use:   "chat [MESSAGE]",
	Short: "Chat with the tool-calling agent in the terminal",
	Long: `Starts the providers and opens an interactive chat. With a MESSAGE
argument, answers it once and exits. Type exit, quit, bye or goodbye to
leave the interactive session.

Needs LLM_API_KEY or GEMINI_API_KEY.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	settings := app.SettingsFromEnv()
	if settings.APIKey == "" {
		return fmt.Errorf("no API key: set %s or %s", app.EnvAPIKey, app.EnvGeminiKey)
	}
	if cmd.Flags().Changed("model") {
		settings.Model = chatModel
	}
	if cmd.Flags().Changed("db") {
		settings.DBPath = chatDBPath
	}
	if cmd.Flags().Changed("normalizer") {
		settings.Normalizer = chatNormalizer
	}
	normalizer, err := agent.NormalizerByName(settings.Normalizer)
	if err != nil {
		return err
	}

	db, err := store.Open(settings.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	hub, _, err := startHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Shutdown()

	bot := agent.New(agent.NewClient(settings.APIKey, settings.BaseURL), hub, db, agent.Config{
		Model:      settings.Model,
		Normalizer: normalizer,
	})

	session := chatSession
	if session == "" {
		session = uuid.NewString()
	}

	if len(args) == 1 {
		reply, err := bot.Chat(cmd.Context(), session, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
		return nil
	}

	rl, err := cli.NewReadline("you> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	loop := &cli.ChatLoop{
		In:            rl,
		Out:           cmd.OutOrStdout(),
		Chat:          bot,
		SessionID:     session,
		ShowToolCalls: chatShowTools,
	}
	return loop.Run(cmd.Context())
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatSession, "session", "", "Session ID to continue (default: a new one)")
	chatCmd.Flags().StringVar(&chatDBPath, "db", "", "SQLite database for chat history (default $FINPAL_DB_PATH or finpal.db)")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Chat model (default $MODEL_CHOICE)")
	chatCmd.Flags().StringVar(&chatNormalizer, "normalizer", "", "Model response normalizer: strip-reasoning")
	chatCmd.Flags().BoolVar(&chatShowTools, "show-tools", false, "Print tool calls before each answer")
}
