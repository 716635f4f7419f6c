package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"finpal/internal/testing/mock"
)

var mockProviderConfig string

// mockProviderCmd serves canned tools over stdio, for trying finpal without
// real providers installed.
var mockProviderCmd = &cobra.Command{
	Use:    "mock-provider",
	Short:  "Serve tools from a mock definition over stdio",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := mock.NewServerFromFile(mockProviderConfig)
		if err != nil {
			return err
		}
		return srv.Serve(cmd.Context(), os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(mockProviderCmd)
	mockProviderCmd.Flags().StringVar(&mockProviderConfig, "config-file", "", "Mock provider definition (YAML)")
	_ = mockProviderCmd.MarkFlagRequired("config-file")
}
