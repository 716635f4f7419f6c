package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"finpal/internal/cli"
	"finpal/internal/config"
)

var (
	configInitFormat string
	configInitForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and validate the provider configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default provider configuration",
	Long: `Writes the default FinPal providers to --config (or mcp_config.json).
API keys are written as {{ env "NAME" }} templates and resolved when the
file is loaded.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the provider configuration without starting anything",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()
	format := configInitFormat
	if !cmd.Flags().Changed("format") {
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			format = "yaml"
		}
	}

	data, err := config.Marshal(config.DefaultFile(), format)
	if err != nil {
		return err
	}

	if !configInitForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Wrote "+path))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()
	file, err := config.Load(path)
	if err != nil {
		return err
	}

	started := 0
	for _, def := range file.Definitions() {
		if def.ShouldStart() {
			started++
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
		"%s: %d providers, %d started automatically", path, len(file.MCPServers), started)))
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd)

	configInitCmd.Flags().StringVar(&configInitFormat, "format", "json", "File format: json or yaml")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
}
