package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"finpal/internal/cli"
	"finpal/internal/orchestrator"
)

var errNoTools = errors.New("no provider started successfully")

var checkOutput string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Start every selected provider once and report how it went",
	Long: `Loads the configuration, starts the essential and autostart providers,
prints one row per provider and shuts everything down again. It fails when
no tools are available.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(cmd, checkOutput, false)
	if err != nil {
		return err
	}

	hub, list, err := startHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Shutdown()

	statuses := hub.Providers()
	if err := printer.Providers(statuses); err != nil {
		return err
	}

	if printer.Format() == cli.OutputFormatTable && !quiet {
		failed := 0
		for _, status := range statuses {
			if status.Outcome == orchestrator.OutcomeFailed {
				failed++
			}
		}
		if failed > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("%d provider(s) failed", failed)))
		}
	}
	if len(list) == 0 {
		return errNoTools
	}
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "table", "Output format: table, json, yaml")
}
