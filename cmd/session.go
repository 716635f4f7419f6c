package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"finpal/internal/app"
	"finpal/internal/cli"
	"finpal/internal/orchestrator"
	"finpal/internal/tools"
)

// startHub loads the provider file and starts its providers behind a
// spinner. The caller must Shutdown the returned hub.
func startHub(cmd *cobra.Command) (*app.Hub, []tools.Tool, error) {
	path := resolvedConfigPath()
	hub := app.NewHub(path, orchestrator.Options{ClientVersion: GetVersion()})
	if err := hub.Load(); err != nil {
		hub.Shutdown()
		return nil, nil, err
	}

	progress := cli.StartProgress(cmd.ErrOrStderr(), "Starting providers from "+path, quiet)
	list, err := hub.Start(cmd.Context())
	if err != nil {
		progress.Fail("Failed to start providers")
		hub.Shutdown()
		return nil, nil, err
	}
	if len(list) == 0 {
		progress.Fail("No tools available")
	} else {
		progress.Done(fmt.Sprintf("%d tools ready", len(list)))
	}
	return hub, list, nil
}

func newPrinter(cmd *cobra.Command, format string, noHeaders bool) (*cli.Printer, error) {
	f, err := cli.ParseOutputFormat(format)
	if err != nil {
		return nil, err
	}
	return cli.NewPrinter(cmd.OutOrStdout(), cli.Options{Format: f, NoHeaders: noHeaders, Quiet: quiet}), nil
}
