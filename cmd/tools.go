package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	toolsOutput    string
	toolsNoHeaders bool
	toolsProviders bool
	toolsArgsJSON  string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List and call aggregated tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Start the providers and list their tools",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call NAME [key=value...]",
	Short: "Call a tool by name",
	Long: `Starts the providers, calls one tool and prints its result.

Arguments are given either as a JSON object with --args or as key=value
pairs. Values that parse as JSON keep their type, anything else is a
string:

  finpal tools call save_receipt merchant=Migros total=42.5
  finpal tools call search --args '{"query": "coffee"}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runToolsCall,
}

func runToolsList(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(cmd, toolsOutput, toolsNoHeaders)
	if err != nil {
		return err
	}

	hub, list, err := startHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Shutdown()

	if toolsProviders {
		return printer.Providers(hub.Providers())
	}
	return printer.Tools(list)
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(cmd, toolsOutput, false)
	if err != nil {
		return err
	}
	toolArgs, err := parseToolArgs(toolsArgsJSON, args[1:])
	if err != nil {
		return err
	}

	hub, _, err := startHub(cmd)
	if err != nil {
		return err
	}
	defer hub.Shutdown()

	res, err := hub.Invoke(cmd.Context(), args[0], toolArgs)
	if err != nil {
		return err
	}
	return printer.Result(res)
}

// parseToolArgs merges a JSON object and key=value pairs. Pairs win.
func parseToolArgs(raw string, pairs []string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("--args must be a JSON object: %w", err)
		}
		if out == nil {
			out = map[string]interface{}{}
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			out[key] = decoded
		} else {
			out[key] = value
		}
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd, toolsCallCmd)

	toolsCmd.PersistentFlags().StringVarP(&toolsOutput, "output", "o", "table", "Output format: table, json, yaml")
	toolsListCmd.Flags().BoolVar(&toolsNoHeaders, "no-headers", false, "Omit table headers")
	toolsListCmd.Flags().BoolVar(&toolsProviders, "providers", false, "List providers and their status instead of tools")
	toolsCallCmd.Flags().StringVar(&toolsArgsJSON, "args", "", "Tool arguments as a JSON object")
}
