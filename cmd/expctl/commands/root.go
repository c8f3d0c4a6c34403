// Package commands implements the expctl command tree.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/variantflow/variantflow/internal/client"
)

var (
	baseURL string
	format  string
)

var rootCmd = &cobra.Command{
	Use:   "expctl",
	Short: "CLI for managing experiments on the control plane",
	Long: `expctl manages environments, experiments, variants, and allocations
through the control-plane API, and can trigger snapshot publishes.

Examples:
  expctl env create prod
  expctl experiment list --environment-id <id> --status RUNNING
  expctl experiment start <id>
  expctl publish <experiment-id>`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:8080", "Base URL of the control-plane API")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json)")
}

func apiClient() *client.Client {
	return client.New(baseURL)
}
