package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/variantflow/variantflow/internal/model"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage environments",
}

var envCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := apiClient().CreateEnvironment(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("create environment: %w", err)
		}
		return printEnvironments([]model.Environment{env})
	},
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List environments",
	RunE: func(cmd *cobra.Command, args []string) error {
		envs, meta, err := apiClient().ListEnvironments(context.Background(), listPage, listPageSize)
		if err != nil {
			return fmt.Errorf("list environments: %w", err)
		}
		if err := printEnvironments(envs); err != nil {
			return err
		}
		if format == "table" && meta.TotalPages > 1 {
			fmt.Printf("page %d of %d (%d total)\n", meta.Page, meta.TotalPages, meta.Total)
		}
		return nil
	},
}

var (
	listPage     int
	listPageSize int
)

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.AddCommand(envCreateCmd)
	envCmd.AddCommand(envListCmd)

	envListCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	envListCmd.Flags().IntVar(&listPageSize, "page-size", 20, "Rows per page")
}
