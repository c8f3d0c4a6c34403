package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/variantflow/variantflow/internal/client"
	"github.com/variantflow/variantflow/internal/model"
)

var (
	expEnvironmentID string
	expStatus        string
	expKey           string
	expName          string
	expDescription   string
	expPage          int
	expPageSize      int
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Manage experiments",
}

var experimentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an experiment in DRAFT",
	RunE: func(cmd *cobra.Command, args []string) error {
		if expKey == "" || expEnvironmentID == "" {
			return fmt.Errorf("--key and --environment-id are required")
		}
		exp, err := apiClient().CreateExperiment(context.Background(), client.CreateExperimentParams{
			Key:           expKey,
			Name:          expName,
			Description:   expDescription,
			EnvironmentID: expEnvironmentID,
		})
		if err != nil {
			return fmt.Errorf("create experiment: %w", err)
		}
		return printExperiments([]model.Experiment{exp})
	},
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments",
	RunE: func(cmd *cobra.Command, args []string) error {
		experiments, meta, err := apiClient().ListExperiments(context.Background(),
			expEnvironmentID, expStatus, expPage, expPageSize)
		if err != nil {
			return fmt.Errorf("list experiments: %w", err)
		}
		if err := printExperiments(experiments); err != nil {
			return err
		}
		if format == "table" && meta.TotalPages > 1 {
			fmt.Printf("page %d of %d (%d total)\n", meta.Page, meta.TotalPages, meta.Total)
		}
		return nil
	},
}

var experimentGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one experiment with variants and allocations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exp, err := apiClient().GetExperiment(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get experiment: %w", err)
		}
		return printJSON(exp)
	},
}

func transitionCmd(use, short string, target model.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, outcome, err := apiClient().UpdateExperimentStatus(context.Background(), args[0], target)
			if err != nil {
				return fmt.Errorf("%s experiment: %w", use, err)
			}
			reportPublish(outcome)
			return printExperiments([]model.Experiment{exp})
		},
	}
}

var experimentDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an experiment and re-publish its environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := apiClient().DeleteExperiment(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("delete experiment: %w", err)
		}
		reportPublish(outcome)
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <experiment-id>",
	Short: "Compile and publish the experiment's environment snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := apiClient().Publish(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Printf("published %s version %d (%d experiments)\n",
			snap.Environment, snap.Version, len(snap.Experiments))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(experimentCmd)
	rootCmd.AddCommand(publishCmd)

	experimentCmd.AddCommand(experimentCreateCmd)
	experimentCmd.AddCommand(experimentListCmd)
	experimentCmd.AddCommand(experimentGetCmd)
	experimentCmd.AddCommand(experimentDeleteCmd)
	experimentCmd.AddCommand(transitionCmd("start", "Transition an experiment to RUNNING", model.StatusRunning))
	experimentCmd.AddCommand(transitionCmd("pause", "Transition an experiment to PAUSED", model.StatusPaused))
	experimentCmd.AddCommand(transitionCmd("archive", "Transition an experiment to ARCHIVED", model.StatusArchived))

	experimentCreateCmd.Flags().StringVar(&expKey, "key", "", "Experiment key (unique per environment)")
	experimentCreateCmd.Flags().StringVar(&expName, "name", "", "Display name")
	experimentCreateCmd.Flags().StringVar(&expDescription, "description", "", "Description")
	experimentCreateCmd.Flags().StringVar(&expEnvironmentID, "environment-id", "", "Owning environment id")

	experimentListCmd.Flags().StringVar(&expEnvironmentID, "environment-id", "", "Filter by environment id")
	experimentListCmd.Flags().StringVar(&expStatus, "status", "", "Filter by status (DRAFT, RUNNING, PAUSED, ARCHIVED)")
	experimentListCmd.Flags().IntVar(&expPage, "page", 1, "Page number")
	experimentListCmd.Flags().IntVar(&expPageSize, "page-size", 20, "Rows per page")
}
