package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/variantflow/variantflow/internal/client"
)

var (
	variantKey     string
	variantName    string
	variantPayload string
)

var variantCmd = &cobra.Command{
	Use:   "variant",
	Short: "Manage experiment variants",
}

var variantCreateCmd = &cobra.Command{
	Use:   "create <experiment-id>",
	Short: "Create a variant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if variantKey == "" {
			return fmt.Errorf("--key is required")
		}
		var payload map[string]any
		if variantPayload != "" {
			if err := json.Unmarshal([]byte(variantPayload), &payload); err != nil {
				return fmt.Errorf("--payload must be a JSON object: %w", err)
			}
		}

		v, outcome, err := apiClient().CreateVariant(context.Background(), args[0], client.CreateVariantParams{
			Key:     variantKey,
			Name:    variantName,
			Payload: payload,
		})
		if err != nil {
			return fmt.Errorf("create variant: %w", err)
		}
		reportPublish(outcome)
		return printJSON(v)
	},
}

var allocateCmd = &cobra.Command{
	Use:   "allocate <experiment-id> <variantId:start:end>...",
	Short: "Replace the experiment's full allocation set",
	Long: `Replace the experiment's allocations. Each range is variantId:start:end
over the 0..9999 bucket space; buckets not covered by any range are a
holdout.

Example:
  expctl allocate <id> v-control:0:4999 v-treatment:5000:9999`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ranges := make([]client.AllocationRange, 0, len(args)-1)
		for _, raw := range args[1:] {
			parts := strings.Split(raw, ":")
			if len(parts) != 3 {
				return fmt.Errorf("range %q must be variantId:start:end", raw)
			}
			start, err := strconv.Atoi(parts[1])
			if err != nil {
				return fmt.Errorf("range %q: bad start: %w", raw, err)
			}
			end, err := strconv.Atoi(parts[2])
			if err != nil {
				return fmt.Errorf("range %q: bad end: %w", raw, err)
			}
			ranges = append(ranges, client.AllocationRange{
				VariantID:  parts[0],
				RangeStart: start,
				RangeEnd:   end,
			})
		}

		allocations, outcome, err := apiClient().ReplaceAllocations(context.Background(), args[0], ranges)
		if err != nil {
			return fmt.Errorf("replace allocations: %w", err)
		}
		reportPublish(outcome)
		return printJSON(allocations)
	},
}

func init() {
	rootCmd.AddCommand(variantCmd)
	rootCmd.AddCommand(allocateCmd)

	variantCmd.AddCommand(variantCreateCmd)
	variantCreateCmd.Flags().StringVar(&variantKey, "key", "", "Variant key (unique per experiment)")
	variantCreateCmd.Flags().StringVar(&variantName, "name", "", "Display name")
	variantCreateCmd.Flags().StringVar(&variantPayload, "payload", "", "JSON object payload")
}
