package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/variantflow/variantflow/internal/client"
	"github.com/variantflow/variantflow/internal/model"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEnvironments(envs []model.Environment) error {
	if format == "json" {
		return printJSON(envs)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Created At"})
	for _, e := range envs {
		table.Append([]string{e.ID, e.Name, e.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	table.Render()
	return nil
}

func printExperiments(experiments []model.Experiment) error {
	if format == "json" {
		return printJSON(experiments)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Key", "Status", "Environment ID", "Variants", "Name"})
	for _, e := range experiments {
		table.Append([]string{
			e.ID, e.Key, string(e.Status), e.EnvironmentID,
			strconv.Itoa(len(e.Variants)), e.Name,
		})
	}
	table.Render()
	return nil
}

// reportPublish prints the implicit-publish outcome of a mutation to
// stderr so it never mixes with machine-readable output.
func reportPublish(outcome client.PublishOutcome) {
	if !outcome.Attempted {
		return
	}
	if outcome.Succeeded {
		fmt.Fprintln(os.Stderr, "snapshot published")
		return
	}
	fmt.Fprintf(os.Stderr, "warning: publish failed: %s\n", outcome.Error)
}
