package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/openfroyo/recipes/pkg/recipe"
)

var knownStatuses = []recipe.ExecutionStatus{
	recipe.ExecutionStatusStarted,
	recipe.ExecutionStatusRunning,
	recipe.ExecutionStatusSuccess,
	recipe.ExecutionStatusFail,
	recipe.ExecutionStatusCancelled,
}

func newListCommand() *cobra.Command {
	var (
		statuses []string
		limit    int
		offset   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		Long:  `List executions, newest first, optionally filtered by status.`,
		Example: `  # All executions
  recipes list

  # Executions that have not finished
  recipes list --status started --status running`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			executions, err := a.store.ListExecutions(ctx, filter, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(executions)
			}
			if len(executions) == 0 {
				fmt.Println("No executions found")
				return nil
			}
			printExecutions(executions)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status (started, running, success, fail, cancelled)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of executions (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of executions to skip")

	return cmd
}

func parseStatuses(values []string) ([]recipe.ExecutionStatus, error) {
	var out []recipe.ExecutionStatus
	for _, v := range values {
		status := recipe.ExecutionStatus(v)
		if !slices.Contains(knownStatuses, status) {
			return nil, fmt.Errorf("unknown status %q", v)
		}
		out = append(out, status)
	}
	return out, nil
}
