package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/recipes/pkg/recipe"
)

func newJournalCommand() *cobra.Command {
	var (
		limit   int
		entries bool
	)

	cmd := &cobra.Command{
		Use:   "journal <execution-id>",
		Short: "Show the results of an execution",
		Long: `Show the status and step results of an execution. With --entries the
step-by-step journal (executing, executed, failed, complete, cancelled) is
printed as well.`,
		Example: `  # Step results
  recipes journal 0b6f7c1e-3f0a-4b8e-9a57-0d1c2e3f4a5b

  # Results and the last 50 journal entries as JSON
  recipes journal --entries --limit 50 --json 0b6f7c1e-3f0a-4b8e-9a57-0d1c2e3f4a5b`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			executionID := args[0]

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			exec, err := a.store.GetExecution(ctx, executionID)
			if err != nil {
				return err
			}
			result, err := a.manager.GetResult(ctx, executionID)
			if err != nil {
				return err
			}

			var journal []*recipe.JournalEntry
			if entries {
				journal, err = a.store.ListJournalEntries(ctx, executionID, limit, 0)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				return printJSON(struct {
					Execution *recipe.Execution       `json:"execution"`
					Result    *recipe.ExecutionResult `json:"result"`
					Journal   []*recipe.JournalEntry  `json:"journal,omitempty"`
				}{exec, result, journal})
			}

			printExecution(exec)
			printResult(result)
			if entries {
				printJournal(journal)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&entries, "entries", false, "include journal entries")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of journal entries (0 for all)")

	return cmd
}
