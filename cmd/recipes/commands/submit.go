package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/recipes/pkg/engine"
)

func newSubmitCommand() *cobra.Command {
	var (
		executionID string
		filesPath   string
		run         bool
	)

	cmd := &cobra.Command{
		Use:   "submit <recipe.xml>",
		Short: "Queue a recipe for execution",
		Long: `Parse a recipe and queue its steps under a new execution.

The execution is picked up by "recipes serve", or advanced manually with
"recipes step" and "recipes run". Files bundled with the recipe are read from
--files, a directory under the app data root; a step uses
"<files>/<position>-<step name>" when that directory exists.`,
		Example: `  # Queue a recipe and print its execution ID
  recipes submit ./recipes/blog.xml

  # Queue with a fixed ID and bundled files, then run it
  recipes submit --id 0b6f... --files packages/blog --run ./recipes/blog.xml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read recipe: %w", err)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.manager.Submit(ctx, string(data), engine.SubmitOptions{
				ExecutionID: executionID,
				FilesPath:   filesPath,
				Source:      "cli",
			})
			if err != nil {
				return err
			}

			if run {
				if err := a.driver.Run(ctx, id); err != nil {
					return err
				}
			}

			if jsonOutput {
				return printJSON(map[string]string{"execution_id": id})
			}
			fmt.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVar(&executionID, "id", "", "execution ID (default: a new UUID)")
	cmd.Flags().StringVar(&filesPath, "files", "", "app data directory holding the recipe's files")
	cmd.Flags().BoolVar(&run, "run", false, "run the execution to completion after queuing it")

	return cmd
}
