package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <execution-id>",
		Short: "Run the remaining steps of an execution",
		Long: `Execute the queued steps of an execution until it completes or a step
fails. An interrupted run leaves the execution running; run it again to
resume from the first step whose outcome was not recorded.`,
		Example: `  recipes run 0b6f7c1e-3f0a-4b8e-9a57-0d1c2e3f4a5b`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			executionID := args[0]

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info().Str("execution_id", executionID).Msg("Running recipe execution")

			runErr := a.driver.Run(ctx, executionID)

			result, err := a.manager.GetResult(ctx, executionID)
			if err != nil {
				if runErr != nil {
					return runErr
				}
				return err
			}

			if jsonOutput {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				printResult(result)
			}
			return runErr
		},
	}

	return cmd
}
