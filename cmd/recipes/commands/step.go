package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step <execution-id>",
		Short: "Execute the next step of an execution",
		Long: `Execute exactly one queued step of an execution.

Prints "more" while steps remain and "complete" once the queue is empty. A
failed step aborts the execution and discards its remaining steps.`,
		Example: `  recipes step 0b6f7c1e-3f0a-4b8e-9a57-0d1c2e3f4a5b`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			more, err := a.driver.Step(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]any{"execution_id": args[0], "more": more})
			}
			if more {
				fmt.Println("more")
			} else {
				fmt.Println("complete")
			}
			return nil
		},
	}

	return cmd
}
