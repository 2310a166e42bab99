package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "Cancel an execution",
		Long: `Discard the queued steps of an execution and mark it cancelled. A step
that is currently executing is not interrupted.`,
		Example: `  recipes cancel 0b6f7c1e-3f0a-4b8e-9a57-0d1c2e3f4a5b`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			drained, err := a.driver.Cancel(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]any{"execution_id": args[0], "drained": drained})
			}
			fmt.Printf("Cancelled %s; %d queued steps discarded\n", args[0], drained)
			return nil
		},
	}

	return cmd
}
