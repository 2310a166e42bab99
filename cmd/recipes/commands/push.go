package commands

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/openfroyo/recipes/pkg/deploy"
	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/telemetry"
)

func newPushCommand() *cobra.Command {
	var executionID string

	cmd := &cobra.Command{
		Use:   "push <target> <recipe.xml>",
		Short: "Push a recipe into a deployment target's inbox",
		Long: `Deliver a recipe to the import inbox of a configured target, where the
target's "recipes serve" submits it. The recipe is written as
"<execution-id>.xml", so the execution ID printed here is the one it runs
under. The recipe is parsed before it is pushed.`,
		Example: `  # Push to the staging target
  recipes push staging ./recipes/blog.xml

  # Push under a chosen execution ID
  recipes push --id 0b6f7c1e-3f0a-4b8e-9a57-0d1c2e3f4a5b staging ./recipes/blog.xml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			targetName, recipePath := args[0], args[1]

			if executionID == "" {
				executionID = uuid.New().String()
			}

			data, err := os.ReadFile(recipePath)
			if err != nil {
				return fmt.Errorf("failed to read recipe: %w", err)
			}
			if _, err := recipe.ParseRecipe(string(data)); err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, err := a.cfg.Target(targetName)
			if err != nil {
				return err
			}

			target, err := deploy.New(cfg, a.tel.Logger.NewComponentLogger("deploy").Zerolog())
			if err != nil {
				return err
			}
			defer target.Close()

			ctx, span := a.tel.Tracer.StartSpan(ctx, "recipe.push",
				telemetry.AttrTargetName.String(targetName),
				telemetry.AttrExecutionID.String(executionID),
			)
			defer span.End()

			if err := deploy.PushFile(ctx, target, afero.NewOsFs(), executionID, recipePath); err != nil {
				telemetry.RecordError(span, err)
				a.tel.Metrics.RecordDeployment(targetName, "error")
				return fmt.Errorf("failed to push to %s: %w", targetName, err)
			}
			telemetry.RecordSuccess(span)
			a.tel.Metrics.RecordDeployment(targetName, "success")

			if jsonOutput {
				return printJSON(map[string]string{"target": targetName, "execution_id": executionID})
			}
			fmt.Println(executionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&executionID, "id", "", "execution ID, a UUID (default: a new UUID)")

	return cmd
}
