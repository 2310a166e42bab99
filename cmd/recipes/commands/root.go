package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recipes",
		Short: "Recipes - step-by-step recipe execution engine",
		Long: `Recipes parses recipe documents into ordered steps, queues them durably
and executes them one at a time through a set of step handlers.

Features:
  - Durable SQLite step queue and result journal
  - Abort-on-failure execution with resumable runs
  - Built-in Settings, Media and Script (Starlark) steps
  - Import inbox watched for pushed recipes
  - Local and SFTP deployment targets`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default recipes.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newSubmitCommand())
	rootCmd.AddCommand(newStepCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newJournalCommand())
	rootCmd.AddCommand(newCancelCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newPushCommand())

	return rootCmd
}
