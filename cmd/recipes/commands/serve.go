package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/recipes/pkg/inbox"
	"github.com/openfroyo/recipes/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	var (
		watchEvents bool
		eventLevel  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, import inbox and metrics endpoint",
		Long: `Run the long-lived engine until interrupted.

On start the status of executions interrupted by a crash is repaired. Then:
  - the scheduler advances every active execution one step per tick
  - the import inbox submits recipes pushed into its directory
  - the metrics endpoint serves Prometheus metrics
Each part can be disabled in the configuration file.`,
		Example: `  # Serve with recipes.yaml
  recipes serve

  # Also print engine events as JSON lines
  recipes serve --events --event-level warning`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if watchEvents {
				a.tel.Events.Subscribe(printEvent, telemetry.FilterByLevel(eventLevel))
			}

			if _, err := a.driver.Reconcile(ctx); err != nil {
				return fmt.Errorf("failed to reconcile executions: %w", err)
			}

			if !a.cfg.Scheduler.Enabled && !a.cfg.Inbox.Enabled && a.tel.Metrics.Server() == nil {
				return errors.New("nothing to serve: every component is disabled in the configuration")
			}

			g, ctx := errgroup.WithContext(ctx)

			if a.cfg.Scheduler.Enabled {
				g.Go(func() error {
					a.driver.Start(ctx, a.cfg.Scheduler.Interval)
					return nil
				})
			}

			if a.cfg.Inbox.Enabled {
				in, err := inbox.New(a.cfg.Inbox, a.manager, a.logger, inbox.WithMetrics(a.tel.Metrics))
				if err != nil {
					return err
				}
				g.Go(func() error {
					return in.Watch(ctx)
				})
			}

			if srv := a.tel.Metrics.Server(); srv != nil {
				g.Go(func() error {
					a.logger.Info().Str("address", srv.Addr).Msg("Serving metrics")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics server failed: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			a.logger.Info().
				Bool("scheduler", a.cfg.Scheduler.Enabled).
				Bool("inbox", a.cfg.Inbox.Enabled).
				Msg("Recipe engine started")

			err = g.Wait()
			a.logger.Info().Msg("Recipe engine stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&watchEvents, "events", false, "print engine events to stdout as JSON lines")
	cmd.Flags().StringVar(&eventLevel, "event-level", telemetry.EventLevelInfo, "minimum event level to print (info, warning, error)")

	return cmd
}

func printEvent(event telemetry.Event) {
	_ = json.NewEncoder(os.Stdout).Encode(event)
}
