// Command recipes submits, runs and ships recipe executions.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/recipes/cmd/recipes/commands"
)

// Set with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	initLogger(os.Getenv("RECIPES_LOG_LEVEL"))

	// The first signal stops drivers between steps; a second one kills the
	// process while a step is still running.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stop()
			log.Warn().Msg("Interrupted; stopping after the current recipe step")
		case <-done:
		}
	}()

	err := commands.Execute(ctx, Version, Commit, BuildDate)
	close(done)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("recipes failed")
		os.Exit(1)
	}
}

// initLogger sets up the console logger used until a command has loaded
// its telemetry configuration.
func initLogger(level string) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
