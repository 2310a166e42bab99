package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/openfroyo/recipes/pkg/appdata"
	"github.com/openfroyo/recipes/pkg/config"
	"github.com/openfroyo/recipes/pkg/engine"
	"github.com/openfroyo/recipes/pkg/handlers"
	"github.com/openfroyo/recipes/pkg/stores"
	"github.com/openfroyo/recipes/pkg/telemetry"
)

// app holds the components shared by the commands.
type app struct {
	cfg      *config.Config
	store    *stores.SQLiteStore
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
	files    *appdata.Folder
	manager  *engine.Manager
	executor *engine.Executor
	driver   *engine.Driver
}

// newApp loads the configuration, opens the store and wires the engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.Zerolog()

	store, err := openStore(ctx, cfg)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	// abort releases what was opened so far.
	abort := func(err error) (*app, error) {
		return nil, errors.Join(err, store.Close(), tel.Shutdown(ctx))
	}

	if err := os.MkdirAll(cfg.Media.Root, 0o755); err != nil {
		return abort(fmt.Errorf("failed to create media directory: %w", err))
	}

	files := appdata.NewFolder(cfg.AppData.Root)
	stepHandlers := []engine.StepHandler{
		handlers.NewSettingsHandler(store, tel.Logger.NewComponentLogger("settings_handler").Zerolog()),
		handlers.NewMediaHandler(afero.NewBasePathFs(afero.NewOsFs(), cfg.Media.Root), tel.Logger.NewComponentLogger("media_handler").Zerolog()),
		handlers.NewScriptHandler(store, cfg.Scripts.Timeout, tel.Logger.NewComponentLogger("script_handler").Zerolog()),
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(tel.Metrics),
		engine.WithTracer(tel.Tracer),
		engine.WithEvents(tel.Events),
		engine.WithFiles(files),
		engine.WithEventSink(engine.MultiSink{
			engine.NewJournalSink(store),
			tel.Events,
		}),
	}

	executor, err := engine.NewExecutor(store, stepHandlers, opts...)
	if err != nil {
		return abort(err)
	}
	driver, err := engine.NewDriver(executor, store, append(opts, engine.WithClaimTimeout(cfg.Scheduler.ClaimTimeout))...)
	if err != nil {
		return abort(err)
	}
	manager, err := engine.NewManager(store, opts...)
	if err != nil {
		return abort(err)
	}

	return &app{
		cfg:      cfg,
		store:    store,
		tel:      tel,
		logger:   logger,
		files:    files,
		manager:  manager,
		executor: executor,
		driver:   driver,
	}, nil
}

// openStore opens and migrates the SQLite store.
func openStore(ctx context.Context, cfg *config.Config) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(cfg.Database())
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize store: %w", err), store.Close())
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to run migrations: %w", err), store.Close())
	}
	return store, nil
}

// Close flushes telemetry and closes the store.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return errors.Join(a.tel.Shutdown(ctx), a.store.Close())
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
