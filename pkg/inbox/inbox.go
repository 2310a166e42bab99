// Package inbox submits recipe documents dropped into a directory.
//
// A file named "<uuid>.xml" is submitted under that execution ID, which is
// how deployment targets hand recipes over. Any other "*.xml" file gets a
// fresh execution ID. After submission a file is moved to processed/, or
// to failed/ when it cannot be submitted. Hidden files are ignored, so a
// writer can upload under a dot-name and rename into place.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/openfroyo/recipes/pkg/engine"
	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/stores"
	"github.com/openfroyo/recipes/pkg/telemetry"
)

// Subdirectories files are moved to.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Outcome labels for processed files.
const (
	resultSubmitted = "submitted"
	resultRejected  = "rejected"
	resultError     = "error"
)

// DefaultDebounce is how long a file must be quiet before it is processed.
const DefaultDebounce = 500 * time.Millisecond

// Config configures the inbox.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Dir is the watched directory.
	Dir string `yaml:"dir" validate:"required_if=Enabled true"`

	// Debounce is how long a file must be quiet before it is processed.
	Debounce time.Duration `yaml:"debounce" validate:"min=0"`

	// FilesPath is passed to submissions as the app data directory of
	// files bundled with the recipe.
	FilesPath string `yaml:"files_path"`
}

// Submitter queues recipe documents.
type Submitter interface {
	Submit(ctx context.Context, text string, opts engine.SubmitOptions) (string, error)
}

// Inbox watches a directory for recipe documents.
type Inbox struct {
	dir       string
	debounce  time.Duration
	filesPath string
	fs        afero.Fs
	submitter Submitter
	logger    zerolog.Logger
	metrics   *telemetry.Metrics

	// mu serializes file processing.
	mu sync.Mutex
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithFs replaces the OS filesystem used to read and move files.
func WithFs(fs afero.Fs) Option {
	return func(i *Inbox) { i.fs = fs }
}

// WithMetrics records processed files.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(i *Inbox) { i.metrics = m }
}

// New creates an inbox for cfg.Dir.
func New(cfg Config, submitter Submitter, logger zerolog.Logger, opts ...Option) (*Inbox, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	i := &Inbox{
		dir:       cfg.Dir,
		debounce:  debounce,
		filesPath: cfg.FilesPath,
		fs:        afero.NewOsFs(),
		submitter: submitter,
		logger:    logger.With().Str("component", "inbox").Str("dir", cfg.Dir).Logger(),
	}
	for _, opt := range opts {
		opt(i)
	}

	for _, sub := range []string{"", ProcessedDir, FailedDir} {
		if err := i.fs.MkdirAll(filepath.Join(i.dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	return i, nil
}

// isRecipeFile reports whether name should be submitted.
func isRecipeFile(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(filepath.Ext(base), ".xml")
}

// ProcessExisting submits the recipe files already in the inbox, in name
// order, and returns how many were submitted.
func (i *Inbox) ProcessExisting(ctx context.Context) (int, error) {
	entries, err := afero.ReadDir(i.fs, i.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read inbox: %w", err)
	}

	submitted := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !isRecipeFile(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return submitted, err
		}

		ok, err := i.ProcessFile(ctx, filepath.Join(i.dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			submitted++
		}
	}

	return submitted, errors.Join(errs...)
}

// ProcessFile submits one file. It returns true when the recipe was
// queued. A file that cannot be submitted is moved to failed/; an error is
// returned only when the file could not be handled at all, in which case it
// stays in the inbox.
func (i *Inbox) ProcessFile(ctx context.Context, path string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	name := filepath.Base(path)
	logger := i.logger.With().Str("file", name).Logger()

	data, err := afero.ReadFile(i.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Already handled.
			return false, nil
		}
		i.metrics.RecordInboxFile(resultError)
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}

	executionID := ""
	if id, err := uuid.Parse(strings.TrimSuffix(name, filepath.Ext(name))); err == nil {
		executionID = id.String()
	}

	id, err := i.submitter.Submit(ctx, string(data), engine.SubmitOptions{
		ExecutionID: executionID,
		FilesPath:   i.filesPath,
		Source:      "inbox",
	})

	switch {
	case err == nil:
		i.metrics.RecordInboxFile(resultSubmitted)
		logger.Info().Str("execution_id", id).Msg("Recipe submitted from inbox")
		return true, i.move(path, ProcessedDir)

	case recipe.IsParseError(err), errors.Is(err, stores.ErrExecutionExists):
		i.metrics.RecordInboxFile(resultRejected)
		logger.Warn().Err(err).Msg("Recipe rejected")
		return false, i.move(path, FailedDir)

	default:
		i.metrics.RecordInboxFile(resultError)
		return false, fmt.Errorf("failed to submit %s: %w", name, err)
	}
}

// move moves path into the sub directory, keeping existing files.
func (i *Inbox) move(path, sub string) error {
	name := filepath.Base(path)
	dest := filepath.Join(i.dir, sub, name)

	if exists, _ := afero.Exists(i.fs, dest); exists {
		ext := filepath.Ext(name)
		dest = filepath.Join(i.dir, sub,
			fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), time.Now().UnixNano(), ext))
	}

	if err := i.fs.Rename(path, dest); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", name, sub, err)
	}
	return nil
}

// Watch processes existing files and then every recipe file created or
// written in the inbox until ctx is done. Events for one file are
// debounced.
func (i *Inbox) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(i.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", i.dir, err)
	}

	i.logger.Info().Dur("debounce", i.debounce).Msg("Watching inbox")

	if _, err := i.ProcessExisting(ctx); err != nil {
		i.logger.Error().Err(err).Msg("Failed to process existing inbox files")
	}

	pending := newDebouncer(i.debounce)
	defer pending.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isRecipeFile(event.Name) {
				continue
			}

			i.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Inbox file changed")

			path := event.Name
			pending.trigger(path, func() {
				if _, err := i.ProcessFile(ctx, path); err != nil {
					i.logger.Error().Err(err).Msg("Failed to process inbox file")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// debouncer runs a function once per key after the key has been quiet for
// delay. A key is forgotten once its function has started.
type debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, timers: make(map[string]*time.Timer)}
}

// trigger schedules fn for key, replacing a call still waiting for key.
func (d *debouncer) trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok && t.Stop() {
		d.wg.Done()
	}

	var t *time.Timer
	d.wg.Add(1)
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()

		d.mu.Lock()
		if d.timers[key] == t {
			delete(d.timers, key)
		}
		d.mu.Unlock()

		fn()
	})
	d.timers[key] = t
}

// waiting returns the number of keys whose function has not started.
func (d *debouncer) waiting() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// stop cancels waiting calls and waits for running ones.
func (d *debouncer) stop() {
	d.mu.Lock()
	for key, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
