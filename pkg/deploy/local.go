package deploy

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// LocalTarget writes recipes into an inbox directory on a filesystem.
type LocalTarget struct {
	name   string
	fs     afero.Fs
	dir    string
	logger zerolog.Logger
}

// NewLocalTarget creates a target writing into dir on fs.
func NewLocalTarget(name string, fs afero.Fs, dir string, logger zerolog.Logger) *LocalTarget {
	return &LocalTarget{
		name:   name,
		fs:     fs,
		dir:    dir,
		logger: logger.With().Str("target", name).Logger(),
	}
}

// Name returns the target name.
func (t *LocalTarget) Name() string {
	return t.name
}

// Push writes the recipe as <executionID>.xml.
func (t *LocalTarget) Push(ctx context.Context, executionID string, recipe io.Reader) error {
	tmp, final, err := inboxNames(t.dir, executionID)
	if err != nil {
		return err
	}

	if exists, err := afero.Exists(t.fs, final); err != nil {
		return fmt.Errorf("failed to check %s: %w", final, err)
	} else if exists {
		return fmt.Errorf("execution %s was already pushed to %s", executionID, t.name)
	}

	if err := t.fs.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox %s: %w", t.dir, err)
	}

	f, err := t.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	written, err := copyWithContext(ctx, f, recipe)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = t.fs.Remove(tmp)
		return fmt.Errorf("failed to write recipe: %w", err)
	}

	if err := t.fs.Rename(tmp, final); err != nil {
		_ = t.fs.Remove(tmp)
		return fmt.Errorf("failed to move recipe into inbox: %w", err)
	}

	t.logger.Info().
		Str("execution_id", executionID).
		Str("path", final).
		Int64("bytes", written).
		Msg("Recipe pushed")

	return nil
}

// Close is a no-op.
func (t *LocalTarget) Close() error {
	return nil
}
