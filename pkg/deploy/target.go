package deploy

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Target types.
const (
	TypeLocal = "local"
	TypeSFTP  = "sftp"
)

// Target receives recipe documents.
type Target interface {
	// Name identifies the target in configuration and metrics.
	Name() string

	// Push delivers a recipe to be executed under executionID.
	Push(ctx context.Context, executionID string, recipe io.Reader) error

	Close() error
}

// TargetConfig configures a deployment target.
type TargetConfig struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required,oneof=local sftp"`

	// Path is the destination inbox directory.
	Path string `yaml:"path" validate:"required"`

	// SSH configures the connection of an sftp target.
	SSH *SSHConfig `yaml:"ssh" validate:"required_if=Type sftp"`
}

// New creates the target described by cfg.
func New(cfg TargetConfig, logger zerolog.Logger) (Target, error) {
	switch cfg.Type {
	case TypeLocal:
		return NewLocalTarget(cfg.Name, afero.NewOsFs(), cfg.Path, logger), nil
	case TypeSFTP:
		if cfg.SSH == nil {
			return nil, fmt.Errorf("target %s: ssh configuration is required", cfg.Name)
		}
		return NewSFTPTarget(cfg.Name, *cfg.SSH, cfg.Path, logger)
	default:
		return nil, fmt.Errorf("target %s: unsupported type %q", cfg.Name, cfg.Type)
	}
}

// PushFile pushes the recipe at recipePath in fsys.
func PushFile(ctx context.Context, target Target, fsys afero.Fs, executionID, recipePath string) error {
	f, err := fsys.Open(recipePath)
	if err != nil {
		return fmt.Errorf("failed to open recipe: %w", err)
	}
	defer f.Close()

	return target.Push(ctx, executionID, f)
}

// inboxNames returns the temporary and final file names for a push.
func inboxNames(dir, executionID string) (tmp string, final string, err error) {
	if _, err := uuid.Parse(executionID); err != nil {
		return "", "", fmt.Errorf("execution id %q is not a UUID: %w", executionID, err)
	}
	final = path.Join(dir, executionID+".xml")
	tmp = path.Join(dir, "."+executionID+".xml.tmp")
	return tmp, final, nil
}

// copyWithContext copies src to dst, checking ctx between chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
