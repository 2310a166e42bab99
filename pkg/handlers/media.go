package handlers

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/openfroyo/recipes/pkg/recipe"
)

// MediaHandler applies Media steps by copying bundled files into a media
// filesystem.
type MediaHandler struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// NewMediaHandler creates a media handler writing into fs.
func NewMediaHandler(fs afero.Fs, logger zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		fs:     fs,
		logger: logger.With().Str("handler", MediaStepName).Logger(),
	}
}

// ExecuteRecipeStep copies each file of the step to <Folder>/<file path>.
func (h *MediaHandler) ExecuteRecipeStep(ctx context.Context, rc *recipe.Context) error {
	if rc.RecipeStep.Name != MediaStepName {
		return nil
	}

	folder := ""
	if step := rc.RecipeStep.Step; step != nil {
		folder = step.SelectAttrValue("Folder", "")
	}

	logger := h.logger.With().Str("execution_id", rc.ExecutionID).Logger()

	if rc.Files == nil {
		logger.Warn().Msg("Media step has no files")
		rc.Executed = true
		return nil
	}

	count := 0
	for file, err := range rc.Files {
		if err != nil {
			return fmt.Errorf("failed to list media files: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		dest, err := mediaPath(folder, file.Path)
		if err != nil {
			return err
		}
		if err := h.copy(file, dest); err != nil {
			return err
		}
		count++
	}

	logger.Info().Str("folder", folder).Int("files", count).Msg("Media imported")

	rc.Executed = true
	return nil
}

func (h *MediaHandler) copy(file recipe.FileToImport, dest string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open media file %s: %w", file.Path, err)
	}
	defer src.Close()

	if err := h.fs.MkdirAll(path.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create media folder for %s: %w", dest, err)
	}
	if err := afero.WriteReader(h.fs, dest, src); err != nil {
		return fmt.Errorf("failed to write media file %s: %w", dest, err)
	}
	return nil
}

// mediaPath joins folder and name below the media root, rejecting names
// that would escape it.
func mediaPath(folder, name string) (string, error) {
	rel := path.Join(strings.ReplaceAll(folder, "\\", "/"), strings.ReplaceAll(name, "\\", "/"))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("media path %q escapes the media folder", path.Join(folder, name))
	}
	return "/" + rel, nil
}
