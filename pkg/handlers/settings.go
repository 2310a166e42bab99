package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/stores"
)

// Step names handled by this package.
const (
	SettingsStepName = "Settings"
	MediaStepName    = "Media"
	ScriptStepName   = "Script"
)

// SettingsStore persists site settings.
type SettingsStore interface {
	UpsertSetting(ctx context.Context, setting stores.Setting) error
	GetSetting(ctx context.Context, key string) (*stores.Setting, error)
}

// SettingsHandler applies Settings steps.
type SettingsHandler struct {
	store  SettingsStore
	logger zerolog.Logger
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(store SettingsStore, logger zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{
		store:  store,
		logger: logger.With().Str("handler", SettingsStepName).Logger(),
	}
}

// ExecuteRecipeStep stores every attribute of every settings part.
func (h *SettingsHandler) ExecuteRecipeStep(ctx context.Context, rc *recipe.Context) error {
	if rc.RecipeStep.Name != SettingsStepName {
		return nil
	}

	count := 0
	if step := rc.RecipeStep.Step; step != nil {
		for _, part := range step.ChildElements() {
			for _, attr := range part.Attr {
				setting := stores.Setting{
					Key:         SettingKey(part.Tag, attr.Key),
					Value:       attr.Value,
					ExecutionID: rc.ExecutionID,
				}
				if err := h.store.UpsertSetting(ctx, setting); err != nil {
					return fmt.Errorf("failed to apply setting %s: %w", setting.Key, err)
				}
				count++
			}
		}
	}

	h.logger.Debug().
		Str("execution_id", rc.ExecutionID).
		Int("settings", count).
		Msg("Settings applied")

	rc.Executed = true
	return nil
}

// SettingKey returns the site setting key for a part attribute.
func SettingKey(part, attr string) string {
	return part + "." + attr
}
