package engine

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/telemetry"
)

// SubmitOptions control how a recipe is queued.
type SubmitOptions struct {
	// ExecutionID is used as-is when set; otherwise a UUID is generated.
	ExecutionID string

	// FilesPath is the app data directory holding files bundled with the
	// recipe. A step uses "<FilesPath>/<position>-<step name>" when that
	// directory exists, otherwise FilesPath itself when it exists.
	FilesPath string

	// Source labels where the recipe came from (cli, inbox, ...).
	Source string
}

// Manager accepts recipe documents and reports execution results.
type Manager struct {
	parser  *recipe.Parser
	store   ExecutionStore
	files   FileSource
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// NewManager creates a manager.
func NewManager(store ExecutionStore, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("execution store is required")
	}

	o := newOptions(opts)
	return &Manager{
		parser:  recipe.NewParser(o.logger),
		store:   store,
		files:   o.files,
		logger:  o.logger.With().Str("component", "manager").Logger(),
		metrics: o.metrics,
		events:  o.events,
	}, nil
}

// Submit parses text and queues its steps under a new execution. A recipe
// that fails to parse leaves no state behind. It returns the execution ID.
func (m *Manager) Submit(ctx context.Context, text string, opts SubmitOptions) (string, error) {
	r, err := m.parser.ParseRecipe(text)
	if err != nil {
		return "", err
	}

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.New().String()
	}

	source := opts.Source
	if source == "" {
		source = "api"
	}

	steps := make([]recipe.QueuedStep, len(r.RecipeSteps))
	for i, step := range r.RecipeSteps {
		steps[i] = recipe.QueuedStep{
			RecipeStep:  step,
			ExecutionID: executionID,
			Position:    i,
			FilesPath:   m.stepFilesPath(opts.FilesPath, i, step.Name),
		}
	}

	if err := m.store.Enqueue(ctx, executionID, r.Name, steps); err != nil {
		return "", fmt.Errorf("failed to enqueue recipe: %w", err)
	}

	m.metrics.RecordExecutionSubmitted(source)
	if err := m.events.PublishExecutionSubmitted(executionID, r.Name, source, len(steps)); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to publish event")
	}

	m.logger.Info().
		Str("execution_id", executionID).
		Str("recipe", r.Name).
		Str("source", source).
		Int("steps", len(steps)).
		Msg("Recipe submitted")

	return executionID, nil
}

// stepFilesPath resolves the files directory for one step.
func (m *Manager) stepFilesPath(base string, position int, stepName string) string {
	if base == "" || m.files == nil {
		return ""
	}

	perStep := path.Join(base, fmt.Sprintf("%d-%s", position, stepName))
	if m.files.DirExists(perStep) {
		return perStep
	}
	if m.files.DirExists(base) {
		return base
	}
	return ""
}

// GetResult returns the step results of an execution in document order.
func (m *Manager) GetResult(ctx context.Context, executionID string) (*recipe.ExecutionResult, error) {
	if _, err := m.store.GetExecution(ctx, executionID); err != nil {
		return nil, err
	}

	steps, err := m.store.ListStepResults(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return &recipe.ExecutionResult{
		ExecutionID: executionID,
		Steps:       steps,
	}, nil
}
