package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/telemetry"
)

// Step outcome labels used in metrics.
const (
	stepStatusSuccess   = "success"
	stepStatusFailed    = "failed"
	stepStatusNoHandler = "no_handler"
)

// Executor advances recipe executions one step at a time. It holds no
// per-execution state; everything lives in the StepQueue.
type Executor struct {
	queue    StepQueue
	handlers []StepHandler
	sink     EventSink
	files    FileSource
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
}

// NewExecutor creates an executor dispatching to handlers in order. The
// handler set is fixed for the executor's lifetime.
func NewExecutor(queue StepQueue, handlers []StepHandler, opts ...Option) (*Executor, error) {
	if queue == nil {
		return nil, fmt.Errorf("step queue is required")
	}
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("step handler %d is nil", i)
		}
	}

	o := newOptions(opts)
	return &Executor{
		queue:    queue,
		handlers: append([]StepHandler(nil), handlers...),
		sink:     o.sink,
		files:    o.files,
		logger:   o.logger.With().Str("component", "executor").Logger(),
		metrics:  o.metrics,
		tracer:   o.tracer,
	}, nil
}

// ExecuteNextStep runs the next queued step of an execution. It returns
// true when a step ran successfully and false when the execution has no
// steps left. A failed step is recorded, the remaining steps are
// discarded, and an *ExecutionError is returned.
//
// If ctx is cancelled while a handler runs, no outcome is recorded and the
// step stays claimed until it is requeued. While any step of the execution
// is claimed, ErrStepInFlight is returned and nothing runs.
func (e *Executor) ExecuteNextStep(ctx context.Context, executionID string) (bool, error) {
	logger := e.logger.With().Str("execution_id", executionID).Logger()

	step, err := e.queue.ClaimNext(ctx, executionID)
	if errors.Is(err, ErrStepInFlight) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("failed to dequeue next step of execution %s: %w", executionID, err)
	}

	if step == nil {
		logger.Info().Msg("Recipe execution completed")
		e.notify(logger, "execution complete", e.sink.ExecutionComplete(ctx, executionID))
		return false, nil
	}

	logger = logger.With().
		Str("step", step.Name).
		Int("position", step.Position).
		Logger()

	if step.Attempts > 1 {
		logger.Warn().
			Int("attempt", step.Attempts).
			Msg("Re-running recipe step whose previous outcome was not recorded")
	}

	rc := &recipe.Context{
		ExecutionID: executionID,
		RecipeStep:  step.RecipeStep,
		Position:    step.Position,
	}
	if step.FilesPath != "" && e.files != nil {
		rc.Files = e.files.Files(step.FilesPath)
	}

	ctx, span := e.tracer.StartStepSpan(ctx, executionID, step.Name, step.Position, step.Attempts)
	defer span.End()
	timer := telemetry.NewTimer()

	logger.Info().Msg("Executing recipe step")
	e.notify(logger, "step executing", e.sink.RecipeStepExecuting(ctx, executionID, rc))

	handlerErr := e.dispatch(ctx, rc)

	if err := ctx.Err(); err != nil {
		logger.Warn().Err(err).Msg("Recipe step interrupted; it stays claimed until requeued")
		telemetry.RecordError(span, err)
		return false, err
	}

	if handlerErr != nil {
		execErr := &ExecutionError{
			Kind:        KindStepFailed,
			ExecutionID: executionID,
			StepName:    step.Name,
			Position:    step.Position,
			Err:         handlerErr,
		}
		return false, e.fail(ctx, logger, span, timer, step, rc, execErr, handlerErr.Error(), stepStatusFailed)
	}

	if !rc.Executed {
		execErr := &ExecutionError{
			Kind:        KindNoHandler,
			ExecutionID: executionID,
			StepName:    step.Name,
			Position:    step.Position,
		}
		return false, e.fail(ctx, logger, span, timer, step, rc, execErr, noHandlerMessage(step.Name), stepStatusNoHandler)
	}

	if err := e.queue.CompleteStep(ctx, step); err != nil {
		telemetry.RecordError(span, err)
		return false, fmt.Errorf("failed to record completion of step '%s': %w", step.Name, err)
	}

	e.metrics.RecordStepExecuted(step.Name, stepStatusSuccess, timer.Duration())
	telemetry.RecordSuccess(span)

	logger.Info().Dur("duration", timer.Duration()).Msg("Recipe step executed")
	e.notify(logger, "step executed", e.sink.RecipeStepExecuted(ctx, executionID, rc))

	return true, nil
}

// fail records a failed step, drains the queue and returns execErr. If the
// failure cannot be recorded the store error is returned instead, and the
// step stays claimed until requeued.
func (e *Executor) fail(
	ctx context.Context,
	logger zerolog.Logger,
	span trace.Span,
	timer *telemetry.Timer,
	step *recipe.QueuedStep,
	rc *recipe.Context,
	execErr *ExecutionError,
	message string,
	status string,
) error {
	drained, err := e.queue.FailStep(ctx, step, message)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to record failure of step '%s' (%s): %w", step.Name, message, err)
	}

	telemetry.RecordError(span, execErr)
	span.SetAttributes(telemetry.AttrErrorKind.String(string(execErr.Kind)))

	e.metrics.RecordStepExecuted(step.Name, status, timer.Duration())
	e.metrics.RecordStepsDrained(drained)
	e.metrics.RecordError(string(execErr.Kind))

	logger.Error().
		Str("kind", string(execErr.Kind)).
		Str("reason", message).
		Int("drained", drained).
		Msg("Recipe step failed; execution aborted")

	if fs, ok := e.sink.(StepFailureSink); ok {
		e.notify(logger, "step failed", fs.RecipeStepFailed(ctx, step.ExecutionID, rc, message))
	}

	return execErr
}

// dispatch offers rc to every handler in order. The first handler error
// stops dispatch.
func (e *Executor) dispatch(ctx context.Context, rc *recipe.Context) error {
	for _, h := range e.handlers {
		if err := invoke(ctx, h, rc); err != nil {
			return err
		}
	}
	return nil
}

// invoke calls a handler, turning a panic into an error.
func invoke(ctx context.Context, h StepHandler, rc *recipe.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step handler panicked: %v", r)
		}
	}()
	return h.ExecuteRecipeStep(ctx, rc)
}

// notify logs a sink error. Sinks never change a step's outcome.
func (e *Executor) notify(logger zerolog.Logger, event string, err error) {
	if err != nil {
		logger.Warn().Err(err).Str("event", event).Msg("Event sink failed")
	}
}
