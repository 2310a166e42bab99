package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/telemetry"
)

// StepRunner advances an execution by one step.
type StepRunner interface {
	ExecuteNextStep(ctx context.Context, executionID string) (bool, error)
}

var activeStatuses = []recipe.ExecutionStatus{
	recipe.ExecutionStatusStarted,
	recipe.ExecutionStatusRunning,
}

// Driver decides when steps run and owns the execution status. At most one
// driver may advance a given execution at a time.
type Driver struct {
	runner  StepRunner
	store   ExecutionStore
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventPublisher

	claimTimeout time.Duration
}

// NewDriver creates a driver.
func NewDriver(runner StepRunner, store ExecutionStore, opts ...Option) (*Driver, error) {
	if runner == nil {
		return nil, fmt.Errorf("step runner is required")
	}
	if store == nil {
		return nil, fmt.Errorf("execution store is required")
	}

	o := newOptions(opts)
	return &Driver{
		runner:  runner,
		store:   store,
		logger:  o.logger.With().Str("component", "driver").Logger(),
		metrics: o.metrics,
		tracer:  o.tracer,
		events:  o.events,

		claimTimeout: o.claimTimeout,
	}, nil
}

// Run executes the remaining steps of an execution until it completes or
// a step fails. When ctx is cancelled between steps Run returns ctx.Err()
// and the execution stays running, ready to be resumed.
func (d *Driver) Run(ctx context.Context, executionID string) error {
	exec, err := d.begin(ctx, executionID)
	if err != nil {
		return err
	}

	ctx, span := d.tracer.StartExecutionSpan(ctx, executionID)
	defer span.End()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		more, err := d.runner.ExecuteNextStep(ctx, executionID)
		if err != nil {
			if execErr, ok := AsExecutionError(err); ok {
				d.finish(ctx, exec, recipe.ExecutionStatusFail, execErr)
				telemetry.RecordError(span, execErr)
			}
			return err
		}

		if !more {
			d.finish(ctx, exec, recipe.ExecutionStatusSuccess, nil)
			telemetry.RecordSuccess(span)
			return nil
		}
	}
}

// Step runs the next step of one execution and records its status the way
// Run does. It returns true while steps remain.
func (d *Driver) Step(ctx context.Context, executionID string) (bool, error) {
	exec, err := d.begin(ctx, executionID)
	if err != nil {
		return false, err
	}

	more, err := d.runner.ExecuteNextStep(ctx, executionID)
	if err != nil {
		if execErr, ok := AsExecutionError(err); ok {
			d.finish(ctx, exec, recipe.ExecutionStatusFail, execErr)
		}
		return false, err
	}
	if !more {
		d.finish(ctx, exec, recipe.ExecutionStatusSuccess, nil)
	}
	return more, nil
}

// Tick runs one step of every started or running execution, oldest first,
// and returns how many steps ran. Errors other than step failures are
// collected and returned after all executions were visited.
func (d *Driver) Tick(ctx context.Context) (int, error) {
	executions, err := d.store.ListExecutions(ctx, activeStatuses, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list active executions: %w", err)
	}
	d.metrics.SetActiveExecutions(len(executions))

	var (
		ran  int
		errs []error
	)
	for i := len(executions) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return ran, err
		}

		exec := executions[i]
		if exec.Status == recipe.ExecutionStatusStarted {
			if err := d.setStatus(ctx, exec, recipe.ExecutionStatusRunning, nil); err != nil {
				errs = append(errs, err)
				continue
			}
		}

		more, err := d.runner.ExecuteNextStep(ctx, exec.ID)
		switch execErr, isExecErr := AsExecutionError(err); {
		case isExecErr:
			ran++
			d.finish(ctx, exec, recipe.ExecutionStatusFail, execErr)
		case errors.Is(err, ErrStepInFlight):
			d.logger.Debug().Str("execution_id", exec.ID).Msg("Skipping execution with a step in flight")
		case err != nil:
			errs = append(errs, err)
		case more:
			ran++
		default:
			d.finish(ctx, exec, recipe.ExecutionStatusSuccess, nil)
		}
	}

	return ran, errors.Join(errs...)
}

// Start calls Tick every interval until ctx is done.
func (d *Driver) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	d.logger.Info().Dur("interval", interval).Msg("Execution scheduler started")
	defer d.logger.Info().Msg("Execution scheduler stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ran, err := d.Tick(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("Scheduler tick failed")
		}
		if ran > 0 {
			d.logger.Debug().Int("steps", ran).Msg("Scheduler tick completed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Cancel stops an execution: its remaining steps are discarded and its
// status becomes cancelled. A step already being executed is not
// interrupted.
func (d *Driver) Cancel(ctx context.Context, executionID string) (int, error) {
	exec, err := d.store.GetExecution(ctx, executionID)
	if err != nil {
		return 0, err
	}
	if exec.Status.IsTerminal() {
		return 0, fmt.Errorf("%w: %s is %s", ErrExecutionFinished, executionID, exec.Status)
	}

	drained, err := d.store.DrainQueue(ctx, executionID)
	if err != nil {
		return 0, err
	}

	if err := d.setStatus(ctx, exec, recipe.ExecutionStatusCancelled, nil); err != nil {
		return drained, err
	}

	message := fmt.Sprintf("Recipe execution cancelled; %d queued steps discarded", drained)
	if err := d.store.AppendJournalEntry(ctx, &recipe.JournalEntry{
		ExecutionID: executionID,
		Type:        recipe.JournalExecutionCancelled,
		Message:     message,
	}); err != nil {
		d.logger.Warn().Err(err).Str("execution_id", executionID).Msg("Failed to journal cancellation")
	}

	d.metrics.RecordStepsDrained(drained)
	d.metrics.RecordExecutionCompleted(string(recipe.ExecutionStatusCancelled), time.Since(exec.StartedAt))
	d.publish(d.events.PublishExecutionCancelled(executionID, drained))

	d.logger.Info().
		Str("execution_id", executionID).
		Int("drained", drained).
		Msg("Recipe execution cancelled")

	return drained, nil
}

// Reconcile repairs state left behind by a crash. Steps claimed longer
// than the claim timeout are made pending again. A running execution with
// a failed step becomes fail; one with every step completed and nothing
// queued becomes success. It returns the number of executions repaired.
func (d *Driver) Reconcile(ctx context.Context) (int, error) {
	requeued, err := d.store.RequeueStale(ctx, time.Now().Add(-d.claimTimeout))
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		d.logger.Warn().Int("steps", requeued).Msg("Requeued steps whose claimer never recorded an outcome")
	}

	executions, err := d.store.ListExecutions(ctx, []recipe.ExecutionStatus{recipe.ExecutionStatusRunning}, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list running executions: %w", err)
	}

	repaired := 0
	for _, exec := range executions {
		steps, err := d.store.ListStepResults(ctx, exec.ID)
		if err != nil {
			return repaired, err
		}
		result := &recipe.ExecutionResult{ExecutionID: exec.ID, Steps: steps}

		if failed, ok := result.FailedStep(); ok {
			reason := &ExecutionError{
				Kind:        KindStepFailed,
				ExecutionID: exec.ID,
				StepName:    failed.StepName,
				Position:    failed.Position,
			}
			if failed.ErrorMessage != nil {
				reason.Err = errors.New(*failed.ErrorMessage)
			}
			d.finish(ctx, exec, recipe.ExecutionStatusFail, reason)
			repaired++
			continue
		}

		queued, err := d.store.QueueLength(ctx, exec.ID)
		if err != nil {
			return repaired, err
		}
		if queued == 0 && result.IsCompleted() {
			d.finish(ctx, exec, recipe.ExecutionStatusSuccess, nil)
			repaired++
		}
	}

	if repaired > 0 {
		d.logger.Info().Int("executions", repaired).Msg("Reconciled execution statuses")
	}
	return repaired, nil
}

// begin loads an execution and marks it running.
func (d *Driver) begin(ctx context.Context, executionID string) (*recipe.Execution, error) {
	exec, err := d.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrExecutionFinished, executionID, exec.Status)
	}
	if exec.Status != recipe.ExecutionStatusRunning {
		if err := d.setStatus(ctx, exec, recipe.ExecutionStatusRunning, nil); err != nil {
			return nil, err
		}
	}
	return exec, nil
}

// finish records a terminal status. Failures to do so are logged; the step
// outcome is already committed and Reconcile can repair the status.
func (d *Driver) finish(ctx context.Context, exec *recipe.Execution, status recipe.ExecutionStatus, execErr *ExecutionError) {
	var errMsg *string
	if execErr != nil {
		msg := execErr.Error()
		errMsg = &msg
	}

	logger := d.logger.With().Str("execution_id", exec.ID).Str("status", string(status)).Logger()
	trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrExecutionStatus.String(string(status)))

	if err := d.setStatus(ctx, exec, status, errMsg); err != nil {
		logger.Error().Err(err).Msg("Failed to record execution status")
		return
	}

	d.metrics.RecordExecutionCompleted(string(status), time.Since(exec.StartedAt))
	if execErr != nil {
		d.publish(d.events.PublishExecutionFailed(exec.ID, execErr.StepName, execErr.Error()))
		logger.Error().Str("reason", *errMsg).Msg("Recipe execution failed")
		return
	}
	logger.Info().Msg("Recipe execution finished")
}

func (d *Driver) setStatus(ctx context.Context, exec *recipe.Execution, status recipe.ExecutionStatus, errMsg *string) error {
	if err := d.store.UpdateExecutionStatus(ctx, exec.ID, status, errMsg); err != nil {
		return fmt.Errorf("failed to mark execution %s %s: %w", exec.ID, status, err)
	}
	exec.Status = status
	return nil
}

func (d *Driver) publish(err error) {
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to publish event")
	}
}
