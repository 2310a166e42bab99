package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/recipes/pkg/recipe"
)

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecipeStepExecuting(context.Context, string, *recipe.Context) error { return nil }
func (NopSink) RecipeStepExecuted(context.Context, string, *recipe.Context) error  { return nil }
func (NopSink) ExecutionComplete(context.Context, string) error                    { return nil }

// MultiSink forwards every event to each sink in order. All sinks are
// called even when one fails.
type MultiSink []EventSink

func (m MultiSink) RecipeStepExecuting(ctx context.Context, executionID string, rc *recipe.Context) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.RecipeStepExecuting(ctx, executionID, rc))
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecipeStepExecuted(ctx context.Context, executionID string, rc *recipe.Context) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.RecipeStepExecuted(ctx, executionID, rc))
	}
	return errors.Join(errs...)
}

func (m MultiSink) ExecutionComplete(ctx context.Context, executionID string) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.ExecutionComplete(ctx, executionID))
	}
	return errors.Join(errs...)
}

// RecipeStepFailed forwards to the sinks that accept failures.
func (m MultiSink) RecipeStepFailed(ctx context.Context, executionID string, rc *recipe.Context, message string) error {
	var errs []error
	for _, sink := range m {
		if fs, ok := sink.(StepFailureSink); ok {
			errs = append(errs, fs.RecipeStepFailed(ctx, executionID, rc, message))
		}
	}
	return errors.Join(errs...)
}

// JournalSink appends step progress to the execution journal.
type JournalSink struct {
	journal JournalWriter
}

// NewJournalSink creates a sink writing to journal.
func NewJournalSink(journal JournalWriter) *JournalSink {
	return &JournalSink{journal: journal}
}

func (s *JournalSink) RecipeStepExecuting(ctx context.Context, executionID string, rc *recipe.Context) error {
	return s.appendStep(ctx, executionID, rc, recipe.JournalStepExecuting,
		fmt.Sprintf("Executing recipe step '%s'", rc.RecipeStep.Name))
}

func (s *JournalSink) RecipeStepExecuted(ctx context.Context, executionID string, rc *recipe.Context) error {
	return s.appendStep(ctx, executionID, rc, recipe.JournalStepExecuted,
		fmt.Sprintf("Executed recipe step '%s'", rc.RecipeStep.Name))
}

func (s *JournalSink) RecipeStepFailed(ctx context.Context, executionID string, rc *recipe.Context, message string) error {
	return s.appendStep(ctx, executionID, rc, recipe.JournalStepFailed, message)
}

func (s *JournalSink) ExecutionComplete(ctx context.Context, executionID string) error {
	return s.journal.AppendJournalEntry(ctx, &recipe.JournalEntry{
		ExecutionID: executionID,
		Type:        recipe.JournalExecutionComplete,
		Message:     "Recipe execution completed",
	})
}

func (s *JournalSink) appendStep(ctx context.Context, executionID string, rc *recipe.Context, typ recipe.JournalEntryType, message string) error {
	position := rc.Position
	return s.journal.AppendJournalEntry(ctx, &recipe.JournalEntry{
		ExecutionID: executionID,
		StepName:    rc.RecipeStep.Name,
		Position:    &position,
		Type:        typ,
		Message:     message,
	})
}

var (
	_ EventSink       = NopSink{}
	_ EventSink       = MultiSink(nil)
	_ StepFailureSink = MultiSink(nil)
	_ EventSink       = (*JournalSink)(nil)
	_ StepFailureSink = (*JournalSink)(nil)
)
