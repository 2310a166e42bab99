package stores

import (
	"context"
	"errors"
	"time"

	"github.com/openfroyo/recipes/pkg/recipe"
)

var (
	// ErrNotFound is wrapped by lookups that match no row.
	ErrNotFound = errors.New("not found")

	// ErrExecutionExists is returned when an execution ID is enqueued twice.
	ErrExecutionExists = errors.New("execution already exists")

	// ErrStepInFlight is returned by ClaimNext while a step of the
	// execution is claimed but has no recorded outcome.
	ErrStepInFlight = errors.New("step still in flight")
)

// QueueEntryStatus is the state of a step_queue row.
type QueueEntryStatus string

const (
	QueueEntryPending QueueEntryStatus = "pending"
	QueueEntryClaimed QueueEntryStatus = "claimed"
)

// Setting is a site setting written by a step handler.
type Setting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	ExecutionID string `json:"execution_id,omitempty"`
}

// Store defines the persistence operations used by the execution engine.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error

	// Step queue and results
	Enqueue(ctx context.Context, executionID, recipeName string, steps []recipe.QueuedStep) error
	Dequeue(ctx context.Context, executionID string) (*recipe.QueuedStep, error)
	ClaimNext(ctx context.Context, executionID string) (*recipe.QueuedStep, error)
	RequeueStale(ctx context.Context, cutoff time.Time) (int, error)
	QueueLength(ctx context.Context, executionID string) (int, error)
	DrainQueue(ctx context.Context, executionID string) (int, error)
	CompleteStep(ctx context.Context, step *recipe.QueuedStep) error
	FailStep(ctx context.Context, step *recipe.QueuedStep, message string) (int, error)
	ListStepResults(ctx context.Context, executionID string) ([]recipe.StepResultRecord, error)

	// Executions
	GetExecution(ctx context.Context, id string) (*recipe.Execution, error)
	ListExecutions(ctx context.Context, statuses []recipe.ExecutionStatus, limit, offset int) ([]*recipe.Execution, error)
	UpdateExecutionStatus(ctx context.Context, id string, status recipe.ExecutionStatus, errMsg *string) error
	DeleteExecution(ctx context.Context, id string) error

	// Journal
	AppendJournalEntry(ctx context.Context, entry *recipe.JournalEntry) error
	ListJournalEntries(ctx context.Context, executionID string, limit, offset int) ([]*recipe.JournalEntry, error)

	// Site settings
	UpsertSetting(ctx context.Context, setting Setting) error
	GetSetting(ctx context.Context, key string) (*Setting, error)
	ListSettings(ctx context.Context) ([]Setting, error)
}
