package engine

import (
	"context"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/stores"
	"github.com/openfroyo/recipes/pkg/telemetry"
)

// StepHandler applies recipe steps. A handler sets rc.Executed when it
// applied the step and returns an error when applying it failed. Steps it
// does not recognize are left alone.
type StepHandler interface {
	ExecuteRecipeStep(ctx context.Context, rc *recipe.Context) error
}

// HandlerFunc adapts a function to StepHandler.
type HandlerFunc func(ctx context.Context, rc *recipe.Context) error

// ExecuteRecipeStep calls f.
func (f HandlerFunc) ExecuteRecipeStep(ctx context.Context, rc *recipe.Context) error {
	return f(ctx, rc)
}

// EventSink receives step progress notifications.
type EventSink interface {
	RecipeStepExecuting(ctx context.Context, executionID string, rc *recipe.Context) error
	RecipeStepExecuted(ctx context.Context, executionID string, rc *recipe.Context) error
	ExecutionComplete(ctx context.Context, executionID string) error
}

// StepFailureSink is implemented by sinks that also want step failures.
type StepFailureSink interface {
	RecipeStepFailed(ctx context.Context, executionID string, rc *recipe.Context, message string) error
}

// StepQueue is the persistence the Executor needs.
type StepQueue interface {
	ClaimNext(ctx context.Context, executionID string) (*recipe.QueuedStep, error)
	CompleteStep(ctx context.Context, step *recipe.QueuedStep) error
	FailStep(ctx context.Context, step *recipe.QueuedStep, message string) (int, error)
}

// ExecutionStore is the persistence the Driver and Manager need.
type ExecutionStore interface {
	Enqueue(ctx context.Context, executionID, recipeName string, steps []recipe.QueuedStep) error
	QueueLength(ctx context.Context, executionID string) (int, error)
	DrainQueue(ctx context.Context, executionID string) (int, error)
	RequeueStale(ctx context.Context, cutoff time.Time) (int, error)
	ListStepResults(ctx context.Context, executionID string) ([]recipe.StepResultRecord, error)
	GetExecution(ctx context.Context, id string) (*recipe.Execution, error)
	ListExecutions(ctx context.Context, statuses []recipe.ExecutionStatus, limit, offset int) ([]*recipe.Execution, error)
	UpdateExecutionStatus(ctx context.Context, id string, status recipe.ExecutionStatus, errMsg *string) error
	JournalWriter
}

// JournalWriter appends journal entries.
type JournalWriter interface {
	AppendJournalEntry(ctx context.Context, entry *recipe.JournalEntry) error
}

// FileSource enumerates the files bundled with a step.
type FileSource interface {
	Files(dir string) iter.Seq2[recipe.FileToImport, error]
	DirExists(dir string) bool
}

var (
	_ StepQueue      = (*stores.SQLiteStore)(nil)
	_ ExecutionStore = (*stores.SQLiteStore)(nil)
	_ EventSink      = (*telemetry.EventPublisher)(nil)
)

// Option configures an Executor, Driver or Manager. Each ignores options
// it has no use for.
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventPublisher
	sink    EventSink
	files   FileSource

	claimTimeout time.Duration
}

func newOptions(opts []Option) options {
	o := options{
		logger:       zerolog.Nop(),
		sink:         NopSink{},
		claimTimeout: DefaultClaimTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer records a span per step and per driver run.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithEvents publishes submission, failure and cancel events.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(o *options) { o.events = ep }
}

// WithEventSink sets the Executor's event sink.
func WithEventSink(sink EventSink) Option {
	return func(o *options) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithFiles sets where bundled step files are read from.
func WithFiles(files FileSource) Option {
	return func(o *options) { o.files = files }
}

// DefaultClaimTimeout is how long a step may stay claimed before Reconcile
// makes it pending again.
const DefaultClaimTimeout = 10 * time.Minute

// WithClaimTimeout sets how long a step may stay claimed before the
// Driver's Reconcile requeues it. Non-positive values are ignored.
func WithClaimTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.claimTimeout = d
		}
	}
}
