package recipe

import (
	"io"
	"iter"
	"time"

	"github.com/beevik/etree"
)

// Recipe is a parsed recipe document: descriptive metadata plus ordered steps.
type Recipe struct {
	Name          string     `json:"name,omitempty"`
	Description   string     `json:"description,omitempty"`
	Author        string     `json:"author,omitempty"`
	WebSite       string     `json:"website,omitempty"`
	Version       string     `json:"version,omitempty"`
	Category      string     `json:"category,omitempty"`
	Tags          string     `json:"tags,omitempty"`
	IsSetupRecipe bool       `json:"is_setup_recipe"`
	ExportUtc     *time.Time `json:"export_utc,omitempty"`

	// RecipeSteps are in document order.
	RecipeSteps []RecipeStep `json:"steps"`
}

// StepNames returns the names of the recipe's steps in order.
func (r *Recipe) StepNames() []string {
	names := make([]string, 0, len(r.RecipeSteps))
	for _, s := range r.RecipeSteps {
		names = append(names, s.Name)
	}
	return names
}

// RecipeStep is one named unit of work within a recipe.
type RecipeStep struct {
	// Name is the step kind, taken from the element's local tag name.
	Name string `json:"name"`

	// Step is the raw step element. Only handlers interpret it.
	Step *etree.Element `json:"-"`
}

// QueuedStep is a recipe step waiting in an execution's queue.
type QueuedStep struct {
	RecipeStep

	// ExecutionID scopes the queue entry to one run of one recipe.
	ExecutionID string `json:"execution_id"`

	// Position is the step's index in the recipe document.
	Position int `json:"position"`

	// FilesPath locates files bundled with this step, relative to the app data root.
	FilesPath string `json:"files_path,omitempty"`

	// Attempts counts how many times the entry has been claimed by Dequeue.
	Attempts int `json:"attempts"`
}

// StepResultRecord is the persisted outcome of one queued step.
type StepResultRecord struct {
	ExecutionID  string     `json:"execution_id"`
	StepName     string     `json:"step_name"`
	Position     int        `json:"position"`
	IsCompleted  bool       `json:"is_completed"`
	IsSuccessful bool       `json:"is_successful"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// ExecutionResult is the journal view of an execution's step results.
type ExecutionResult struct {
	ExecutionID string             `json:"execution_id"`
	Steps       []StepResultRecord `json:"steps"`
}

// IsCompleted reports whether every step has a completed result.
func (r *ExecutionResult) IsCompleted() bool {
	for _, s := range r.Steps {
		if !s.IsCompleted {
			return false
		}
	}
	return true
}

// IsSuccessful reports whether every step completed successfully.
func (r *ExecutionResult) IsSuccessful() bool {
	for _, s := range r.Steps {
		if !s.IsCompleted || !s.IsSuccessful {
			return false
		}
	}
	return true
}

// FailedStep returns the first step marked failed, if any.
func (r *ExecutionResult) FailedStep() (StepResultRecord, bool) {
	for _, s := range r.Steps {
		if s.IsCompleted && !s.IsSuccessful {
			return s, true
		}
	}
	return StepResultRecord{}, false
}

// FileToImport is a file bundled with a step. The file is only opened when
// Open is called.
type FileToImport struct {
	// Path is relative to the step's files path and uses forward slashes.
	Path string

	// Open returns a reader for the file contents.
	Open func() (io.ReadCloser, error)
}

// Context is the per-step state handed to every step handler.
type Context struct {
	ExecutionID string
	RecipeStep  RecipeStep

	// Position is the step's index in the recipe document.
	Position int

	// Files is nil when the step has no files path. Iterating it again
	// re-enumerates the directory. A listing failure is yielded as a
	// non-nil error, after which iteration stops.
	Files iter.Seq2[FileToImport, error]

	// Executed must be set by a handler that applied the step.
	Executed bool
}

// ExecutionStatus is the operator-visible status of an execution.
type ExecutionStatus string

const (
	ExecutionStatusStarted   ExecutionStatus = "started"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSuccess   ExecutionStatus = "success"
	ExecutionStatusFail      ExecutionStatus = "fail"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal returns true when no further steps will run.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFail || s == ExecutionStatusCancelled
}

// Execution tracks one run of one recipe.
type Execution struct {
	ID          string          `json:"id"`
	RecipeName  string          `json:"recipe_name"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// JournalEntryType classifies journal entries.
type JournalEntryType string

const (
	JournalStepExecuting      JournalEntryType = "step.executing"
	JournalStepExecuted       JournalEntryType = "step.executed"
	JournalStepFailed         JournalEntryType = "step.failed"
	JournalExecutionComplete  JournalEntryType = "execution.complete"
	JournalExecutionCancelled JournalEntryType = "execution.cancelled"
)

// JournalEntry is an append-only audit record for an execution.
type JournalEntry struct {
	ID          int64            `json:"id"`
	ExecutionID string           `json:"execution_id"`
	StepName    string           `json:"step_name,omitempty"`
	Position    *int             `json:"position,omitempty"`
	Type        JournalEntryType `json:"type"`
	Message     string           `json:"message"`
	Timestamp   time.Time        `json:"timestamp"`
}
