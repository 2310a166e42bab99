package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/recipes/pkg/recipe"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// dsn builds the modernc DSN. Transactions take the write lock up front
// so concurrent claimers serialize instead of failing on lock upgrade.
func (s *SQLiteStore) dsn() string {
	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", s.cfg.BusyTimeout.Milliseconds()),
		"_pragma=foreign_keys(1)",
		"_txlock=immediate",
	}
	if s.cfg.Path != MemoryPath {
		params = append(params, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	return s.cfg.Path + "?" + strings.Join(params, "&")
}

// Init opens the database connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, committing on success.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Step queue and results

// Enqueue creates an execution and queues its steps in document order,
// with one pending result record per step. Step positions are assigned
// from slice order.
func (s *SQLiteStore) Enqueue(ctx context.Context, executionID, recipeName string, steps []recipe.QueuedStep) error {
	if executionID == "" {
		return fmt.Errorf("execution id is required")
	}

	payloads := make([]string, len(steps))
	for i, step := range steps {
		payload, err := recipe.MarshalStep(step.Step)
		if err != nil {
			return fmt.Errorf("failed to enqueue step %d (%s): %w", i, step.Name, err)
		}
		payloads[i] = payload
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions WHERE id = ?`, executionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check execution: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s", ErrExecutionExists, executionID)
		}

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO executions (id, recipe_name, status, started_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, executionID, recipeName, recipe.ExecutionStatusStarted, now, now, now)
		if err != nil {
			return fmt.Errorf("failed to create execution: %w", err)
		}

		queueStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO step_queue (execution_id, position, step_name, payload, files_path, status, attempts, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare queue insert: %w", err)
		}
		defer queueStmt.Close()

		resultStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO step_results (execution_id, position, step_name, is_completed, is_successful)
			VALUES (?, ?, ?, 0, 0)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare result insert: %w", err)
		}
		defer resultStmt.Close()

		for i, step := range steps {
			if _, err := queueStmt.ExecContext(ctx, executionID, i, step.Name, payloads[i], step.FilesPath, QueueEntryPending, now); err != nil {
				return fmt.Errorf("failed to queue step %d (%s): %w", i, step.Name, err)
			}
			if _, err := resultStmt.ExecContext(ctx, executionID, i, step.Name); err != nil {
				return fmt.Errorf("failed to create step result %d (%s): %w", i, step.Name, err)
			}
		}

		return nil
	})
}

// Dequeue claims the earliest pending step of an execution. It returns
// nil, nil when no step is pending. A claimed step is never returned
// again; one whose claimer died is made pending by RequeueStale.
func (s *SQLiteStore) Dequeue(ctx context.Context, executionID string) (*recipe.QueuedStep, error) {
	return s.claim(ctx, executionID, false)
}

// ClaimNext is Dequeue for a driver that runs steps strictly in order: it
// returns ErrStepInFlight while another step of the execution is claimed.
func (s *SQLiteStore) ClaimNext(ctx context.Context, executionID string) (*recipe.QueuedStep, error) {
	return s.claim(ctx, executionID, true)
}

func (s *SQLiteStore) claim(ctx context.Context, executionID string, exclusive bool) (*recipe.QueuedStep, error) {
	var step *recipe.QueuedStep

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if exclusive {
			var inFlight int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM step_queue WHERE execution_id = ? AND status = ?
			`, executionID, QueueEntryClaimed).Scan(&inFlight)
			if err != nil {
				return fmt.Errorf("failed to read step queue: %w", err)
			}
			if inFlight > 0 {
				return fmt.Errorf("%w: execution %s", ErrStepInFlight, executionID)
			}
		}

		var (
			position  int
			stepName  string
			payload   string
			filesPath string
			attempts  int
		)
		err := tx.QueryRowContext(ctx, `
			SELECT position, step_name, payload, files_path, attempts
			FROM step_queue
			WHERE execution_id = ? AND status = ?
			ORDER BY position ASC
			LIMIT 1
		`, executionID, QueueEntryPending).Scan(&position, &stepName, &payload, &filesPath, &attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read step queue: %w", err)
		}

		element, err := recipe.UnmarshalStep(payload)
		if err != nil {
			return fmt.Errorf("failed to decode step %d (%s): %w", position, stepName, err)
		}

		now := time.Now().UTC()
		claimed, err := tx.ExecContext(ctx, `
			UPDATE step_queue
			SET status = ?, attempts = attempts + 1, claimed_at = ?
			WHERE execution_id = ? AND position = ? AND status = ?
		`, QueueEntryClaimed, now, executionID, position, QueueEntryPending)
		if err != nil {
			return fmt.Errorf("failed to claim step: %w", err)
		}
		if n, err := claimed.RowsAffected(); err != nil {
			return fmt.Errorf("failed to claim step: %w", err)
		} else if n != 1 {
			return fmt.Errorf("failed to claim step %d (%s): already claimed", position, stepName)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE step_results SET started_at = ?
			WHERE execution_id = ? AND position = ?
		`, now, executionID, position)
		if err != nil {
			return fmt.Errorf("failed to mark step started: %w", err)
		}

		step = &recipe.QueuedStep{
			RecipeStep: recipe.RecipeStep{
				Name: stepName,
				Step: element,
			},
			ExecutionID: executionID,
			Position:    position,
			FilesPath:   filesPath,
			Attempts:    attempts + 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return step, nil
}

// RequeueStale makes steps claimed before cutoff pending again, so a step
// whose claimer exited before recording an outcome is delivered once more.
// It returns the number of steps requeued.
func (s *SQLiteStore) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE step_queue
		SET status = ?, claimed_at = NULL
		WHERE status = ? AND claimed_at < ?
	`, QueueEntryPending, QueueEntryClaimed, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale steps: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count requeued steps: %w", err)
	}
	return int(n), nil
}

// QueueLength returns the number of steps still queued for an execution,
// claimed ones included.
func (s *SQLiteStore) QueueLength(ctx context.Context, executionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM step_queue WHERE execution_id = ?`, executionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued steps: %w", err)
	}
	return count, nil
}

// DrainQueue removes every remaining step of an execution and returns how
// many were removed.
func (s *SQLiteStore) DrainQueue(ctx context.Context, executionID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM step_queue WHERE execution_id = ?`, executionID)
	if err != nil {
		return 0, fmt.Errorf("failed to drain step queue: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// CompleteStep marks a claimed step successful and removes it from the queue.
func (s *SQLiteStore) CompleteStep(ctx context.Context, step *recipe.QueuedStep) error {
	if step == nil {
		return fmt.Errorf("step is nil")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if err := finalizeResult(ctx, tx, step, true, nil, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM step_queue WHERE execution_id = ? AND position = ?
		`, step.ExecutionID, step.Position); err != nil {
			return fmt.Errorf("failed to dequeue step: %w", err)
		}

		return touchExecution(ctx, tx, step.ExecutionID, now)
	})
}

// FailStep marks a claimed step failed with message and drains the rest of
// the execution's queue. It returns the number of steps drained, not
// counting the failed step itself.
func (s *SQLiteStore) FailStep(ctx context.Context, step *recipe.QueuedStep, message string) (int, error) {
	if step == nil {
		return 0, fmt.Errorf("step is nil")
	}

	var drained int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if err := finalizeResult(ctx, tx, step, false, &message, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM step_queue WHERE execution_id = ? AND position = ?
		`, step.ExecutionID, step.Position); err != nil {
			return fmt.Errorf("failed to dequeue step: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM step_queue WHERE execution_id = ?`, step.ExecutionID)
		if err != nil {
			return fmt.Errorf("failed to drain step queue: %w", err)
		}
		if drained, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		return touchExecution(ctx, tx, step.ExecutionID, now)
	})
	if err != nil {
		return 0, err
	}

	return int(drained), nil
}

// finalizeResult completes a pending result record. Completing a record
// twice is an error.
func finalizeResult(ctx context.Context, tx *sql.Tx, step *recipe.QueuedStep, successful bool, message *string, now time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE step_results
		SET is_completed = 1, is_successful = ?, error_message = ?, completed_at = ?,
		    started_at = COALESCE(started_at, ?)
		WHERE execution_id = ? AND position = ? AND is_completed = 0
	`, successful, message, now, now, step.ExecutionID, step.Position)
	if err != nil {
		return fmt.Errorf("failed to update step result: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no pending result for step %d (%s) of execution %s", step.Position, step.Name, step.ExecutionID)
	}
	return nil
}

func touchExecution(ctx context.Context, tx *sql.Tx, executionID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE executions SET updated_at = ? WHERE id = ?`, now, executionID); err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	return nil
}

// ListStepResults returns an execution's step results in document order.
func (s *SQLiteStore) ListStepResults(ctx context.Context, executionID string) ([]recipe.StepResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, step_name, position, is_completed, is_successful,
		       error_message, started_at, completed_at
		FROM step_results
		WHERE execution_id = ?
		ORDER BY position ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step results: %w", err)
	}
	defer rows.Close()

	results := make([]recipe.StepResultRecord, 0)
	for rows.Next() {
		var r recipe.StepResultRecord
		if err := rows.Scan(
			&r.ExecutionID, &r.StepName, &r.Position, &r.IsCompleted, &r.IsSuccessful,
			&r.ErrorMessage, &r.StartedAt, &r.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step results: %w", err)
	}

	return results, nil
}

// Executions

// GetExecution retrieves an execution by ID.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*recipe.Execution, error) {
	var exec recipe.Execution
	err := s.db.QueryRowContext(ctx, `
		SELECT id, recipe_name, status, started_at, completed_at, error, created_at, updated_at
		FROM executions
		WHERE id = ?
	`, id).Scan(
		&exec.ID, &exec.RecipeName, &exec.Status, &exec.StartedAt, &exec.CompletedAt,
		&exec.Error, &exec.CreatedAt, &exec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return &exec, nil
}

// ListExecutions lists executions, newest first, optionally filtered by status.
func (s *SQLiteStore) ListExecutions(ctx context.Context, statuses []recipe.ExecutionStatus, limit, offset int) ([]*recipe.Execution, error) {
	query := `
		SELECT id, recipe_name, status, started_at, completed_at, error, created_at, updated_at
		FROM executions
	`
	args := make([]any, 0, len(statuses)+2)

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	query += " ORDER BY created_at DESC, id ASC"

	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	executions := make([]*recipe.Execution, 0)
	for rows.Next() {
		var exec recipe.Execution
		if err := rows.Scan(
			&exec.ID, &exec.RecipeName, &exec.Status, &exec.StartedAt, &exec.CompletedAt,
			&exec.Error, &exec.CreatedAt, &exec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, &exec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// UpdateExecutionStatus sets an execution's status. Terminal statuses also
// set completed_at.
func (s *SQLiteStore) UpdateExecutionStatus(ctx context.Context, id string, status recipe.ExecutionStatus, errMsg *string) error {
	now := time.Now().UTC()

	var completedAt *time.Time
	if status.IsTerminal() {
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, status, errMsg, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to update execution status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteExecution removes an execution with its queue and results. Journal
// entries are kept.
func (s *SQLiteStore) DeleteExecution(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}

	return nil
}

// Journal

// AppendJournalEntry appends an entry to the journal and sets its ID.
func (s *SQLiteStore) AppendJournalEntry(ctx context.Context, entry *recipe.JournalEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO journal (execution_id, step_name, position, type, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ExecutionID, entry.StepName, entry.Position, entry.Type, entry.Message, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get journal entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListJournalEntries returns an execution's journal in append order.
func (s *SQLiteStore) ListJournalEntries(ctx context.Context, executionID string, limit, offset int) ([]*recipe.JournalEntry, error) {
	query := `
		SELECT id, execution_id, step_name, position, type, message, timestamp
		FROM journal
		WHERE execution_id = ?
		ORDER BY id ASC
	`
	args := []any{executionID}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*recipe.JournalEntry, 0)
	for rows.Next() {
		var entry recipe.JournalEntry
		if err := rows.Scan(
			&entry.ID, &entry.ExecutionID, &entry.StepName, &entry.Position,
			&entry.Type, &entry.Message, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal entries: %w", err)
	}

	return entries, nil
}

// Site settings

// UpsertSetting inserts or replaces a site setting.
func (s *SQLiteStore) UpsertSetting(ctx context.Context, setting Setting) error {
	if setting.Key == "" {
		return fmt.Errorf("setting key is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_settings (key, value, execution_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			execution_id = excluded.execution_id,
			updated_at = excluded.updated_at
	`, setting.Key, setting.Value, setting.ExecutionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}

	return nil
}

// GetSetting retrieves a site setting by key.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (*Setting, error) {
	var setting Setting
	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, execution_id FROM site_settings WHERE key = ?
	`, key).Scan(&setting.Key, &setting.Value, &setting.ExecutionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}

	return &setting, nil
}

// ListSettings returns all site settings ordered by key.
func (s *SQLiteStore) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, execution_id FROM site_settings ORDER BY key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	settings := make([]Setting, 0)
	for rows.Next() {
		var setting Setting
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.ExecutionID); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, setting)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return settings, nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
