package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyTerminal is returned when a status transition is attempted on
// an execution that has already reached a terminal state.
var ErrAlreadyTerminal = errors.New("store: execution already terminal")

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows passing either a connection pool or an active transaction
// to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// OrganizationStore handles tenant records and API-key authentication.
type OrganizationStore interface {
	// CreateOrganization inserts a new organization with its hashed API key.
	CreateOrganization(ctx context.Context, org *Organization, hashedKey string) error

	// GetOrganizationByID returns an organization by its ID.
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*Organization, error)

	// GetOrganizationByAPIKeyHash returns an organization by its API key hash.
	GetOrganizationByAPIKeyHash(ctx context.Context, hash string) (*Organization, error)
}

// WorkflowStore handles workflow definitions.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, tx DBTransaction, wf *Workflow) error
	GetWorkflowByID(ctx context.Context, id uuid.UUID) (*Workflow, error)
}

// ExecutionStore handles WorkflowExecution aggregate roots.
type ExecutionStore interface {
	CreateWorkflowExecution(ctx context.Context, tx DBTransaction, we *WorkflowExecution) error
	GetWorkflowExecutionByID(ctx context.Context, id uuid.UUID) (*WorkflowExecution, error)

	// UpdateExecutionStatus moves a non-terminal execution to the given
	// status. Returns ErrAlreadyTerminal when the row is already terminal.
	UpdateExecutionStatus(ctx context.Context, tx DBTransaction, id uuid.UUID, status ExecutionStatus, errorMessage *string) error

	// SetExecutionTotals fixes total and skipped counts once discovery and
	// dispatch complete. TotalFiles never decreases afterwards.
	SetExecutionTotals(ctx context.Context, tx DBTransaction, id uuid.UUID, totalFiles, skippedFiles int) error

	// FinalizeExecution conditionally moves an EXECUTING row to its
	// terminal status and persists final aggregate counts. It reports
	// whether this call performed the transition: false means another
	// caller already finalized, which callers treat as a no-op.
	FinalizeExecution(ctx context.Context, id uuid.UUID, status ExecutionStatus, completedFiles, failedFiles int) (bool, error)

	// ListStaleExecutions returns EXECUTING executions untouched since the
	// cutoff, for the reconciliation sweep.
	ListStaleExecutions(ctx context.Context, olderThan time.Time, limit int) ([]WorkflowExecution, error)

	// CountActiveExecutions returns the number of non-terminal executions
	// for a workflow, serialized via an advisory lock so concurrent
	// triggers cannot both observe zero.
	CountActiveExecutions(ctx context.Context, tx DBTransaction, workflowID uuid.UUID) (int64, error)
}

// FileExecutionStore handles per-file execution records.
type FileExecutionStore interface {
	CreateFileExecution(ctx context.Context, tx DBTransaction, fe *FileExecution) error
	GetFileExecutionByID(ctx context.Context, id uuid.UUID) (*FileExecution, error)
	ListFileExecutions(ctx context.Context, executionID uuid.UUID) ([]FileExecution, error)

	// UpdateFileExecutionState records progress of the processing attempt.
	UpdateFileExecutionState(ctx context.Context, id uuid.UUID, status FileStatus, stage FileStage, toolStep int) error

	// CompleteFileExecution records a terminal outcome for the file.
	CompleteFileExecution(ctx context.Context, id uuid.UUID, status FileStatus, result []byte, errorMessage *string, executionTime float64) error
}

// FileHistoryStore handles the dedup/memoization cache.
type FileHistoryStore interface {
	// GetFileHistory returns the completed history row for the cache key,
	// or ErrNotFound.
	GetFileHistory(ctx context.Context, workflowID uuid.UUID, cacheKey string) (*FileHistory, error)

	// UpsertFileHistory inserts a history row. A concurrent writer hitting
	// the (workflow_id, cache_key) unique constraint is treated as
	// "already cached", never as an error.
	UpsertFileHistory(ctx context.Context, fh *FileHistory) error

	// ListFileHistory returns recent history rows for a workflow.
	ListFileHistory(ctx context.Context, workflowID uuid.UUID, limit int) ([]FileHistory, error)

	// ClearFileHistory removes all history rows for a workflow.
	ClearFileHistory(ctx context.Context, workflowID uuid.UUID) (int64, error)
}
