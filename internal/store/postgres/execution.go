package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"docflow/internal/store"

	"github.com/google/uuid"
)

// CreateWorkflowExecution inserts the initial state of a new execution.
func (s *Store) CreateWorkflowExecution(ctx context.Context, tx store.DBTransaction, we *store.WorkflowExecution) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO workflow_executions (id, workflow_id, organization_id, pipeline_name, status, total_files, completed_files, failed_files, skipped_files, error_message, task_id, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`
	_, err := executor.ExecContext(ctx, query,
		we.ID, we.WorkflowID, we.OrganizationID, we.PipelineName,
		we.Status, we.TotalFiles, we.CompletedFiles, we.FailedFiles, we.SkippedFiles,
		we.ErrorMessage, we.TaskID, we.CreatedAt,
	)
	return err
}

func (s *Store) GetWorkflowExecutionByID(ctx context.Context, id uuid.UUID) (*store.WorkflowExecution, error) {
	query := `
		SELECT id, workflow_id, organization_id, pipeline_name, status, total_files, completed_files, failed_files, skipped_files, error_message, task_id, created_at, modified_at
		FROM workflow_executions WHERE id = $1
	`

	var we store.WorkflowExecution
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&we.ID, &we.WorkflowID, &we.OrganizationID, &we.PipelineName,
		&we.Status, &we.TotalFiles, &we.CompletedFiles, &we.FailedFiles, &we.SkippedFiles,
		&we.ErrorMessage, &we.TaskID, &we.CreatedAt, &we.ModifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &we, nil
}

// UpdateExecutionStatus moves a non-terminal execution to the given status.
// The terminal-state guard is in the WHERE clause so concurrent writers
// cannot resurrect a finished execution.
func (s *Store) UpdateExecutionStatus(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.ExecutionStatus, errorMessage *string) error {
	executor := s.getExecutor(tx)

	query := `
		UPDATE workflow_executions
		SET status = $1, error_message = COALESCE($2, error_message), modified_at = NOW()
		WHERE id = $3 AND status NOT IN ($4, $5, $6)
	`
	res, err := executor.ExecContext(ctx, query, status, errorMessage, id,
		store.ExecutionStatusCompleted, store.ExecutionStatusError, store.ExecutionStatusStopped)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrAlreadyTerminal
	}
	return nil
}

// SetExecutionTotals fixes total and skipped counts once dispatch completes.
func (s *Store) SetExecutionTotals(ctx context.Context, tx store.DBTransaction, id uuid.UUID, totalFiles, skippedFiles int) error {
	executor := s.getExecutor(tx)

	query := `
		UPDATE workflow_executions
		SET total_files = $1, skipped_files = $2, modified_at = NOW()
		WHERE id = $3
	`
	_, err := executor.ExecContext(ctx, query, totalFiles, skippedFiles, id)
	return err
}

// FinalizeExecution conditionally moves an EXECUTING (or still PENDING)
// execution to its terminal status and persists final aggregate counts.
// The conditional UPDATE is the exactly-once guard: under concurrent
// last-file callbacks only one caller observes rows affected.
// Re-applying to an already-terminal row is a no-op, so retries after a
// failed durable write are safe.
func (s *Store) FinalizeExecution(ctx context.Context, id uuid.UUID, status store.ExecutionStatus, completedFiles, failedFiles int) (bool, error) {
	query := `
		UPDATE workflow_executions
		SET status = $1, completed_files = $2, failed_files = $3, modified_at = NOW()
		WHERE id = $4 AND status IN ($5, $6)
	`
	res, err := s.db.ExecContext(ctx, query, status, completedFiles, failedFiles, id,
		store.ExecutionStatusPending, store.ExecutionStatusExecuting)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListStaleExecutions returns EXECUTING executions whose last modification
// is older than the cutoff. The reconciliation sweep uses this to catch
// executions whose completion was missed by the event path.
func (s *Store) ListStaleExecutions(ctx context.Context, olderThan time.Time, limit int) ([]store.WorkflowExecution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, workflow_id, organization_id, pipeline_name, status, total_files, completed_files, failed_files, skipped_files, error_message, task_id, created_at, modified_at
		FROM workflow_executions
		WHERE status = $1 AND modified_at < $2
		ORDER BY modified_at ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, store.ExecutionStatusExecuting, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []store.WorkflowExecution
	for rows.Next() {
		var we store.WorkflowExecution
		if err := rows.Scan(
			&we.ID, &we.WorkflowID, &we.OrganizationID, &we.PipelineName,
			&we.Status, &we.TotalFiles, &we.CompletedFiles, &we.FailedFiles, &we.SkippedFiles,
			&we.ErrorMessage, &we.TaskID, &we.CreatedAt, &we.ModifiedAt,
		); err != nil {
			return nil, err
		}
		executions = append(executions, we)
	}

	return executions, rows.Err()
}

// CountActiveExecutions returns the number of non-terminal executions for
// a workflow. An advisory lock serializes concurrent triggers of the same
// workflow so two callers cannot both observe zero and double-dispatch.
func (s *Store) CountActiveExecutions(ctx context.Context, tx store.DBTransaction, workflowID uuid.UUID) (int64, error) {
	executor := s.getExecutor(tx)

	lockQuery := `SELECT pg_advisory_xact_lock(1, $1)`
	workflowLockKey := int32(workflowID[0])<<24 | int32(workflowID[1])<<16 | int32(workflowID[2])<<8 | int32(workflowID[3])

	if _, err := executor.ExecContext(ctx, lockQuery, workflowLockKey); err != nil {
		return 0, err
	}

	countQuery := `SELECT COUNT(*) FROM workflow_executions WHERE workflow_id = $1 AND status IN ($2, $3)`

	var count int64
	err := executor.QueryRowContext(ctx, countQuery, workflowID,
		store.ExecutionStatusPending, store.ExecutionStatusExecuting).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
