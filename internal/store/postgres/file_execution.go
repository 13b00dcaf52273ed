package postgres

import (
	"context"
	"database/sql"
	"errors"

	"docflow/internal/store"

	"github.com/google/uuid"
)

// CreateFileExecution inserts a per-file execution row at dispatch time.
func (s *Store) CreateFileExecution(ctx context.Context, tx store.DBTransaction, fe *store.FileExecution) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO file_executions (id, workflow_execution_id, file_name, file_path, file_hash, file_size, mime_type, status, stage, tool_step_reached, error_message, result, execution_time, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`
	_, err := executor.ExecContext(ctx, query,
		fe.ID, fe.WorkflowExecutionID,
		fe.FileName, fe.FilePath, fe.FileHash, fe.FileSize, fe.MimeType,
		fe.Status, fe.Stage, fe.ToolStepReached,
		fe.ErrorMessage, fe.Result, fe.ExecutionTime, fe.CreatedAt,
	)
	return err
}

func (s *Store) GetFileExecutionByID(ctx context.Context, id uuid.UUID) (*store.FileExecution, error) {
	query := `
		SELECT id, workflow_execution_id, file_name, file_path, file_hash, file_size, mime_type, status, stage, tool_step_reached, error_message, result, execution_time, created_at, modified_at
		FROM file_executions WHERE id = $1
	`

	var fe store.FileExecution
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&fe.ID, &fe.WorkflowExecutionID,
		&fe.FileName, &fe.FilePath, &fe.FileHash, &fe.FileSize, &fe.MimeType,
		&fe.Status, &fe.Stage, &fe.ToolStepReached,
		&fe.ErrorMessage, &fe.Result, &fe.ExecutionTime,
		&fe.CreatedAt, &fe.ModifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fe, nil
}

func (s *Store) ListFileExecutions(ctx context.Context, executionID uuid.UUID) ([]store.FileExecution, error) {
	query := `
		SELECT id, workflow_execution_id, file_name, file_path, file_hash, file_size, mime_type, status, stage, tool_step_reached, error_message, result, execution_time, created_at, modified_at
		FROM file_executions
		WHERE workflow_execution_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []store.FileExecution
	for rows.Next() {
		var fe store.FileExecution
		if err := rows.Scan(
			&fe.ID, &fe.WorkflowExecutionID,
			&fe.FileName, &fe.FilePath, &fe.FileHash, &fe.FileSize, &fe.MimeType,
			&fe.Status, &fe.Stage, &fe.ToolStepReached,
			&fe.ErrorMessage, &fe.Result, &fe.ExecutionTime,
			&fe.CreatedAt, &fe.ModifiedAt,
		); err != nil {
			return nil, err
		}
		executions = append(executions, fe)
	}

	return executions, rows.Err()
}

// UpdateFileExecutionState records progress of the processing attempt.
// Terminal rows are excluded in the WHERE clause: a redelivered task must
// not move a finished file back to EXECUTING.
func (s *Store) UpdateFileExecutionState(ctx context.Context, id uuid.UUID, status store.FileStatus, stage store.FileStage, toolStep int) error {
	query := `
		UPDATE file_executions
		SET status = $1, stage = $2, tool_step_reached = $3, modified_at = NOW()
		WHERE id = $4 AND status NOT IN ($5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, status, stage, toolStep, id,
		store.FileStatusCompleted, store.FileStatusError)
	return err
}

// CompleteFileExecution records a terminal outcome. Stage is always
// COMPLETED here: the attempt finished regardless of outcome.
func (s *Store) CompleteFileExecution(ctx context.Context, id uuid.UUID, status store.FileStatus, result []byte, errorMessage *string, executionTime float64) error {
	query := `
		UPDATE file_executions
		SET status = $1, stage = $2, result = $3, error_message = $4, execution_time = $5, modified_at = NOW()
		WHERE id = $6 AND status NOT IN ($7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		status, store.FileStageCompleted, result, errorMessage, executionTime, id,
		store.FileStatusCompleted, store.FileStatusError)
	return err
}
