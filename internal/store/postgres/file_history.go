package postgres

import (
	"context"
	"database/sql"
	"errors"

	"docflow/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for constraint 23505.
const uniqueViolation = "23505"

// GetFileHistory returns the history row for (workflow, cache_key), or
// store.ErrNotFound. Only COMPLETED rows short-circuit reprocessing;
// callers check the status.
func (s *Store) GetFileHistory(ctx context.Context, workflowID uuid.UUID, cacheKey string) (*store.FileHistory, error) {
	query := `
		SELECT id, workflow_id, cache_key, status, result, error, meta_data, created_at, modified_at
		FROM file_history
		WHERE workflow_id = $1 AND cache_key = $2
	`

	var fh store.FileHistory
	err := s.db.QueryRowContext(ctx, query, workflowID, cacheKey).Scan(
		&fh.ID, &fh.WorkflowID, &fh.CacheKey, &fh.Status,
		&fh.Result, &fh.Error, &fh.MetaData,
		&fh.CreatedAt, &fh.ModifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fh, nil
}

// UpsertFileHistory inserts a memoization row after a file completes.
// When two executions process identical content concurrently, the second
// writer hits the (workflow_id, cache_key) unique constraint; that is
// treated as "already cached", not an error.
func (s *Store) UpsertFileHistory(ctx context.Context, fh *store.FileHistory) error {
	query := `
		INSERT INTO file_history (workflow_id, cache_key, status, result, error, meta_data, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT ON CONSTRAINT uq_file_history_workflow_cache_key DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		fh.WorkflowID, fh.CacheKey, fh.Status, fh.Result, fh.Error, fh.MetaData,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil
		}
		return err
	}
	return nil
}

// ListFileHistory returns the most recent memoization rows for a workflow.
func (s *Store) ListFileHistory(ctx context.Context, workflowID uuid.UUID, limit int) ([]store.FileHistory, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, workflow_id, cache_key, status, result, error, meta_data, created_at, modified_at
		FROM file_history
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.FileHistory
	for rows.Next() {
		var fh store.FileHistory
		if err := rows.Scan(
			&fh.ID, &fh.WorkflowID, &fh.CacheKey, &fh.Status,
			&fh.Result, &fh.Error, &fh.MetaData,
			&fh.CreatedAt, &fh.ModifiedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, fh)
	}

	return entries, rows.Err()
}

// ClearFileHistory removes all memoization rows for a workflow, forcing
// the next run to reprocess everything.
func (s *Store) ClearFileHistory(ctx context.Context, workflowID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM file_history WHERE workflow_id = $1", workflowID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
