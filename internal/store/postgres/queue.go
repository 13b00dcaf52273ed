package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docflow/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Default retry policy for the file-processing queue. Retries cover
// infrastructure failures only; tool-level business failures are terminal
// per-file errors and never redelivered.
const (
	MaxRetries        = 5
	VisibilityTimeout = 5 * time.Minute
)

// EnqueueFile adds a dispatched file to the file-processing queue.
func (s *Store) EnqueueFile(ctx context.Context, tx store.DBTransaction, fileExecutionID uuid.UUID, payload json.RawMessage) (int64, error) {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO file_queue (file_execution_id, payload, visible_after)
		VALUES ($1, $2, NOW())
		RETURNING id
	`

	var id int64
	err := executor.QueryRowContext(ctx, query, fileExecutionID, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue file execution %s: %w", fileExecutionID, err)
	}

	return id, nil
}

// DequeueFiles claims up to 'limit' available items atomically using
// SELECT ... FOR UPDATE SKIP LOCKED. Returns nil slice if none available.
func (s *Store) DequeueFiles(ctx context.Context, limit int) ([]store.FileQueueItem, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT id, file_execution_id, payload, attempt
		FROM file_queue
		WHERE visible_after <= NOW()
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`

	rows, err := tx.QueryContext(ctx, selectQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("file queue dequeue query failed: %w", err)
	}
	defer rows.Close()

	var items []store.FileQueueItem
	var queueIDs []int64
	var fileExecIDs []uuid.UUID

	for rows.Next() {
		var queueID int64
		var item store.FileQueueItem
		if err := rows.Scan(&queueID, &item.FileExecutionID, &item.Payload, &item.Attempt); err != nil {
			return nil, fmt.Errorf("file queue dequeue scan failed: %w", err)
		}
		items = append(items, item)
		queueIDs = append(queueIDs, queueID)
		fileExecIDs = append(fileExecIDs, item.FileExecutionID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("file queue dequeue rows error: %w", err)
	}

	if len(items) == 0 {
		return nil, nil
	}

	// Claimed items become invisible for the visibility window, the
	// attempt counter advances, and the claim is stamped with a fresh
	// lease. Heartbeats must present the lease, so a claim that has been
	// released for retry cannot push its visibility back out.
	lease := uuid.New()
	for i := range items {
		items[i].Lease = lease
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE file_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'), attempt = attempt + 1, lease = $2
		WHERE id = ANY($3)
	`, VisibilityTimeout.Seconds(), lease, pq.Array(queueIDs))
	if err != nil {
		return nil, fmt.Errorf("file queue visibility update failed: %w", err)
	}

	// Claimed files move out of QUEUED.
	_, err = tx.ExecContext(ctx, `
		UPDATE file_executions
		SET status = $1, modified_at = NOW()
		WHERE id = ANY($2) AND status = $3
	`, store.FileStatusPending, pq.Array(fileExecIDs), store.FileStatusQueued)
	if err != nil {
		return nil, fmt.Errorf("file queue status update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return items, nil
}

// AckFile removes a processed item from the file queue. Both success and
// per-file business failure ack: those outcomes are terminal for the file.
func (s *Store) AckFile(ctx context.Context, tx store.DBTransaction, fileExecutionID uuid.UUID) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, "DELETE FROM file_queue WHERE file_execution_id = $1", fileExecutionID)
	return err
}

// RetryFile schedules an infrastructure failure for redelivery with
// exponential backoff. Once attempts exceed MaxRetries the item is removed
// and exhausted=true is returned so the caller can record a per-file ERROR.
func (s *Store) RetryFile(ctx context.Context, fileExecutionID uuid.UUID, errMsg string) (bool, error) {
	var attempt int
	err := s.db.QueryRowContext(ctx,
		"SELECT attempt FROM file_queue WHERE file_execution_id = $1", fileExecutionID,
	).Scan(&attempt)

	exhausted := false
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Item already gone from the queue; treat as exhausted.
			exhausted = true
		} else {
			return false, err
		}
	} else if attempt > MaxRetries {
		exhausted = true
	}

	if !exhausted {
		// Exponential backoff: 10s * 2^attempt. Clearing the lease
		// invalidates any straggling heartbeat from the claim being
		// retried, so it cannot overwrite the backoff schedule.
		backoff := time.Duration(10*(1<<attempt)) * time.Second
		_, err = s.db.ExecContext(ctx, `
			UPDATE file_queue
			SET visible_after = NOW() + ($1 * INTERVAL '1 second'), lease = NULL
			WHERE file_execution_id = $2
		`, backoff.Seconds(), fileExecutionID)
		return false, err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM file_queue WHERE file_execution_id = $1", fileExecutionID); err != nil {
		return true, fmt.Errorf("failed to delete exhausted item from file queue: %w", err)
	}
	_ = errMsg // recorded by the caller on the file execution row
	return true, nil
}

// ExtendFileVisibility pushes out the visibility timeout (heartbeat).
// The lease guard makes stale heartbeats match zero rows once the claim
// has been released.
func (s *Store) ExtendFileVisibility(ctx context.Context, fileExecutionID uuid.UUID, lease uuid.UUID, visibleAfter time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE file_queue
		SET visible_after = $1
		WHERE file_execution_id = $2 AND lease = $3
	`, visibleAfter, fileExecutionID, lease)
	return err
}

// PurgeQueuedFiles removes unclaimed queue items belonging to a stopped
// execution and errors the matching QUEUED file rows in one transaction.
// Claimed items (file already PENDING or EXECUTING) are left alone.
func (s *Store) PurgeQueuedFiles(ctx context.Context, executionID uuid.UUID) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM file_queue
		WHERE file_execution_id IN (
			SELECT id FROM file_executions
			WHERE workflow_execution_id = $1 AND status = $2
		)
	`, executionID, store.FileStatusQueued)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queued files: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	msg := "execution stopped before processing"
	_, err = tx.ExecContext(ctx, `
		UPDATE file_executions
		SET status = $1, stage = $2, error_message = $3, modified_at = NOW()
		WHERE workflow_execution_id = $4 AND status = $5
	`, store.FileStatusError, store.FileStageCompleted, msg, executionID, store.FileStatusQueued)
	if err != nil {
		return 0, fmt.Errorf("failed to error purged files: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return purged, nil
}

// CountFileQueue reports the number of items in the file queue.
func (s *Store) CountFileQueue(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM file_queue").Scan(&count)
	return count, err
}

// EnqueueCallback adds a completion event to the callback queue.
func (s *Store) EnqueueCallback(ctx context.Context, tx store.DBTransaction, payload json.RawMessage) (int64, error) {
	executor := s.getExecutor(tx)

	var id int64
	err := executor.QueryRowContext(ctx, `
		INSERT INTO callback_queue (payload, visible_after)
		VALUES ($1, NOW())
		RETURNING id
	`, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue callback: %w", err)
	}
	return id, nil
}

// DequeueCallbacks claims up to 'limit' completion events.
func (s *Store) DequeueCallbacks(ctx context.Context, limit int) ([]store.CallbackQueueItem, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, payload
		FROM callback_queue
		WHERE visible_after <= NOW()
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("callback queue dequeue query failed: %w", err)
	}
	defer rows.Close()

	var items []store.CallbackQueueItem
	var ids []int64
	for rows.Next() {
		var item store.CallbackQueueItem
		if err := rows.Scan(&item.ID, &item.Payload); err != nil {
			return nil, fmt.Errorf("callback queue dequeue scan failed: %w", err)
		}
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("callback queue dequeue rows error: %w", err)
	}

	if len(items) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE callback_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'), attempt = attempt + 1
		WHERE id = ANY($2)
	`, VisibilityTimeout.Seconds(), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("callback queue visibility update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return items, nil
}

// AckCallback removes a fully aggregated completion event.
func (s *Store) AckCallback(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM callback_queue WHERE id = $1", id)
	return err
}

// RetryCallback makes a completion event visible again after a short
// backoff. Callback items are never dropped: finalization is idempotent
// and must eventually run, so there is no attempt ceiling here.
func (s *Store) RetryCallback(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE callback_queue
		SET visible_after = NOW() + (LEAST(attempt, 6) * INTERVAL '10 second')
		WHERE id = $1
	`, id)
	return err
}

// CountCallbackQueue reports the number of pending completion events.
func (s *Store) CountCallbackQueue(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM callback_queue").Scan(&count)
	return count, err
}
