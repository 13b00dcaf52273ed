package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FileQueue is the file-processing work queue: one message per dispatched
// file. Implementations must use SELECT ... FOR UPDATE SKIP LOCKED
// semantics with visibility timeouts, giving at-least-once delivery.
type FileQueue interface {
	// EnqueueFile adds a dispatched file to the queue.
	EnqueueFile(ctx context.Context, tx DBTransaction, fileExecutionID uuid.UUID, payload json.RawMessage) (int64, error)

	// DequeueFiles claims up to 'limit' available items atomically.
	// Claimed items become invisible for the visibility timeout, their
	// attempt count is incremented, and each claim is stamped with a fresh
	// lease. Returns nil slice if the queue is empty.
	DequeueFiles(ctx context.Context, limit int) ([]FileQueueItem, error)

	// AckFile removes a processed item from the queue. Called for both
	// outcomes: per-file business failures are terminal, not redelivered.
	AckFile(ctx context.Context, tx DBTransaction, fileExecutionID uuid.UUID) error

	// RetryFile schedules an infrastructure failure for redelivery with
	// exponential backoff. When attempts are exhausted the item is removed
	// and exhausted=true is returned; the caller then records a per-file
	// ERROR so the execution can still finalize. Scheduling a retry clears
	// the item's lease, invalidating any heartbeat from the old claim.
	RetryFile(ctx context.Context, fileExecutionID uuid.UUID, errMsg string) (exhausted bool, err error)

	// ExtendFileVisibility pushes out the visibility timeout (heartbeat).
	// The extension applies only while the given lease still holds the
	// item; a heartbeat from a released claim is a no-op.
	ExtendFileVisibility(ctx context.Context, fileExecutionID uuid.UUID, lease uuid.UUID, visibleAfter time.Time) error

	// PurgeQueuedFiles drops unclaimed queue items for a stopped execution
	// and errors their file rows. Files already claimed by a worker run to
	// completion; stopping is cooperative.
	PurgeQueuedFiles(ctx context.Context, executionID uuid.UUID) (int64, error)

	// CountFileQueue reports the number of items in the queue.
	CountFileQueue(ctx context.Context) (int64, error)
}

// FileQueueItem is one claimed unit of file-processing work. Lease
// identifies the claim itself and must accompany visibility extensions.
type FileQueueItem struct {
	FileExecutionID uuid.UUID
	Payload         json.RawMessage
	Attempt         int
	Lease           uuid.UUID
}

// FileTaskPayload is the file-processing queue message body. The tool
// chain is snapshotted at dispatch time.
type FileTaskPayload struct {
	WorkflowID      uuid.UUID      `json:"workflow_id"`
	ExecutionID     uuid.UUID      `json:"execution_id"`
	FileExecutionID uuid.UUID      `json:"file_execution_id"`
	FileHash        FileHash       `json:"file_hash"`
	ToolChain       []ToolInstance `json:"tool_chain"`
	Destination     ConnectorConfig `json:"destination"`
	CacheKey        string          `json:"cache_key,omitempty"`
}

// CallbackQueue is the completion/aggregation queue: one message per
// terminal per-file outcome. Items are redelivered until the aggregation
// side effects durably succeed, so counters survive worker-pool restarts.
type CallbackQueue interface {
	EnqueueCallback(ctx context.Context, tx DBTransaction, payload json.RawMessage) (int64, error)
	DequeueCallbacks(ctx context.Context, limit int) ([]CallbackQueueItem, error)
	AckCallback(ctx context.Context, id int64) error

	// RetryCallback schedules the item for redelivery after a durable-write
	// failure during aggregation. Callback items are never dropped on
	// exhausted attempts; finalization must eventually run.
	RetryCallback(ctx context.Context, id int64) error

	CountCallbackQueue(ctx context.Context) (int64, error)
}

// CallbackQueueItem is one claimed completion event.
type CallbackQueueItem struct {
	ID      int64
	Payload json.RawMessage
}

// CallbackPayload is the callback queue message body.
type CallbackPayload struct {
	ExecutionID     uuid.UUID  `json:"execution_id"`
	FileExecutionID uuid.UUID  `json:"file_execution_id"`
	Outcome         FileStatus `json:"outcome"`
}
