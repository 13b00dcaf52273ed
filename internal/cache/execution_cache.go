package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"docflow/internal/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldStatus    = "status"
	fieldTotal     = "total_files"
	fieldCompleted = "completed_files"
	fieldFailed    = "failed_files"
	fieldSkipped   = "skipped_files"

	// inFlightTTL bounds orphaned cache entries; finalized entries are
	// shortened to finalizedTTL so late status polls still hit the cache.
	inFlightTTL  = 24 * time.Hour
	finalizedTTL = 10 * time.Minute
)

// recordOutcomeScript applies one file outcome at most once and reports
// whether the aggregate is complete. The per-file marker key makes
// redelivered callback events idempotent; the increment and the
// completed+failed==total comparison happen in one script so "am I the
// last one" is atomic. A total of -1 means dispatch has not fixed the
// total yet, so completion cannot be decided.
var recordOutcomeScript = redis.NewScript(`
local counted = redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[2])
if counted then
  redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
end
local total = tonumber(redis.call('HGET', KEYS[1], 'total_files') or '-1')
local completed = tonumber(redis.call('HGET', KEYS[1], 'completed_files') or '0')
local failed = tonumber(redis.call('HGET', KEYS[1], 'failed_files') or '0')
local done = 0
if total >= 0 and completed + failed >= total then
  done = 1
end
return {completed, failed, total, done}
`)

// Counters is a point-in-time snapshot of one execution's aggregate state.
type Counters struct {
	Status    string
	Total     int
	Completed int
	Failed    int
	Skipped   int
}

// ExecutionCache mirrors in-flight aggregate counters per execution so
// status polling never hits the durable store while files are in flight.
type ExecutionCache struct {
	client redis.UniversalClient
	prefix string
}

// NewExecutionCache wraps a Redis client. The prefix namespaces keys so
// multiple deployments can share one Redis.
func NewExecutionCache(client redis.UniversalClient, prefix string) *ExecutionCache {
	if prefix == "" {
		prefix = "docflow"
	}
	return &ExecutionCache{client: client, prefix: prefix}
}

func (c *ExecutionCache) key(executionID uuid.UUID) string {
	return fmt.Sprintf("%s:exec:%s", c.prefix, executionID)
}

func (c *ExecutionCache) fileKey(executionID, fileExecutionID uuid.UUID) string {
	return fmt.Sprintf("%s:exec:%s:file:%s", c.prefix, executionID, fileExecutionID)
}

// Initialize creates the counter hash with zeroed counters. Total is set
// to -1 until dispatch fixes it, so completion cannot be observed early.
func (c *ExecutionCache) Initialize(ctx context.Context, executionID uuid.UUID, status store.ExecutionStatus) error {
	key := c.key(executionID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		fieldStatus, string(status),
		fieldTotal, -1,
		fieldCompleted, 0,
		fieldFailed, 0,
		fieldSkipped, 0,
	)
	pipe.Expire(ctx, key, inFlightTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize execution cache: %w", err)
	}
	return nil
}

// SetTotals fixes the dispatched-file total and the skipped count. Called
// once, after the dispatch loop finishes; the total never decreases.
func (c *ExecutionCache) SetTotals(ctx context.Context, executionID uuid.UUID, total, skipped int) error {
	return c.client.HSet(ctx, c.key(executionID), fieldTotal, total, fieldSkipped, skipped).Err()
}

// SetStatus mirrors a durable status transition into the projection.
func (c *ExecutionCache) SetStatus(ctx context.Context, executionID uuid.UUID, status store.ExecutionStatus) error {
	return c.client.HSet(ctx, c.key(executionID), fieldStatus, string(status)).Err()
}

// RecordOutcome applies one per-file outcome atomically and exactly once
// per file execution. It returns the resulting counter snapshot and
// whether the aggregate is now complete (completed+failed == total).
func (c *ExecutionCache) RecordOutcome(ctx context.Context, executionID, fileExecutionID uuid.UUID, outcome store.FileStatus) (Counters, bool, error) {
	field := fieldCompleted
	if outcome == store.FileStatusError {
		field = fieldFailed
	}

	res, err := recordOutcomeScript.Run(ctx, c.client,
		[]string{c.key(executionID), c.fileKey(executionID, fileExecutionID)},
		field, int(inFlightTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return Counters{}, false, fmt.Errorf("failed to record file outcome: %w", err)
	}
	if len(res) != 4 {
		return Counters{}, false, fmt.Errorf("unexpected outcome script reply length %d", len(res))
	}

	counters := Counters{
		Completed: int(res[0]),
		Failed:    int(res[1]),
		Total:     int(res[2]),
	}
	return counters, res[3] == 1, nil
}

// IsComplete reports whether completed+failed has reached the fixed total
// without mutating anything. Used after dispatch fixes the total, since
// the last callback may have arrived before the total was known.
func (c *ExecutionCache) IsComplete(ctx context.Context, executionID uuid.UUID) (Counters, bool, error) {
	counters, ok, err := c.Snapshot(ctx, executionID)
	if err != nil {
		return Counters{}, false, err
	}
	if !ok {
		return Counters{}, false, nil
	}
	done := counters.Total >= 0 && counters.Completed+counters.Failed >= counters.Total
	return counters, done, nil
}

// Snapshot returns the projection for status polling. ok=false means the
// entry expired (or never existed) and the caller must fall back to the
// durable rows.
func (c *ExecutionCache) Snapshot(ctx context.Context, executionID uuid.UUID) (Counters, bool, error) {
	vals, err := c.client.HGetAll(ctx, c.key(executionID)).Result()
	if err != nil {
		return Counters{}, false, fmt.Errorf("failed to read execution cache: %w", err)
	}
	if len(vals) == 0 {
		return Counters{}, false, nil
	}

	counters := Counters{
		Status:    vals[fieldStatus],
		Total:     atoiField(vals, fieldTotal),
		Completed: atoiField(vals, fieldCompleted),
		Failed:    atoiField(vals, fieldFailed),
		Skipped:   atoiField(vals, fieldSkipped),
	}
	return counters, true, nil
}

// Release marks the projection finalized: status is updated and the entry
// is left to expire on a short TTL instead of being deleted outright, so
// polls racing the finalization still get the fast path.
func (c *ExecutionCache) Release(ctx context.Context, executionID uuid.UUID, status store.ExecutionStatus) error {
	key := c.key(executionID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, fieldStatus, string(status))
	pipe.Expire(ctx, key, finalizedTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func atoiField(vals map[string]string, field string) int {
	n, err := strconv.Atoi(vals[field])
	if err != nil {
		return 0
	}
	return n
}
