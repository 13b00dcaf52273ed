package cache

import (
	"context"
	"testing"
	"time"

	"docflow/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ExecutionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewExecutionCache(client, "docflow"), mr
}

func TestInitialize_SetsUnknownTotal(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	execID := uuid.New()

	require.NoError(t, c.Initialize(ctx, execID, store.ExecutionStatusPending))

	counters, ok, err := c.Snapshot(ctx, execID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(store.ExecutionStatusPending), counters.Status)
	assert.Equal(t, -1, counters.Total)
	assert.Equal(t, 0, counters.Completed)
	assert.Equal(t, 0, counters.Failed)
}

func TestRecordOutcome_CountsCompletedAndFailed(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	execID := uuid.New()

	require.NoError(t, c.Initialize(ctx, execID, store.ExecutionStatusExecuting))
	require.NoError(t, c.SetTotals(ctx, execID, 3, 0))

	counters, done, err := c.RecordOutcome(ctx, execID, uuid.New(), store.FileStatusCompleted)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, counters.Completed)
	assert.Equal(t, 0, counters.Failed)

	counters, done, err = c.RecordOutcome(ctx, execID, uuid.New(), store.FileStatusError)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, counters.Completed)
	assert.Equal(t, 1, counters.Failed)

	counters, done, err = c.RecordOutcome(ctx, execID, uuid.New(), store.FileStatusCompleted)
	require.NoError(t, err)
	assert.True(t, done, "third outcome of three should complete the aggregate")
	assert.Equal(t, 2, counters.Completed)
	assert.Equal(t, 1, counters.Failed)
}

func TestRecordOutcome_DuplicateDeliveryCountsOnce(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	execID := uuid.New()
	fileID := uuid.New()

	require.NoError(t, c.Initialize(ctx, execID, store.ExecutionStatusExecuting))
	require.NoError(t, c.SetTotals(ctx, execID, 2, 0))

	counters, done, err := c.RecordOutcome(ctx, execID, fileID, store.FileStatusCompleted)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, counters.Completed)

	// Same file execution redelivered.
	counters, done, err = c.RecordOutcome(ctx, execID, fileID, store.FileStatusCompleted)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, counters.Completed, "redelivered outcome must not double count")
}

func TestRecordOutcome_ExactlyOneCallerObservesDone(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	execID := uuid.New()
	fileID := uuid.New()

	require.NoError(t, c.Initialize(ctx, execID, store.ExecutionStatusExecuting))
	require.NoError(t, c.SetTotals(ctx, execID, 1, 0))

	_, done, err := c.RecordOutcome(ctx, execID, fileID, store.FileStatusCompleted)
	require.NoError(t, err)
	assert.True(t, done)

	// A redelivery after completion still reports done; the durable
	// conditional update is what makes finalization single-winner.
	_, done, err = c.RecordOutcome(ctx, execID, fileID, store.FileStatusCompleted)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRecordOutcome_UnknownTotalNeverCompletes(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	execID := uuid.New()

	require.NoError(t, c.Initialize(ctx, execID, store.ExecutionStatusExecuting))

	// Dispatch has not fixed the total yet.
	for i := 0; i < 5; i++ {
		_, done, err := c.RecordOutcome(ctx, execID, uuid.New(), store.FileStatusCompleted)
		require.NoError(t, err)
		assert.False(t, done, "completion must not be decided while total is unknown")
	}
}

func TestIsComplete_AfterTotalsFixed(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	execID := uuid.New()

	require.NoError(t, c.Initialize(ctx, execID, store.ExecutionStatusExecuting))

	// All callbacks land before the dispatch loop fixes the total.
	_, done, err := c.RecordOutcome(ctx, execID, uuid.New(), store.FileStatusCompleted)
	require.NoError(t, err)
	require.False(t, done)
	_, done, err = c.RecordOutcome(ctx, execID, uuid.New(), store.FileStatusError)
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, c.SetTotals(ctx, execID, 2, 1))

	counters, done, err := c.IsComplete(ctx, execID)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, counters.Completed)
	assert.Equal(t, 1, counters.Failed)
	assert.Equal(t, 1, counters.Skipped)
}

func TestIsComplete_MissingEntry(t *testing.T) {
	c, _ := newTestCache(t)

	_, done, err := c.IsComplete(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestSnapshot_ExpiredEntryFallsBack(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	execID := uuid.New()

	require.NoError(t, c.Initialize(ctx, execID, store.ExecutionStatusExecuting))

	mr.FastForward(inFlightTTL + time.Minute)

	_, ok, err := c.Snapshot(ctx, execID)
	require.NoError(t, err)
	assert.False(t, ok, "expired projection must report a miss")
}

func TestSetStatus_OverwritesStatusOnly(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	execID := uuid.New()

	require.NoError(t, c.Initialize(ctx, execID, store.ExecutionStatusPending))
	require.NoError(t, c.SetTotals(ctx, execID, 4, 0))
	require.NoError(t, c.SetStatus(ctx, execID, store.ExecutionStatusExecuting))

	counters, ok, err := c.Snapshot(ctx, execID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(store.ExecutionStatusExecuting), counters.Status)
	assert.Equal(t, 4, counters.Total)
}

func TestRelease_ShortensTTLAndKeepsEntry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	execID := uuid.New()

	require.NoError(t, c.Initialize(ctx, execID, store.ExecutionStatusExecuting))
	require.NoError(t, c.Release(ctx, execID, store.ExecutionStatusCompleted))

	// Entry survives the release so racing polls still hit the cache.
	counters, ok, err := c.Snapshot(ctx, execID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(store.ExecutionStatusCompleted), counters.Status)

	mr.FastForward(finalizedTTL + time.Minute)

	_, ok, err = c.Snapshot(ctx, execID)
	require.NoError(t, err)
	assert.False(t, ok, "finalized entry should expire on the short TTL")
}
