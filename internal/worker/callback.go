package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"docflow/internal/cache"
	"docflow/internal/notification"
	"docflow/internal/observability"
	"docflow/internal/store"

	"github.com/google/uuid"
)

// CallbackConsumerConfig tunes the aggregation loop.
type CallbackConsumerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// ReconcileInterval spaces out the stale-execution sweep.
	ReconcileInterval time.Duration
	// StaleAfter is how long an EXECUTING execution may sit untouched
	// before the sweep recomputes it from the durable rows.
	StaleAfter time.Duration
}

// CallbackConsumer drains the completion-event queue: each event bumps the
// execution's counters exactly once, and the event that completes the
// aggregate finalizes the execution. Events are redelivered until the
// durable side effects succeed, so counters survive restarts; the cache
// markers and the conditional finalize keep redelivery harmless.
type CallbackConsumer struct {
	queue      store.CallbackQueue
	executions store.ExecutionStore
	files      store.FileExecutionStore
	workflows  store.WorkflowStore
	cache      *cache.ExecutionCache
	notifier   *notification.Notifier
	config     CallbackConsumerConfig
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewCallbackConsumer creates the aggregation consumer.
func NewCallbackConsumer(
	queue store.CallbackQueue,
	executions store.ExecutionStore,
	files store.FileExecutionStore,
	workflows store.WorkflowStore,
	execCache *cache.ExecutionCache,
	notifier *notification.Notifier,
	config CallbackConsumerConfig,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *CallbackConsumer {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.ReconcileInterval <= 0 {
		config.ReconcileInterval = 1 * time.Minute
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 10 * time.Minute
	}
	return &CallbackConsumer{
		queue:      queue,
		executions: executions,
		files:      files,
		workflows:  workflows,
		cache:      execCache,
		notifier:   notifier,
		config:     config,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run polls the callback queue until the context is cancelled. A slower
// ticker runs the stale-execution sweep alongside the event loop.
func (c *CallbackConsumer) Run(ctx context.Context) error {
	c.logger.Info("callback consumer starting", "batch_size", c.config.BatchSize)

	reconcile := time.NewTicker(c.config.ReconcileInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconcile.C:
			c.reconcileStale(ctx)
		default:
		}

		items, err := c.queue.DequeueCallbacks(ctx, c.config.BatchSize)
		if err != nil {
			c.logger.Error("callback dequeue failed", "error", err)
		}
		for _, item := range items {
			c.handle(ctx, item)
		}

		if len(items) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.PollInterval):
			}
		}
	}
}

// handle processes one completion event. Acked when its effects are
// durable (or it is unusable), retried otherwise.
func (c *CallbackConsumer) handle(ctx context.Context, item store.CallbackQueueItem) {
	var payload store.CallbackPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		c.logger.Error("corrupt callback payload, dropping", "callback_id", item.ID, "error", err)
		c.ack(ctx, item.ID)
		return
	}

	log := c.logger.With("execution_id", payload.ExecutionID, "file_execution_id", payload.FileExecutionID)

	counters, done, err := c.cache.RecordOutcome(ctx, payload.ExecutionID, payload.FileExecutionID, payload.Outcome)
	if err != nil {
		// Cache entry expired or Redis unavailable: rebuild the aggregate
		// from the durable per-file rows instead of losing the event.
		log.Warn("cache outcome record failed, falling back to durable rows", "error", err)
		counters, done, err = c.durableCounters(ctx, payload.ExecutionID)
		if err != nil {
			log.Error("durable fallback failed", "error", err)
			c.retry(ctx, item.ID)
			return
		}
	}

	if !done {
		c.ack(ctx, item.ID)
		return
	}

	if err := c.finalize(ctx, payload.ExecutionID, counters); err != nil {
		log.Error("finalization failed", "error", err)
		c.retry(ctx, item.ID)
		return
	}
	c.ack(ctx, item.ID)
}

// finalize moves the execution to COMPLETED with its final counts. Partial
// failure is still COMPLETED; the failed count tells the story. Exactly
// one caller wins the conditional update, and only the winner releases the
// cache and fires the notification.
func (c *CallbackConsumer) finalize(ctx context.Context, executionID uuid.UUID, counters cache.Counters) error {
	won, err := c.executions.FinalizeExecution(ctx, executionID, store.ExecutionStatusCompleted, counters.Completed, counters.Failed)
	if err != nil {
		return err
	}
	if !won {
		// Already finalized (or stopped) by someone else.
		return nil
	}

	c.metrics.RecordExecutionFinalized(ctx, string(store.ExecutionStatusCompleted))
	if err := c.cache.Release(ctx, executionID, store.ExecutionStatusCompleted); err != nil {
		c.logger.Warn("failed to release execution cache", "execution_id", executionID, "error", err)
	}

	c.sendNotification(ctx, executionID, counters)
	return nil
}

// sendNotification is best effort: the execution is already durably
// finalized, so a failed webhook is logged, never re-finalized.
func (c *CallbackConsumer) sendNotification(ctx context.Context, executionID uuid.UUID, counters cache.Counters) {
	exec, err := c.executions.GetWorkflowExecutionByID(ctx, executionID)
	if err != nil {
		c.logger.Error("failed to load execution for notification", "execution_id", executionID, "error", err)
		return
	}
	wf, err := c.workflows.GetWorkflowByID(ctx, exec.WorkflowID)
	if err != nil {
		c.logger.Error("failed to load workflow for notification", "execution_id", executionID, "error", err)
		return
	}
	if wf.NotificationURL == "" {
		return
	}

	ev := notification.Event{
		Type:         notification.EventTypeWorkflow,
		PipelineID:   wf.ID.String(),
		PipelineName: exec.PipelineName,
		Status:       string(store.ExecutionStatusCompleted),
		ExecutionID:  executionID.String(),
	}
	if counters.Failed > 0 {
		ev.ErrorMessage = failureSummary(counters.Failed, counters.Total)
	}
	if err := c.notifier.Notify(ctx, wf.NotificationURL, ev); err != nil {
		c.logger.Error("notification delivery failed", "execution_id", executionID, "error", err)
	}
}

func failureSummary(failed, total int) string {
	b, _ := json.Marshal(map[string]int{"failed_files": failed, "total_files": total})
	return string(b)
}

// durableCounters rebuilds the aggregate from the per-file rows when the
// cache projection is gone. Done requires the durable total to be fixed
// and every file to be terminal.
func (c *CallbackConsumer) durableCounters(ctx context.Context, executionID uuid.UUID) (cache.Counters, bool, error) {
	exec, err := c.executions.GetWorkflowExecutionByID(ctx, executionID)
	if err != nil {
		return cache.Counters{}, false, err
	}
	if exec.Status.Terminal() {
		// Nothing left to aggregate.
		return cache.Counters{
			Status:    string(exec.Status),
			Total:     exec.TotalFiles,
			Completed: exec.CompletedFiles,
			Failed:    exec.FailedFiles,
			Skipped:   exec.SkippedFiles,
		}, false, nil
	}

	fes, err := c.files.ListFileExecutions(ctx, executionID)
	if err != nil {
		return cache.Counters{}, false, err
	}

	counters := cache.Counters{
		Status:  string(exec.Status),
		Total:   exec.TotalFiles,
		Skipped: exec.SkippedFiles,
	}
	for _, fe := range fes {
		switch fe.Status {
		case store.FileStatusCompleted:
			counters.Completed++
		case store.FileStatusError:
			counters.Failed++
		}
	}

	done := exec.Status == store.ExecutionStatusExecuting &&
		counters.Total >= 0 &&
		counters.Completed+counters.Failed >= counters.Total
	return counters, done, nil
}

// reconcileStale finalizes EXECUTING executions whose completion event was
// lost (corrupt payloads, cache drift after a Redis outage). The durable
// per-file rows are the source of truth here.
func (c *CallbackConsumer) reconcileStale(ctx context.Context) {
	stale, err := c.executions.ListStaleExecutions(ctx, time.Now().Add(-c.config.StaleAfter), 50)
	if err != nil {
		c.logger.Error("stale execution sweep failed", "error", err)
		return
	}

	for _, exec := range stale {
		counters, done, err := c.durableCounters(ctx, exec.ID)
		if err != nil {
			c.logger.Error("stale execution recount failed", "execution_id", exec.ID, "error", err)
			continue
		}
		if !done {
			continue
		}
		c.logger.Info("finalizing stale execution from durable rows",
			"execution_id", exec.ID, "completed", counters.Completed, "failed", counters.Failed)
		if err := c.finalize(ctx, exec.ID, counters); err != nil {
			c.logger.Error("stale execution finalize failed", "execution_id", exec.ID, "error", err)
		}
	}
}

func (c *CallbackConsumer) ack(ctx context.Context, id int64) {
	if err := c.queue.AckCallback(ctx, id); err != nil {
		c.logger.Error("failed to ack callback", "callback_id", id, "error", err)
	}
}

func (c *CallbackConsumer) retry(ctx context.Context, id int64) {
	if err := c.queue.RetryCallback(ctx, id); err != nil {
		c.logger.Error("failed to schedule callback retry", "callback_id", id, "error", err)
	}
}
