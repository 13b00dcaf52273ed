// Package orchestrator coordinates workflow executions: it creates the
// durable execution record, discovers and dispatches input files, and
// serves status reads and stop requests.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docflow/internal/cache"
	"docflow/internal/notification"
	"docflow/internal/observability"
	"docflow/internal/source"
	"docflow/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrDuplicateRun is returned when a workflow that disallows concurrent
// runs already has a non-terminal execution.
var ErrDuplicateRun = errors.New("orchestrator: workflow already has an active execution")

// TxBeginner starts store transactions; implemented by the postgres store.
type TxBeginner interface {
	BeginTx(ctx context.Context) (store.Tx, error)
}

// Orchestrator drives the dispatch side of an execution. Workers own the
// per-file processing; this type only ever touches durable records, the
// queue, and the counter projection.
type Orchestrator struct {
	txs        TxBeginner
	workflows  store.WorkflowStore
	executions store.ExecutionStore
	files      store.FileExecutionStore
	queue      store.FileQueue
	discovery  *source.Discovery
	cache      *cache.ExecutionCache
	notifier   *notification.Notifier
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New creates an orchestrator.
func New(
	txs TxBeginner,
	workflows store.WorkflowStore,
	executions store.ExecutionStore,
	files store.FileExecutionStore,
	queue store.FileQueue,
	discovery *source.Discovery,
	execCache *cache.ExecutionCache,
	notifier *notification.Notifier,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		txs:        txs,
		workflows:  workflows,
		executions: executions,
		files:      files,
		queue:      queue,
		discovery:  discovery,
		cache:      execCache,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// StartRequest triggers one execution of a workflow.
type StartRequest struct {
	WorkflowID   uuid.UUID
	PipelineName string
	// UseFileHistory enables the dedup lookup; disabling it reprocesses
	// every discovered file.
	UseFileHistory bool
	TaskID         *string
}

// Start creates the execution record in PENDING. The duplicate-run guard
// and the insert share one transaction so two concurrent triggers of a
// non-concurrent workflow cannot both pass the zero-active check; the
// advisory lock inside CountActiveExecutions serializes them.
// Dispatch is a separate step so callers can run it in the background.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*store.WorkflowExecution, error) {
	wf, err := o.workflows.GetWorkflowByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	pipelineName := req.PipelineName
	if pipelineName == "" {
		pipelineName = wf.Name
	}

	exec := &store.WorkflowExecution{
		ID:             uuid.New(),
		WorkflowID:     wf.ID,
		OrganizationID: wf.OrganizationID,
		PipelineName:   pipelineName,
		Status:         store.ExecutionStatusPending,
		TaskID:         req.TaskID,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := o.txs.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if !wf.AllowConcurrent {
		active, err := o.executions.CountActiveExecutions(ctx, tx, wf.ID)
		if err != nil {
			return nil, err
		}
		if active > 0 {
			return nil, ErrDuplicateRun
		}
	}

	if err := o.executions.CreateWorkflowExecution(ctx, tx, exec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if err := o.cache.Initialize(ctx, exec.ID, exec.Status); err != nil {
		// Status reads fall back to the durable row; not fatal.
		o.logger.Warn("failed to initialize execution cache", "execution_id", exec.ID, "error", err)
	}

	o.logger.Info("execution created", "execution_id", exec.ID, "workflow_id", wf.ID, "pipeline_name", pipelineName)
	return exec, nil
}

// Dispatch discovers the input files and enqueues one task per
// non-skipped file. Discovery and connector failures here are hard
// failures for the whole execution: the record goes to ERROR and no files
// are queued. After the loop the totals are fixed and the execution moves
// to EXECUTING, or straight to COMPLETED when nothing was dispatched.
func (o *Orchestrator) Dispatch(ctx context.Context, executionID uuid.UUID, useFileHistory bool) error {
	ctx, span := otel.Tracer("docflow-orchestrator").Start(ctx, "dispatch_execution",
		trace.WithAttributes(attribute.String("execution.id", executionID.String())),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	exec, err := o.executions.GetWorkflowExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		// Stopped before dispatch ran.
		return nil
	}
	wf, err := o.workflows.GetWorkflowByID(ctx, exec.WorkflowID)
	if err != nil {
		return o.failDispatch(ctx, executionID, fmt.Sprintf("failed to load workflow: %v", err))
	}

	conn, err := source.New(wf.Source)
	if err != nil {
		return o.failDispatch(ctx, executionID, err.Error())
	}

	discovered, err := o.discovery.Discover(ctx, conn, wf, useFileHistory)
	if err != nil {
		return o.failDispatch(ctx, executionID, err.Error())
	}

	log := o.logger.With("execution_id", executionID, "workflow_id", wf.ID)

	dispatched := 0
	skipped := 0
	stopped := false
	for _, df := range discovered {
		if df.Hash.IsExecuted {
			skipped++
			continue
		}

		// A stop request between per-file transactions halts dispatch.
		current, err := o.executions.GetWorkflowExecutionByID(ctx, executionID)
		if err == nil && current.Status.Terminal() {
			log.Info("execution stopped during dispatch", "dispatched", dispatched)
			stopped = true
			break
		}

		if err := o.dispatchFile(ctx, executionID, wf, df); err != nil {
			// One bad file does not abort its siblings. It never entered
			// the total, so completion accounting is unaffected.
			log.Error("failed to dispatch file", "file_name", df.Hash.FileName, "error", err)
			continue
		}
		dispatched++
	}

	if err := o.executions.SetExecutionTotals(ctx, nil, executionID, dispatched, skipped); err != nil {
		return fmt.Errorf("failed to set execution totals: %w", err)
	}
	if err := o.cache.SetTotals(ctx, executionID, dispatched, skipped); err != nil {
		log.Warn("failed to set cache totals", "error", err)
	}
	o.metrics.RecordDispatch(ctx, dispatched, skipped)

	if stopped {
		return nil
	}

	log.Info("dispatch complete", "total", dispatched, "skipped", skipped)

	if dispatched == 0 {
		// Empty source or everything memoized: terminal immediately.
		return o.finalizeNow(ctx, executionID, 0, 0)
	}

	if err := o.executions.UpdateExecutionStatus(ctx, nil, executionID, store.ExecutionStatusExecuting, nil); err != nil {
		if errors.Is(err, store.ErrAlreadyTerminal) {
			return nil
		}
		return err
	}
	if err := o.cache.SetStatus(ctx, executionID, store.ExecutionStatusExecuting); err != nil {
		log.Warn("failed to mirror executing status", "error", err)
	}

	// The last callback may have landed while the total was still unknown;
	// its completion check saw total=-1 and moved on. Re-check now that
	// the total is fixed.
	counters, done, err := o.cache.IsComplete(ctx, executionID)
	if err != nil {
		log.Warn("post-dispatch completion check failed", "error", err)
		return nil
	}
	if done {
		return o.finalizeNow(ctx, executionID, counters.Completed, counters.Failed)
	}
	return nil
}

// Run is Start followed by a synchronous Dispatch, for callers that do
// not need the two-phase form.
func (o *Orchestrator) Run(ctx context.Context, req StartRequest) (*store.WorkflowExecution, error) {
	exec, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := o.Dispatch(ctx, exec.ID, req.UseFileHistory); err != nil {
		o.logger.Error("dispatch failed", "execution_id", exec.ID, "error", err)
	}
	return o.executions.GetWorkflowExecutionByID(ctx, exec.ID)
}

// Stop requests cooperative termination: the execution record becomes
// STOPPED, unclaimed queued files are dropped, and files already claimed
// by workers run to completion. Returns store.ErrAlreadyTerminal when the
// execution has already finished.
func (o *Orchestrator) Stop(ctx context.Context, executionID uuid.UUID) error {
	if err := o.executions.UpdateExecutionStatus(ctx, nil, executionID, store.ExecutionStatusStopped, nil); err != nil {
		return err
	}

	purged, err := o.queue.PurgeQueuedFiles(ctx, executionID)
	if err != nil {
		o.logger.Error("failed to purge queued files", "execution_id", executionID, "error", err)
	}

	if err := o.cache.Release(ctx, executionID, store.ExecutionStatusStopped); err != nil {
		o.logger.Warn("failed to release execution cache", "execution_id", executionID, "error", err)
	}

	o.metrics.RecordExecutionFinalized(ctx, string(store.ExecutionStatusStopped))
	o.notify(ctx, executionID, store.ExecutionStatusStopped, "")
	o.logger.Info("execution stopped", "execution_id", executionID, "purged_files", purged)
	return nil
}

// Status is one execution's aggregate state as served to clients.
type Status struct {
	ExecutionID    uuid.UUID
	WorkflowID     uuid.UUID
	PipelineName   string
	Status         store.ExecutionStatus
	TotalFiles     int
	CompletedFiles int
	FailedFiles    int
	SkippedFiles   int
	ErrorMessage   *string
	CreatedAt      time.Time
	ModifiedAt     time.Time
}

// GetStatus serves a status poll. While the execution is in flight the
// counters come from the cache projection; once the entry is gone (or the
// execution is terminal) the durable row answers.
func (o *Orchestrator) GetStatus(ctx context.Context, executionID uuid.UUID) (*Status, error) {
	exec, err := o.executions.GetWorkflowExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	st := &Status{
		ExecutionID:    exec.ID,
		WorkflowID:     exec.WorkflowID,
		PipelineName:   exec.PipelineName,
		Status:         exec.Status,
		TotalFiles:     exec.TotalFiles,
		CompletedFiles: exec.CompletedFiles,
		FailedFiles:    exec.FailedFiles,
		SkippedFiles:   exec.SkippedFiles,
		ErrorMessage:   exec.ErrorMessage,
		CreatedAt:      exec.CreatedAt,
		ModifiedAt:     exec.ModifiedAt,
	}

	if !exec.Status.Terminal() {
		counters, ok, err := o.cache.Snapshot(ctx, executionID)
		if err != nil {
			o.logger.Warn("status cache read failed", "execution_id", executionID, "error", err)
		} else if ok {
			st.CompletedFiles = counters.Completed
			st.FailedFiles = counters.Failed
			// Total is -1 in the projection until dispatch fixes it; the
			// durable row stays authoritative until then.
			if counters.Total >= 0 {
				st.TotalFiles = counters.Total
				st.SkippedFiles = counters.Skipped
			}
		}
	}

	return st, nil
}

// dispatchFile creates the per-file record and its queue item in one
// transaction, so a crash cannot leave a file row without a task or a
// task without a row.
func (o *Orchestrator) dispatchFile(ctx context.Context, executionID uuid.UUID, wf *store.Workflow, df source.DiscoveredFile) error {
	fe := &store.FileExecution{
		ID:                  uuid.New(),
		WorkflowExecutionID: executionID,
		FileName:            df.Hash.FileName,
		FilePath:            df.Hash.FilePath,
		FileHash:            df.Hash.ContentHash,
		FileSize:            df.Hash.FileSize,
		MimeType:            df.Hash.MimeType,
		Status:              store.FileStatusQueued,
		Stage:               store.FileStageInitiated,
		CreatedAt:           time.Now().UTC(),
	}

	payload, err := json.Marshal(store.FileTaskPayload{
		WorkflowID:      wf.ID,
		ExecutionID:     executionID,
		FileExecutionID: fe.ID,
		FileHash:        df.Hash,
		ToolChain:       wf.ToolChain,
		Destination:     wf.Destination,
		CacheKey:        df.CacheKey,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	tx, err := o.txs.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := o.files.CreateFileExecution(ctx, tx, fe); err != nil {
		return fmt.Errorf("failed to create file execution: %w", err)
	}
	if _, err := o.queue.EnqueueFile(ctx, tx, fe.ID, payload); err != nil {
		return fmt.Errorf("failed to enqueue file: %w", err)
	}
	return tx.Commit()
}

// failDispatch records a dispatch-time hard failure: ERROR status, zero
// totals, counter projection torn down. This is the only path that ends
// an execution in ERROR; per-file failures end in COMPLETED with a
// non-zero failed count.
func (o *Orchestrator) failDispatch(ctx context.Context, executionID uuid.UUID, msg string) error {
	o.logger.Error("dispatch failed", "execution_id", executionID, "error", msg)

	if err := o.executions.UpdateExecutionStatus(ctx, nil, executionID, store.ExecutionStatusError, &msg); err != nil {
		if !errors.Is(err, store.ErrAlreadyTerminal) {
			return fmt.Errorf("failed to record dispatch failure: %w", err)
		}
		return nil
	}
	if err := o.executions.SetExecutionTotals(ctx, nil, executionID, 0, 0); err != nil {
		o.logger.Warn("failed to zero totals after dispatch failure", "execution_id", executionID, "error", err)
	}
	if err := o.cache.Release(ctx, executionID, store.ExecutionStatusError); err != nil {
		o.logger.Warn("failed to release execution cache", "execution_id", executionID, "error", err)
	}
	o.metrics.RecordExecutionFinalized(ctx, string(store.ExecutionStatusError))
	o.notify(ctx, executionID, store.ExecutionStatusError, msg)
	return fmt.Errorf("dispatch failed: %s", msg)
}

// finalizeNow applies a terminal COMPLETED directly from the dispatch
// path, for the zero-dispatch and already-done cases.
func (o *Orchestrator) finalizeNow(ctx context.Context, executionID uuid.UUID, completed, failed int) error {
	won, err := o.executions.FinalizeExecution(ctx, executionID, store.ExecutionStatusCompleted, completed, failed)
	if err != nil {
		return err
	}
	if won {
		o.metrics.RecordExecutionFinalized(ctx, string(store.ExecutionStatusCompleted))
		if err := o.cache.Release(ctx, executionID, store.ExecutionStatusCompleted); err != nil {
			o.logger.Warn("failed to release execution cache", "execution_id", executionID, "error", err)
		}
		o.notify(ctx, executionID, store.ExecutionStatusCompleted, "")
	}
	return nil
}

// notify fires the workflow's completion webhook for terminal transitions
// applied on the dispatch side. Best effort; delivery failures are logged.
func (o *Orchestrator) notify(ctx context.Context, executionID uuid.UUID, status store.ExecutionStatus, errMsg string) {
	exec, err := o.executions.GetWorkflowExecutionByID(ctx, executionID)
	if err != nil {
		o.logger.Error("failed to load execution for notification", "execution_id", executionID, "error", err)
		return
	}
	wf, err := o.workflows.GetWorkflowByID(ctx, exec.WorkflowID)
	if err != nil {
		o.logger.Error("failed to load workflow for notification", "execution_id", executionID, "error", err)
		return
	}
	if wf.NotificationURL == "" {
		return
	}

	ev := notification.Event{
		Type:         notification.EventTypeWorkflow,
		PipelineID:   wf.ID.String(),
		PipelineName: exec.PipelineName,
		Status:       string(status),
		ExecutionID:  executionID.String(),
		ErrorMessage: errMsg,
	}
	if err := o.notifier.Notify(ctx, wf.NotificationURL, ev); err != nil {
		o.logger.Error("notification delivery failed", "execution_id", executionID, "error", err)
	}
}
