package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"docflow/internal/destination"
	"docflow/internal/observability"
	"docflow/internal/store"
	"docflow/internal/worker/toolrunner"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ProcessorConfig holds the tuning knobs of the tool chain executor.
type ProcessorConfig struct {
	// WorkRoot is the directory scratch workspaces are created under.
	WorkRoot string
	// FileTimeout bounds one full processing attempt of one file.
	FileTimeout time.Duration
}

// Processor executes the tool chain for one claimed file: stage the input,
// run each tool in order, deliver the result, record history, and emit
// exactly one completion event per terminal outcome.
type Processor struct {
	db        store.DBTransaction
	files     store.FileExecutionStore
	history   store.FileHistoryStore
	queue     store.FileQueue
	callbacks store.CallbackQueue
	runners   *toolrunner.Registry
	destDeps  destination.Deps
	config    ProcessorConfig
	metrics   *observability.Metrics
	logger    *slog.Logger
	staging   *http.Client
}

// NewProcessor creates a tool chain executor.
func NewProcessor(
	db store.DBTransaction,
	files store.FileExecutionStore,
	history store.FileHistoryStore,
	queue store.FileQueue,
	callbacks store.CallbackQueue,
	runners *toolrunner.Registry,
	destDeps destination.Deps,
	config ProcessorConfig,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Processor {
	if config.WorkRoot == "" {
		config.WorkRoot = os.TempDir()
	}
	if config.FileTimeout <= 0 {
		config.FileTimeout = 30 * time.Minute
	}
	return &Processor{
		db:        db,
		files:     files,
		history:   history,
		queue:     queue,
		callbacks: callbacks,
		runners:   runners,
		destDeps:  destDeps,
		config:    config,
		metrics:   metrics,
		logger:    logger,
		staging:   &http.Client{Timeout: 2 * time.Minute},
	}
}

// fileResult is the shape persisted on the file execution row and in the
// dedup history after a successful chain run.
type fileResult struct {
	FileName     string          `json:"file_name"`
	ToolSteps    int             `json:"tool_steps"`
	ArtifactSize int64           `json:"artifact_size"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// Process runs one claimed file to a terminal outcome or a scheduled
// retry. Failure routing: tool-reported errors and timeouts are terminal
// per-file errors, infrastructure failures go back to the queue until
// attempts are exhausted. Every terminal outcome emits one completion
// event; redelivered items for already-finished files re-emit it, and the
// aggregation side deduplicates.
func (p *Processor) Process(ctx context.Context, item store.FileQueueItem) {
	started := time.Now()

	var payload store.FileTaskPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		p.logger.Error("corrupt file task payload", "file_execution_id", item.FileExecutionID, "error", err)
		p.failCorrupt(ctx, item.FileExecutionID, started)
		return
	}

	log := p.logger.With(
		"execution_id", payload.ExecutionID,
		"file_execution_id", payload.FileExecutionID,
		"file_name", payload.FileHash.FileName,
		"attempt", item.Attempt,
	)

	ctx, span := otel.Tracer("docflow-worker").Start(ctx, "process_file",
		trace.WithAttributes(
			attribute.String("execution.id", payload.ExecutionID.String()),
			attribute.String("file_execution.id", payload.FileExecutionID.String()),
			attribute.String("file.name", payload.FileHash.FileName),
			attribute.Int("attempt", item.Attempt),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	// Redelivery of an already-finished file: the previous attempt crashed
	// between emitting the event and acking. Re-emit and ack; the counters
	// are idempotent per file.
	if fe, err := p.files.GetFileExecutionByID(ctx, payload.FileExecutionID); err == nil && fe.Status.Terminal() {
		log.Info("file already terminal, re-emitting completion event", "status", fe.Status)
		p.emitAndAck(ctx, payload.ExecutionID, payload.FileExecutionID, fe.Status)
		return
	}

	if err := p.files.UpdateFileExecutionState(ctx, payload.FileExecutionID, store.FileStatusExecuting, store.FileStageInProgress, 0); err != nil {
		log.Error("failed to mark file executing", "error", err)
		p.retryInfra(ctx, payload, started, fmt.Sprintf("failed to mark file executing: %v", err), log)
		return
	}

	workDir, err := os.MkdirTemp(p.config.WorkRoot, "docflow-*")
	if err != nil {
		p.retryInfra(ctx, payload, started, fmt.Sprintf("failed to create work directory: %v", err), log)
		return
	}
	defer os.RemoveAll(workDir)

	fileCtx, cancel := context.WithTimeout(ctx, p.config.FileTimeout)
	defer cancel()

	artifactPath, err := p.stageInput(fileCtx, workDir, payload.FileHash)
	if err != nil {
		p.retryInfra(ctx, payload, started, fmt.Sprintf("failed to stage input: %v", err), log)
		return
	}

	var metadata json.RawMessage
	for i, tool := range payload.ToolChain {
		runner, err := p.runners.Lookup(tool.Runner)
		if err != nil {
			// Misconfigured chain; retrying cannot fix it.
			p.finish(ctx, payload, store.FileStatusError, nil, err.Error(), started, log)
			return
		}

		if err := p.files.UpdateFileExecutionState(ctx, payload.FileExecutionID, store.FileStatusExecuting, store.FileStageInProgress, i+1); err != nil {
			log.Warn("failed to record tool step", "step", i+1, "error", err)
		}

		stepCtx := fileCtx
		var stepCancel context.CancelFunc
		if tool.TimeoutSeconds > 0 {
			stepCtx, stepCancel = context.WithTimeout(fileCtx, time.Duration(tool.TimeoutSeconds)*time.Second)
		}

		stepCtx, stepSpan := otel.Tracer("docflow-worker").Start(stepCtx, "tool_step",
			trace.WithAttributes(
				attribute.String("tool.id", tool.ToolID),
				attribute.Int("tool.step", i+1),
			),
		)

		stepStart := time.Now()
		result := runner.Invoke(stepCtx, toolrunner.Input{
			Tool:         tool,
			FileName:     payload.FileHash.FileName,
			ArtifactPath: artifactPath,
			Metadata:     metadata,
			WorkDir:      workDir,
			Step:         i,
		})
		stepSpan.End()
		if stepCancel != nil {
			stepCancel()
		}
		p.metrics.RecordToolStep(ctx, tool.ToolID, time.Since(stepStart))

		if result.Failed() {
			msg := fmt.Sprintf("step %d (%s): %s", i+1, tool.ToolID, result.Err.Message)
			switch result.Err.Kind {
			case toolrunner.ErrorKindInfra:
				log.Warn("infrastructure failure, scheduling retry", "step", i+1, "error", result.Err.Message)
				p.retryInfra(ctx, payload, started, msg, log)
			default:
				// Tool errors and timeouts are deterministic for this
				// (file, chain) pair; a retry would fail the same way.
				log.Info("tool chain failed", "step", i+1, "kind", result.Err.Kind, "error", result.Err.Message)
				p.finish(ctx, payload, store.FileStatusError, nil, msg, started, log)
			}
			return
		}

		artifactPath = result.OutputArtifact
		if len(result.Metadata) > 0 {
			metadata = result.Metadata
		}
	}

	artifact, err := os.ReadFile(artifactPath)
	if err != nil {
		p.retryInfra(ctx, payload, started, fmt.Sprintf("failed to read final artifact: %v", err), log)
		return
	}

	dest, err := destination.New(payload.Destination, p.destDeps)
	if err != nil {
		p.finish(ctx, payload, store.FileStatusError, nil, err.Error(), started, log)
		return
	}
	if err := dest.Write(fileCtx, destination.WriteRequest{
		ExecutionID:     payload.ExecutionID,
		FileExecutionID: payload.FileExecutionID,
		FileName:        payload.FileHash.FileName,
		Artifact:        artifact,
		Metadata:        metadata,
	}); err != nil {
		p.finish(ctx, payload, store.FileStatusError, nil, fmt.Sprintf("destination write failed: %v", err), started, log)
		return
	}

	resultJSON, _ := json.Marshal(fileResult{
		FileName:     payload.FileHash.FileName,
		ToolSteps:    len(payload.ToolChain),
		ArtifactSize: int64(len(artifact)),
		Metadata:     metadata,
	})

	if payload.CacheKey != "" {
		fh := &store.FileHistory{
			WorkflowID: payload.WorkflowID,
			CacheKey:   payload.CacheKey,
			Status:     store.FileStatusCompleted,
			Result:     resultJSON,
			MetaData:   metadata,
		}
		if err := p.history.UpsertFileHistory(ctx, fh); err != nil {
			// History is an optimization; losing a row only costs a
			// future re-run of this file.
			log.Warn("failed to record file history", "error", err)
		}
	}

	log.Info("file processed", "duration", time.Since(started))
	p.finish(ctx, payload, store.FileStatusCompleted, resultJSON, "", started, log)
}

// finish records the terminal outcome, emits the completion event, and
// acks the queue item. The event goes out before the ack so a crash in
// between redelivers the item instead of losing the event.
func (p *Processor) finish(ctx context.Context, payload store.FileTaskPayload, status store.FileStatus, result json.RawMessage, errMsg string, started time.Time, log *slog.Logger) {
	var errPtr *string
	if errMsg != "" {
		errPtr = &errMsg
	}
	if err := p.files.CompleteFileExecution(ctx, payload.FileExecutionID, status, result, errPtr, time.Since(started).Seconds()); err != nil {
		log.Error("failed to record terminal file state", "error", err)
		return // redelivery after visibility timeout
	}
	p.metrics.RecordFileProcessed(ctx, string(status))
	p.emitAndAck(ctx, payload.ExecutionID, payload.FileExecutionID, status)
}

// emitAndAck enqueues the completion event and then removes the queue item.
func (p *Processor) emitAndAck(ctx context.Context, executionID, fileExecutionID uuid.UUID, status store.FileStatus) {
	event, _ := json.Marshal(store.CallbackPayload{
		ExecutionID:     executionID,
		FileExecutionID: fileExecutionID,
		Outcome:         status,
	})
	if _, err := p.callbacks.EnqueueCallback(ctx, p.db, event); err != nil {
		p.logger.Error("failed to enqueue completion event", "file_execution_id", fileExecutionID, "error", err)
		return
	}
	if err := p.queue.AckFile(ctx, p.db, fileExecutionID); err != nil {
		p.logger.Error("failed to ack file task", "file_execution_id", fileExecutionID, "error", err)
	}
}

// retryInfra sends an infrastructure failure back to the queue. When
// attempts are exhausted the file becomes a terminal ERROR so the parent
// execution can still finalize.
func (p *Processor) retryInfra(ctx context.Context, payload store.FileTaskPayload, started time.Time, msg string, log *slog.Logger) {
	exhausted, err := p.queue.RetryFile(ctx, payload.FileExecutionID, msg)
	if err != nil {
		log.Error("failed to schedule retry", "error", err)
		return // visibility timeout redelivers
	}
	if !exhausted {
		// Reset so the next attempt's dequeue moves QUEUED -> PENDING again.
		if err := p.files.UpdateFileExecutionState(ctx, payload.FileExecutionID, store.FileStatusQueued, store.FileStageInProgress, 0); err != nil {
			log.Warn("failed to reset file state for retry", "error", err)
		}
		return
	}

	log.Error("retries exhausted", "error", msg)
	finalMsg := fmt.Sprintf("retries exhausted: %s", msg)
	var errPtr = &finalMsg
	if err := p.files.CompleteFileExecution(ctx, payload.FileExecutionID, store.FileStatusError, nil, errPtr, time.Since(started).Seconds()); err != nil {
		log.Error("failed to record exhausted file state", "error", err)
	}
	p.metrics.RecordFileProcessed(ctx, string(store.FileStatusError))

	// The queue row is already gone; only the completion event remains.
	event, _ := json.Marshal(store.CallbackPayload{
		ExecutionID:     payload.ExecutionID,
		FileExecutionID: payload.FileExecutionID,
		Outcome:         store.FileStatusError,
	})
	if _, err := p.callbacks.EnqueueCallback(ctx, p.db, event); err != nil {
		log.Error("failed to enqueue completion event", "error", err)
	}
}

// failCorrupt handles an unparseable queue payload: the file row (if it
// exists) is errored and the item acked so it cannot poison the queue.
// Without a parseable execution ID no completion event can be emitted; the
// parent execution is finalized by the stale-execution sweep instead.
func (p *Processor) failCorrupt(ctx context.Context, fileExecutionID uuid.UUID, started time.Time) {
	msg := "corrupt task payload"
	if err := p.files.CompleteFileExecution(ctx, fileExecutionID, store.FileStatusError, nil, &msg, time.Since(started).Seconds()); err != nil {
		p.logger.Error("failed to record corrupt-payload error", "file_execution_id", fileExecutionID, "error", err)
	}
	if err := p.queue.AckFile(ctx, p.db, fileExecutionID); err != nil {
		p.logger.Error("failed to ack corrupt item", "file_execution_id", fileExecutionID, "error", err)
	}
	// Recover the parent execution ID from the durable row when possible.
	if fe, err := p.files.GetFileExecutionByID(ctx, fileExecutionID); err == nil {
		p.emitAndAck(ctx, fe.WorkflowExecutionID, fileExecutionID, store.FileStatusError)
	}
}

// stageInput copies the discovered file into the scratch workspace so tool
// containers only ever see the bind-mounted work directory.
func (p *Processor) stageInput(ctx context.Context, workDir string, fh store.FileHash) (string, error) {
	name := filepath.Base(fh.FileName)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "input"
	}
	target := filepath.Join(workDir, name)

	switch fh.SourceConnectionType {
	case "filesystem":
		src, err := os.Open(fh.FilePath)
		if err != nil {
			return "", fmt.Errorf("open source file: %w", err)
		}
		defer src.Close()

		dst, err := os.Create(target)
		if err != nil {
			return "", fmt.Errorf("create staged file: %w", err)
		}
		defer dst.Close()

		if _, err := io.Copy(dst, src); err != nil {
			return "", fmt.Errorf("copy source file: %w", err)
		}
		return target, nil

	case "http":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fh.FilePath, nil)
		if err != nil {
			return "", fmt.Errorf("build download request: %w", err)
		}
		resp, err := p.staging.Do(req)
		if err != nil {
			return "", fmt.Errorf("download source file: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("download source file: status %d", resp.StatusCode)
		}

		dst, err := os.Create(target)
		if err != nil {
			return "", fmt.Errorf("create staged file: %w", err)
		}
		defer dst.Close()

		if _, err := io.Copy(dst, resp.Body); err != nil {
			return "", fmt.Errorf("write staged file: %w", err)
		}
		return target, nil

	default:
		return "", fmt.Errorf("unknown source connection type %q", fh.SourceConnectionType)
	}
}
