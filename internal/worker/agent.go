// Package worker contains the worker-side logic: the pull loop, the
// per-file tool chain executor, and the callback aggregation consumer.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docflow/internal/store"
)

// AgentConfig holds configuration for the file-processing agent.
type AgentConfig struct {
	ID                  string
	Concurrency         int
	PollInterval        time.Duration
	MaxBackoff          time.Duration // Maximum backoff when queue is empty (default: 30s)
	HeartbeatInterval   time.Duration // Interval between visibility extensions (default: 2m)
	VisibilityExtension time.Duration // How long to extend visibility on heartbeat (default: 5m)
}

// Agent runs the pull loop over the file-processing queue and hands each
// claimed file to the Processor.
type Agent struct {
	queue     store.FileQueue
	processor *Processor
	config    AgentConfig
	logger    *slog.Logger
	done      chan struct{}
}

// NewAgent creates a file-processing agent.
func NewAgent(q store.FileQueue, p *Processor, config AgentConfig, logger *slog.Logger) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 2 * time.Minute
	}
	if config.VisibilityExtension <= 0 {
		config.VisibilityExtension = 5 * time.Minute
	}

	return &Agent{
		queue:     q,
		processor: p,
		config:    config,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Run starts the main pull loop. It blocks until the context is cancelled.
// On SIGTERM it stops dequeuing new work and lets in-flight files finish:
// cancellation is cooperative, never "kill mid-flight".
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "agent_id", a.config.ID, "concurrency", a.config.Concurrency)

	// Semaphore to limit concurrency.
	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling).
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty queue, resets on work found).
	currentBackoff := a.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending.
		}
	}

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context cancelled, draining in-flight files")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			items, err := a.queue.DequeueFiles(ctx, availableSlots)
			if err != nil {
				a.logger.Error("dequeue failed", "error", err)
				continue
			}

			if len(items) == 0 {
				// Empty queue: exponential backoff, capped at MaxBackoff.
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			currentBackoff = a.config.PollInterval
			a.logger.Debug("claimed files", "count", len(items))

			for _, item := range items {
				sem <- struct{}{}

				wg.Add(1)
				go func(item store.FileQueueItem) {
					defer wg.Done()
					defer func() {
						<-sem
						triggerPoll()
					}()
					a.processItem(ctx, item)
				}(item)
			}

			if len(items) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel closed once the agent has fully drained.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processItem runs one claimed file with a visibility heartbeat attached.
// The processing context is detached from the poll context so a SIGTERM
// drains gracefully instead of aborting the tool chain mid-file.
func (a *Agent) processItem(ctx context.Context, item store.FileQueueItem) {
	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	go a.runHeartbeat(heartbeatCtx, item)

	a.processor.Process(context.Background(), item)
}

// runHeartbeat refreshes the visibility timeout while a file is being
// processed, so long tool chains are not handed to another worker. The
// extension carries the claim's lease: once the item is acked or released
// for retry the lease no longer matches, and a tick racing the end of
// processing cannot overwrite the retry backoff.
func (a *Agent) runHeartbeat(ctx context.Context, item store.FileQueueItem) {
	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			visibleAfter := time.Now().Add(a.config.VisibilityExtension)
			if err := a.queue.ExtendFileVisibility(context.Background(), item.FileExecutionID, item.Lease, visibleAfter); err != nil {
				a.logger.Warn("heartbeat failed", "file_execution_id", item.FileExecutionID, "error", err)
			}
		}
	}
}
