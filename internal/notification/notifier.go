// Package notification delivers completion webhooks for finalized
// workflow executions.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Event is the webhook body posted to a workflow's notification URL.
type Event struct {
	Type         string `json:"type"`
	PipelineID   string `json:"pipeline_id"`
	PipelineName string `json:"pipeline_name"`
	Status       string `json:"status"`
	ExecutionID  string `json:"execution_id"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// EventTypeWorkflow marks events produced by workflow execution runs.
const EventTypeWorkflow = "WORKFLOW"

// Notifier posts completion events over HTTP. Delivery is at-most-once
// from the caller's perspective: the finalization winner fires exactly one
// Notify, and transient failures are retried here, not by re-finalizing.
type Notifier struct {
	client  *http.Client
	retries int
	logger  *slog.Logger
}

// NewNotifier creates a webhook notifier. timeout bounds one POST attempt.
func NewNotifier(timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		client:  &http.Client{Timeout: timeout},
		retries: 3,
		logger:  logger,
	}
}

// Notify posts one event to the given URL, retrying transient failures
// with a short linear backoff. An empty URL is a no-op.
func (n *Notifier) Notify(ctx context.Context, url string, ev Event) error {
	if url == "" {
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create notification request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
			// Client errors will not improve on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return lastErr
			}
		} else {
			lastErr = err
		}

		n.logger.Warn("notification attempt failed",
			"url", url, "execution_id", ev.ExecutionID, "attempt", attempt, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}
	return fmt.Errorf("notification failed after %d attempts: %w", n.retries, lastErr)
}
