package destination

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// QueueConnector pushes results onto a Redis list for downstream
// consumers (LPOP/BRPOP on their side).
type QueueConnector struct {
	client redis.UniversalClient
	queue  string
}

func newQueueConnector(settings map[string]string, deps Deps) (Connector, error) {
	queue := settings["queue_name"]
	if queue == "" {
		return nil, fmt.Errorf("queue destination requires a 'queue_name' setting")
	}
	if deps.Redis == nil {
		return nil, fmt.Errorf("queue destination requires a redis client")
	}
	return &QueueConnector{client: deps.Redis, queue: queue}, nil
}

func (c *QueueConnector) Kind() string {
	return KindQueue
}

type queueMessage struct {
	ExecutionID     string          `json:"execution_id"`
	FileExecutionID string          `json:"file_execution_id"`
	FileName        string          `json:"file_name"`
	Result          json.RawMessage `json:"result"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

func (c *QueueConnector) Write(ctx context.Context, req WriteRequest) error {
	msg, err := json.Marshal(queueMessage{
		ExecutionID:     req.ExecutionID.String(),
		FileExecutionID: req.FileExecutionID.String(),
		FileName:        req.FileName,
		Result:          req.Artifact,
		Metadata:        req.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	if err := c.client.RPush(ctx, c.queue, msg).Err(); err != nil {
		return fmt.Errorf("failed to push result to queue %s: %w", c.queue, err)
	}
	return nil
}
