package destination

import (
	"context"
)

// APIResponseConnector serves API deployments: the result is returned to
// the caller through the status API rather than shipped anywhere. The
// worker already persists the final result on the file execution row, so
// there is nothing to deliver here.
type APIResponseConnector struct{}

func newAPIResponseConnector(_ map[string]string, _ Deps) (Connector, error) {
	return &APIResponseConnector{}, nil
}

func (c *APIResponseConnector) Kind() string {
	return KindAPIResponse
}

func (c *APIResponseConnector) Write(ctx context.Context, req WriteRequest) error {
	return ctx.Err()
}
