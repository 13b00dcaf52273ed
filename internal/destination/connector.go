// Package destination provides destination connectors for processed
// results and derived files.
package destination

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"docflow/internal/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Connector kinds. Like sources, destinations form a fixed compile-time
// enumeration validated against workflow configs.
const (
	KindFilesystem  = "filesystem"
	KindDatabase    = "database"
	KindQueue       = "queue"
	KindAPIResponse = "api_response"
)

// WriteRequest carries one file's final artifact to a destination.
type WriteRequest struct {
	ExecutionID     uuid.UUID
	FileExecutionID uuid.UUID
	FileName        string
	Artifact        []byte
	Metadata        []byte
}

// Connector abstracts where results go.
type Connector interface {
	Kind() string

	// Write delivers one result. A failed write is a per-file error; it
	// never aborts sibling files.
	Write(ctx context.Context, req WriteRequest) error
}

// Deps are the shared handles connector variants draw on.
type Deps struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

type factory func(settings map[string]string, deps Deps) (Connector, error)

var registry = map[string]factory{
	KindFilesystem:  newFilesystemConnector,
	KindDatabase:    newDatabaseConnector,
	KindQueue:       newQueueConnector,
	KindAPIResponse: newAPIResponseConnector,
}

// New builds the connector selected by the workflow's destination config.
func New(cfg store.ConnectorConfig, deps Deps) (Connector, error) {
	f, ok := registry[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown destination connector kind %q (known: %v)", cfg.Kind, Kinds())
	}
	return f(cfg.Settings, deps)
}

// Kinds returns the registered connector kinds, sorted for stable errors.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
