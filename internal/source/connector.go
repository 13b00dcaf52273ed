// Package source provides source connectors and input-file discovery.
package source

import (
	"context"
	"fmt"
	"sort"

	"docflow/internal/store"
)

// Connector kinds. This is the complete, compile-time enumeration of
// source variants; workflow configs are validated against it rather than
// against loadable module paths.
const (
	KindFilesystem = "filesystem"
	KindHTTP       = "http"
)

// FileEntry is one file reported by a source listing.
type FileEntry struct {
	Path             string
	Name             string
	Size             int64
	MimeType         string
	ProviderFileUUID string
}

// Connector abstracts where input files come from.
type Connector interface {
	// Kind returns the registry kind of this connector.
	Kind() string

	// List enumerates candidate input files. Errors here are dispatch-time
	// hard failures for the whole execution; they are not retried.
	List(ctx context.Context) ([]FileEntry, error)

	// ContentHash computes the stable content hash for an entry, or
	// returns ok=false when the connector cannot supply one (streaming
	// sources). Files without a hash bypass the dedup cache entirely.
	ContentHash(ctx context.Context, entry FileEntry) (hash string, ok bool, err error)
}

type factory func(settings map[string]string) (Connector, error)

// registry is the fixed enumeration of source connector constructors.
var registry = map[string]factory{
	KindFilesystem: newFilesystemConnector,
	KindHTTP:       newHTTPConnector,
}

// New builds the connector selected by the workflow's source config.
func New(cfg store.ConnectorConfig) (Connector, error) {
	f, ok := registry[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown source connector kind %q (known: %v)", cfg.Kind, Kinds())
	}
	return f(cfg.Settings)
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
