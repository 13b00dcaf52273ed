package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"docflow/internal/store"
)

// Discovery resolves the candidate file set for one execution and tags
// files already memoized against the current tool configuration.
type Discovery struct {
	history store.FileHistoryStore
}

// NewDiscovery creates a Discovery backed by the given history store.
func NewDiscovery(history store.FileHistoryStore) *Discovery {
	return &Discovery{history: history}
}

// DiscoveredFile pairs a FileHash with its dedup cache key. CacheKey is
// empty when the connector could not supply a content hash.
type DiscoveredFile struct {
	Hash     store.FileHash
	CacheKey string
}

// ToolChainFingerprint hashes the ordered tool-chain configuration. The
// same file content against a different chain is a cache miss.
func ToolChainFingerprint(chain []store.ToolInstance) string {
	// json.Marshal of the ordered slice is deterministic for these structs.
	b, _ := json.Marshal(chain)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CacheKey combines content hash and tool-chain fingerprint into the
// FileHistory lookup key.
func CacheKey(contentHash, fingerprint string) string {
	sum := sha256.Sum256([]byte(contentHash + ":" + fingerprint))
	return hex.EncodeToString(sum[:])
}

// Discover lists the source, hashes content where the connector supports
// it, and marks files whose (content, tool config) pair already completed
// as IsExecuted so the orchestrator can skip dispatching them.
// useFileHistory=false disables the lookup and reprocesses everything.
func (d *Discovery) Discover(ctx context.Context, conn Connector, workflow *store.Workflow, useFileHistory bool) ([]DiscoveredFile, error) {
	entries, err := conn.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("source listing failed: %w", err)
	}

	fingerprint := ToolChainFingerprint(workflow.ToolChain)

	files := make([]DiscoveredFile, 0, len(entries))
	for _, entry := range entries {
		fh := store.FileHash{
			FilePath:             entry.Path,
			FileName:             entry.Name,
			FileSize:             entry.Size,
			MimeType:             entry.MimeType,
			SourceConnectionType: conn.Kind(),
			ProviderFileUUID:     entry.ProviderFileUUID,
		}

		contentHash, ok, err := conn.ContentHash(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("content hashing failed for %s: %w", entry.Path, err)
		}

		df := DiscoveredFile{Hash: fh}
		if ok {
			df.Hash.ContentHash = contentHash
			df.CacheKey = CacheKey(contentHash, fingerprint)
		}

		if useFileHistory && df.CacheKey != "" {
			hist, err := d.history.GetFileHistory(ctx, workflow.ID, df.CacheKey)
			switch {
			case err == nil && hist.Status == store.FileStatusCompleted:
				df.Hash.IsExecuted = true
			case err != nil && !errors.Is(err, store.ErrNotFound):
				return nil, fmt.Errorf("file history lookup failed: %w", err)
			}
		}

		files = append(files, df)
	}

	return files, nil
}
