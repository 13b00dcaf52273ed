package destination

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemConnector writes result artifacts into an output directory.
type FilesystemConnector struct {
	dir string
}

func newFilesystemConnector(settings map[string]string, _ Deps) (Connector, error) {
	dir := settings["directory"]
	if dir == "" {
		return nil, fmt.Errorf("filesystem destination requires a 'directory' setting")
	}
	return &FilesystemConnector{dir: dir}, nil
}

func (c *FilesystemConnector) Kind() string {
	return KindFilesystem
}

// Write stores the artifact as <directory>/<execution-id>/<file-name>.
// The per-execution subdirectory keeps re-runs from clobbering each other.
func (c *FilesystemConnector) Write(ctx context.Context, req WriteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	outDir := filepath.Join(c.dir, req.ExecutionID.String())
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outPath := filepath.Join(outDir, req.FileName)
	if err := os.WriteFile(outPath, req.Artifact, 0o644); err != nil {
		return fmt.Errorf("failed to write result for %s: %w", req.FileName, err)
	}
	return nil
}
