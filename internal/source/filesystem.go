package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
)

// FilesystemConnector lists files under a root directory.
type FilesystemConnector struct {
	root string
}

func newFilesystemConnector(settings map[string]string) (Connector, error) {
	root := settings["directory"]
	if root == "" {
		return nil, fmt.Errorf("filesystem source requires a 'directory' setting")
	}
	return &FilesystemConnector{root: root}, nil
}

func (c *FilesystemConnector) Kind() string {
	return KindFilesystem
}

// List walks the root directory recursively. Hidden files are skipped.
func (c *FilesystemConnector) List(ctx context.Context) ([]FileEntry, error) {
	var entries []FileEntry

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if len(name) > 0 && name[0] == '.' {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		entries = append(entries, FileEntry{
			Path:     path,
			Name:     name,
			Size:     info.Size(),
			MimeType: mime.TypeByExtension(filepath.Ext(name)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list source directory %s: %w", c.root, err)
	}

	return entries, nil
}

// ContentHash returns the SHA-256 of the file's bytes. Identical content
// always yields the same hash, which is the dedup key component.
func (c *FilesystemConnector) ContentHash(ctx context.Context, entry FileEntry) (string, bool, error) {
	f, err := os.Open(entry.Path)
	if err != nil {
		return "", false, fmt.Errorf("failed to open %s for hashing: %w", entry.Path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", false, fmt.Errorf("failed to hash %s: %w", entry.Path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), true, nil
}
