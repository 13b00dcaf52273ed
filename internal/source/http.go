package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConnector lists files from a remote listing endpoint. The endpoint
// returns a JSON array of {path, name, size, mime_type, id} objects.
type HTTPConnector struct {
	listURL string
	client  *http.Client
}

func newHTTPConnector(settings map[string]string) (Connector, error) {
	listURL := settings["list_url"]
	if listURL == "" {
		return nil, fmt.Errorf("http source requires a 'list_url' setting")
	}
	return &HTTPConnector{
		listURL: listURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *HTTPConnector) Kind() string {
	return KindHTTP
}

type httpListingEntry struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	ID       string `json:"id"`
}

func (c *HTTPConnector) List(ctx context.Context) ([]FileEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source listing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source listing returned status %d: %s", resp.StatusCode, body)
	}

	var listing []httpListingEntry
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to parse source listing: %w", err)
	}

	entries := make([]FileEntry, 0, len(listing))
	for _, e := range listing {
		entries = append(entries, FileEntry{
			Path:             e.Path,
			Name:             e.Name,
			Size:             e.Size,
			MimeType:         e.MimeType,
			ProviderFileUUID: e.ID,
		})
	}
	return entries, nil
}

// ContentHash reports ok=false: a remote listing carries no stable byte
// content, so every file is treated as non-cached.
func (c *HTTPConnector) ContentHash(ctx context.Context, entry FileEntry) (string, bool, error) {
	return "", false, nil
}
