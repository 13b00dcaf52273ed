package toolrunner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// HTTPRunner invokes tools backed by a dedicated extraction service.
// One POST per step: the service receives the artifact plus the previous
// step's metadata and returns the transformed artifact.
type HTTPRunner struct {
	client *http.Client
}

// NewHTTPRunner creates an HTTP-backed runner. The zero timeout leaves
// deadline control to the per-file context.
func NewHTTPRunner() *HTTPRunner {
	return &HTTPRunner{client: &http.Client{}}
}

func (h *HTTPRunner) Kind() string {
	return KindHTTP
}

type httpToolRequest struct {
	ToolID   string            `json:"tool_id"`
	FileName string            `json:"file_name"`
	Artifact string            `json:"artifact"` // base64
	Metadata json.RawMessage   `json:"metadata,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

type httpToolResponse struct {
	Artifact string          `json:"artifact"` // base64
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Invoke posts the artifact to the tool service. 4xx responses and
// tool-reported errors are tool errors; transport failures and 5xx are
// infrastructure errors eligible for queue-level retry.
func (h *HTTPRunner) Invoke(ctx context.Context, in Input) Result {
	if in.Tool.ServiceURL == "" {
		return toolErr("tool %s has no service_url configured", in.Tool.ToolID)
	}

	artifact, err := os.ReadFile(in.ArtifactPath)
	if err != nil {
		return infraErr("failed to read input artifact: %v", err)
	}

	body, err := json.Marshal(httpToolRequest{
		ToolID:   in.Tool.ToolID,
		FileName: in.FileName,
		Artifact: base64.StdEncoding.EncodeToString(artifact),
		Metadata: in.Metadata,
		Settings: in.Tool.Settings,
	})
	if err != nil {
		return infraErr("failed to marshal tool request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, in.Tool.ServiceURL, bytes.NewReader(body))
	if err != nil {
		return infraErr("failed to create tool request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{Err: &Error{Kind: ErrorKindTimeout, Message: "tool invocation timed out"}}
		}
		return infraErr("tool request failed: %v", err)
	}
	defer resp.Body.Close()

	var toolResp httpToolResponse
	if err := json.NewDecoder(resp.Body).Decode(&toolResp); err != nil {
		return infraErr("failed to parse tool response (status %d): %v", resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return infraErr("tool service returned status %d: %s", resp.StatusCode, toolResp.Error)
	case resp.StatusCode >= 400:
		return toolErr("tool %s rejected the file: %s", in.Tool.ToolID, toolResp.Error)
	case toolResp.Error != "":
		return toolErr("tool %s failed: %s", in.Tool.ToolID, toolResp.Error)
	}

	output, err := base64.StdEncoding.DecodeString(toolResp.Artifact)
	if err != nil {
		return infraErr("tool returned invalid artifact encoding: %v", err)
	}

	outputPath := filepath.Join(in.WorkDir, fmt.Sprintf("step-%d-output", in.Step))
	if err := os.WriteFile(outputPath, output, 0o644); err != nil {
		return infraErr("failed to write output artifact: %v", err)
	}

	return Result{OutputArtifact: outputPath, Metadata: toolResp.Metadata}
}
