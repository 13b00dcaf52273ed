package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"docflow/pkg/api"
)

func writeWorkflowFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write workflow file: %v", err)
	}
	return path
}

func TestCreateCommand_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/workflows") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req api.CreateWorkflowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Name != "invoices" {
			t.Errorf("expected workflow name invoices, got: %s", req.Name)
		}
		if len(req.ToolChain) != 1 || req.ToolChain[0].ToolID != "ocr" {
			t.Errorf("unexpected tool chain: %+v", req.ToolChain)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.CreateWorkflowResponse{WorkflowID: "wf-123"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	file := writeWorkflowFile(t, `{
		"name": "invoices",
		"source": {"kind": "filesystem", "settings": {"root": "/data/in"}},
		"destination": {"kind": "filesystem", "settings": {"directory": "/data/out"}},
		"tool_chain": [{"tool_id": "ocr", "runner": "docker", "image": "docflow/ocr:1.2"}]
	}`)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--file", file})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Workflow created") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, "wf-123") {
		t.Errorf("expected workflow ID in output, got: %s", output)
	}
}

func TestCreateCommand_MissingFileFlag(t *testing.T) {
	resetViper()
	viper.Set("token", "test-token")

	// Reset flags from previous tests
	createCmd.Flags().Set("file", "")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "--file is required") {
		t.Errorf("expected missing flag message, got: %s", stdout.String())
	}
}

func TestCreateCommand_InvalidJSON(t *testing.T) {
	resetViper()
	viper.Set("url", "http://localhost:6161")
	viper.Set("token", "test-token")

	file := writeWorkflowFile(t, "not-valid-json")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--file", file})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Invalid workflow definition") {
		t.Errorf("expected parse error message, got: %s", stdout.String())
	}
}

func TestCreateCommand_ValidationError(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"tool_chain must not be empty"}`))
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	file := writeWorkflowFile(t, `{"name": "empty", "source": {"kind": "filesystem"}, "destination": {"kind": "filesystem"}, "tool_chain": []}`)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--file", file})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Error (400)") {
		t.Errorf("expected 400 error in output, got: %s", stdout.String())
	}
}

func TestCreateCommand_MissingToken(t *testing.T) {
	resetViper()
	viper.Set("url", "http://localhost:6161")
	viper.Set("token", "")

	file := writeWorkflowFile(t, `{"name": "invoices"}`)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--file", file})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "API token not found") {
		t.Errorf("expected token error message, got: %s", stdout.String())
	}
}
