package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"docflow/pkg/api"
)

func TestStatusCommand_Completed(t *testing.T) {
	resetViper()

	created := time.Now().Add(-10 * time.Minute)
	modified := time.Now().Add(-2 * time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/executions/exec-123") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(api.ExecutionStatusResponse{
			ID:             "exec-123",
			WorkflowID:     "wf-1",
			PipelineName:   "invoices",
			Status:         "COMPLETED",
			TotalFiles:     10,
			CompletedFiles: 8,
			FailedFiles:    2,
			SkippedFiles:   3,
			CreatedAt:      created,
			ModifiedAt:     modified,
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "exec-123"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "exec-123") {
		t.Errorf("expected execution ID in output, got: %s", output)
	}
	if !strings.Contains(output, "COMPLETED") {
		t.Errorf("expected status in output, got: %s", output)
	}
	if !strings.Contains(output, "10/10 files") {
		t.Errorf("expected progress counters in output, got: %s", output)
	}
	if !strings.Contains(output, "2 failed") {
		t.Errorf("expected failed count in output, got: %s", output)
	}
	if !strings.Contains(output, "3 skipped") {
		t.Errorf("expected skipped count in output, got: %s", output)
	}
	if !strings.Contains(output, "Finished:") {
		t.Errorf("expected finish timestamp for terminal execution, got: %s", output)
	}
}

func TestStatusCommand_PendingWithUnknownTotal(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.ExecutionStatusResponse{
			ID:           "exec-456",
			WorkflowID:   "wf-1",
			PipelineName: "invoices",
			Status:       "PENDING",
			TotalFiles:   -1,
			CreatedAt:    time.Now(),
			ModifiedAt:   time.Now(),
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "exec-456"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "dispatching...") {
		t.Errorf("expected dispatching placeholder before totals are known, got: %s", output)
	}
	if strings.Contains(output, "Finished:") {
		t.Errorf("did not expect finish timestamp for a pending execution, got: %s", output)
	}
}

func TestStatusCommand_ErrorState(t *testing.T) {
	resetViper()

	errMsg := "source discovery failed: connection refused"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.ExecutionStatusResponse{
			ID:           "exec-789",
			WorkflowID:   "wf-1",
			PipelineName: "invoices",
			Status:       "ERROR",
			Error:        &errMsg,
			CreatedAt:    time.Now(),
			ModifiedAt:   time.Now(),
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "exec-789"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "ERROR") {
		t.Errorf("expected status in output, got: %s", output)
	}
	if !strings.Contains(output, "source discovery failed") {
		t.Errorf("expected error message in output, got: %s", output)
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Execution not found"))
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "missing"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Error (404)") {
		t.Errorf("expected 404 error in output, got: %s", stdout.String())
	}
}

func TestStatusCommand_MissingToken(t *testing.T) {
	resetViper()

	viper.Set("url", "http://localhost:6161")
	viper.Set("token", "")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "exec-123"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "API token not found") {
		t.Errorf("expected token error message, got: %s", stdout.String())
	}
}

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		name string
		ago  time.Duration
		want string
	}{
		{"seconds", 30 * time.Second, "30s"},
		{"minutes", 5 * time.Minute, "5m"},
		{"hours", 3 * time.Hour, "3h"},
		{"one day", 25 * time.Hour, "1 day"},
		{"days", 72 * time.Hour, "3 days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := relativeTime(time.Now().Add(-tt.ago))
			if got != tt.want {
				t.Errorf("relativeTime(%v ago) = %q, want %q", tt.ago, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}

	for _, tt := range tests {
		got := formatDuration(tt.d)
		if got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
