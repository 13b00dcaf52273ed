// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import (
	"encoding/json"
	"time"
)

// CreateOrganizationRequest is the request body for creating a new organization.
type CreateOrganizationRequest struct {
	Name string `json:"name"`
}

// CreateOrganizationResponse is the response body after creating an organization.
type CreateOrganizationResponse struct {
	ID     string `json:"organization_id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

// ConnectorConfig selects a source or destination connector and its settings.
type ConnectorConfig struct {
	Kind     string            `json:"kind"`
	Settings map[string]string `json:"settings,omitempty"`
}

// ToolInstance is one configured step of a workflow's tool chain.
type ToolInstance struct {
	ToolID         string            `json:"tool_id"`
	Runner         string            `json:"runner"`
	Image          string            `json:"image,omitempty"`
	ServiceURL     string            `json:"service_url,omitempty"`
	Settings       map[string]string `json:"settings,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// CreateWorkflowRequest is the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name            string          `json:"name"`
	Source          ConnectorConfig `json:"source"`
	Destination     ConnectorConfig `json:"destination"`
	ToolChain       []ToolInstance  `json:"tool_chain"`
	AllowConcurrent bool            `json:"allow_concurrent,omitempty"`
	NotificationURL string          `json:"notification_url,omitempty"`
}

// CreateWorkflowResponse is the response body after creating a workflow.
type CreateWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
}

// WorkflowResponse is the response body for reading a workflow definition.
type WorkflowResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Source          ConnectorConfig `json:"source"`
	Destination     ConnectorConfig `json:"destination"`
	ToolChain       []ToolInstance  `json:"tool_chain"`
	AllowConcurrent bool            `json:"allow_concurrent"`
	NotificationURL string          `json:"notification_url,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ExecuteWorkflowRequest is the request body for triggering an execution.
type ExecuteWorkflowRequest struct {
	PipelineName string `json:"pipeline_name,omitempty"`
	// UseFileHistory defaults to true; set false to reprocess every file.
	UseFileHistory *bool `json:"use_file_history,omitempty"`
}

// ExecuteWorkflowResponse is the response body after triggering an execution.
type ExecuteWorkflowResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// ExecutionStatusResponse is the response body for execution status queries.
type ExecutionStatusResponse struct {
	ID             string    `json:"id"`
	WorkflowID     string    `json:"workflow_id"`
	PipelineName   string    `json:"pipeline_name"`
	Status         string    `json:"status"`
	TotalFiles     int       `json:"total_files"`
	CompletedFiles int       `json:"completed_files"`
	FailedFiles    int       `json:"failed_files"`
	SkippedFiles   int       `json:"skipped_files"`
	Error          *string   `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ModifiedAt     time.Time `json:"modified_at"`
}

// FileExecutionResponse represents one file of an execution.
type FileExecutionResponse struct {
	ID              string          `json:"id"`
	FileName        string          `json:"file_name"`
	FilePath        string          `json:"file_path"`
	FileSize        int64           `json:"file_size"`
	MimeType        string          `json:"mime_type,omitempty"`
	Status          string          `json:"status"`
	Stage           string          `json:"stage"`
	ToolStepReached int             `json:"tool_step_reached"`
	Error           *string         `json:"error,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	ExecutionTime   *float64        `json:"execution_time,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ModifiedAt      time.Time       `json:"modified_at"`
}

// ListFileExecutionsResponse is the response body for listing an
// execution's files.
type ListFileExecutionsResponse struct {
	Files []FileExecutionResponse `json:"files"`
}

// StopExecutionResponse is the response body after a stop request.
type StopExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// FileHistoryEntry is one memoized (file content, tool config) record.
type FileHistoryEntry struct {
	ID        int64     `json:"id"`
	CacheKey  string    `json:"cache_key"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFileHistoryResponse is the response body for workflow history queries.
type ListFileHistoryResponse struct {
	Entries []FileHistoryEntry `json:"entries"`
}

// ClearFileHistoryResponse reports how many dedup entries were removed.
type ClearFileHistoryResponse struct {
	Cleared int64 `json:"cleared"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
