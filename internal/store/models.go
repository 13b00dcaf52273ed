// Package store contains the database layer for docflow.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant in the multi-tenant system.
// All operations must be scoped by OrganizationID.
type Organization struct {
	ID                      uuid.UUID
	Name                    string
	RateLimit               int
	RateLimitBurst          int
	MaxConcurrentExecutions int
	CreatedAt               time.Time
}

// Workflow is a user-defined chain of tools plus source/destination
// endpoint configuration. The tool chain is stored ordered; executions
// snapshot it at dispatch time so later edits never affect in-flight runs.
type Workflow struct {
	ID              uuid.UUID
	OrganizationID  uuid.UUID
	Name            string
	Source          ConnectorConfig
	Destination     ConnectorConfig
	ToolChain       []ToolInstance
	AllowConcurrent bool
	NotificationURL string
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

// ConnectorConfig selects a source or destination connector variant and
// carries its settings. Kind is validated against the compile-time
// connector registry, never against importable module paths.
type ConnectorConfig struct {
	Kind     string            `json:"kind"`
	Settings map[string]string `json:"settings,omitempty"`
}

// ToolInstance is one configured step of a workflow's tool chain.
type ToolInstance struct {
	ToolID string `json:"tool_id"`
	// Runner selects the invocation backend ("docker" or "http").
	Runner string `json:"runner"`
	// Image identifies the tool version for container runners (image:tag).
	Image string `json:"image,omitempty"`
	// ServiceURL is the endpoint for HTTP-backed tools.
	ServiceURL string            `json:"service_url,omitempty"`
	Settings   map[string]string `json:"settings,omitempty"`
	// TimeoutSeconds bounds one invocation of this step. Zero means the
	// per-file default applies.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// WorkflowExecution is the durable aggregate root for one triggered run.
type WorkflowExecution struct {
	ID             uuid.UUID
	WorkflowID     uuid.UUID
	OrganizationID uuid.UUID
	PipelineName   string
	Status         ExecutionStatus
	TotalFiles     int
	CompletedFiles int
	FailedFiles    int
	SkippedFiles   int
	ErrorMessage   *string
	TaskID         *string
	CreatedAt      time.Time
	ModifiedAt     time.Time
}

// ExecutionStatus is the state machine for a WorkflowExecution.
// Transitions are monotonic: PENDING -> EXECUTING -> {COMPLETED|ERROR|STOPPED}.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusExecuting ExecutionStatus = "EXECUTING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusError     ExecutionStatus = "ERROR"
	ExecutionStatusStopped   ExecutionStatus = "STOPPED"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusError, ExecutionStatusStopped:
		return true
	}
	return false
}

// FileExecution is the durable per-file state machine, child of exactly
// one WorkflowExecution. Created at dispatch time, one per input file.
type FileExecution struct {
	ID                  uuid.UUID
	WorkflowExecutionID uuid.UUID
	FileName            string
	FilePath            string
	FileHash            string
	FileSize            int64
	MimeType            string
	Status              FileStatus
	Stage               FileStage
	ToolStepReached     int
	ErrorMessage        *string
	Result              json.RawMessage
	ExecutionTime       *float64
	CreatedAt           time.Time
	ModifiedAt          time.Time
}

// FileStatus tracks one file through its processing attempt.
// QUEUED -> PENDING -> EXECUTING -> {COMPLETED|ERROR}. No resurrection
// from a terminal state; a queue-level retry restarts the whole chain
// against the same row.
type FileStatus string

const (
	FileStatusQueued    FileStatus = "QUEUED"
	FileStatusPending   FileStatus = "PENDING"
	FileStatusExecuting FileStatus = "EXECUTING"
	FileStatusCompleted FileStatus = "COMPLETED"
	FileStatusError     FileStatus = "ERROR"
)

// Terminal reports whether the file reached a final outcome.
func (s FileStatus) Terminal() bool {
	return s == FileStatusCompleted || s == FileStatusError
}

// FileStage reflects how far the processing attempt got, independent of
// outcome: COMPLETED means "attempt finished", even for errored files.
type FileStage string

const (
	FileStageInitiated  FileStage = "INITIATED"
	FileStageInProgress FileStage = "IN_PROGRESS"
	FileStageCompleted  FileStage = "COMPLETED"
)

// FileHistory is the durable memoization record that lets the orchestrator
// skip re-processing an unchanged (file content, tool config) pair.
// Unique on (workflow_id, cache_key) as a hard constraint.
type FileHistory struct {
	ID         int64
	WorkflowID uuid.UUID
	CacheKey   string
	Status     FileStatus
	Result     json.RawMessage
	Error      *string
	MetaData   json.RawMessage
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// FileHash is the immutable descriptor of one discovered input file, the
// unit of work throughout dispatch. Serialized into queue payloads and
// never mutated after dispatch.
type FileHash struct {
	FilePath             string `json:"file_path"`
	FileName             string `json:"file_name"`
	ContentHash          string `json:"content_hash,omitempty"`
	FileSize             int64  `json:"file_size"`
	MimeType             string `json:"mime_type,omitempty"`
	SourceConnectionType string `json:"source_connection_type"`
	ProviderFileUUID     string `json:"provider_file_uuid,omitempty"`
	FileDestination      string `json:"file_destination,omitempty"`
	IsExecuted           bool   `json:"is_executed"`
}
