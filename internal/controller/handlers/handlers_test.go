package handlers

import (
	"context"
	"database/sql"
	"time"

	"docflow/internal/store"

	"github.com/google/uuid"
)

// Mock transaction
type mockTx struct{}

func (m *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (m *mockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (m *mockTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (m *mockTx) Commit() error { return nil }

func (m *mockTx) Rollback() error { return nil }

// Mock Store
type mockStore struct {
	beginTxErr error
	pingErr    error

	// Organization hooks
	createOrgErr error

	// Workflow hooks
	createWorkflowErr error
	getWorkflowResp   *store.Workflow
	getWorkflowErr    error

	// Execution hooks
	getExecutionResp *store.WorkflowExecution
	getExecutionErr  error

	// File execution hooks
	listFileExecsResp []store.FileExecution
	listFileExecsErr  error

	// File history hooks
	listHistoryResp []store.FileHistory
	listHistoryErr  error
	clearedResp     int64
	clearErr        error

	// Spies (to verify arguments passed by handlers)
	capturedWorkflow *store.Workflow
	capturedLimit    int
}

func (m *mockStore) BeginTx(ctx context.Context) (store.Tx, error) {
	if m.beginTxErr != nil {
		return nil, m.beginTxErr
	}
	return &mockTx{}, nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStore) CreateOrganization(ctx context.Context, org *store.Organization, hashedKey string) error {
	return m.createOrgErr
}

func (m *mockStore) GetOrganizationByID(ctx context.Context, id uuid.UUID) (*store.Organization, error) {
	return nil, store.ErrNotFound // Not used in handlers
}

func (m *mockStore) GetOrganizationByAPIKeyHash(ctx context.Context, hash string) (*store.Organization, error) {
	return nil, store.ErrNotFound // Handled by Auth Middleware, not Handlers
}

func (m *mockStore) CreateWorkflow(ctx context.Context, tx store.DBTransaction, wf *store.Workflow) error {
	m.capturedWorkflow = wf
	return m.createWorkflowErr
}

func (m *mockStore) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*store.Workflow, error) {
	return m.getWorkflowResp, m.getWorkflowErr
}

func (m *mockStore) CreateWorkflowExecution(ctx context.Context, tx store.DBTransaction, we *store.WorkflowExecution) error {
	return nil
}

func (m *mockStore) GetWorkflowExecutionByID(ctx context.Context, id uuid.UUID) (*store.WorkflowExecution, error) {
	return m.getExecutionResp, m.getExecutionErr
}

func (m *mockStore) UpdateExecutionStatus(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.ExecutionStatus, errorMessage *string) error {
	return nil
}

func (m *mockStore) SetExecutionTotals(ctx context.Context, tx store.DBTransaction, id uuid.UUID, totalFiles, skippedFiles int) error {
	return nil
}

func (m *mockStore) FinalizeExecution(ctx context.Context, id uuid.UUID, status store.ExecutionStatus, completedFiles, failedFiles int) (bool, error) {
	return false, nil
}

func (m *mockStore) ListStaleExecutions(ctx context.Context, olderThan time.Time, limit int) ([]store.WorkflowExecution, error) {
	return nil, nil
}

func (m *mockStore) CountActiveExecutions(ctx context.Context, tx store.DBTransaction, workflowID uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *mockStore) CreateFileExecution(ctx context.Context, tx store.DBTransaction, fe *store.FileExecution) error {
	return nil
}

func (m *mockStore) GetFileExecutionByID(ctx context.Context, id uuid.UUID) (*store.FileExecution, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) ListFileExecutions(ctx context.Context, executionID uuid.UUID) ([]store.FileExecution, error) {
	return m.listFileExecsResp, m.listFileExecsErr
}

func (m *mockStore) UpdateFileExecutionState(ctx context.Context, id uuid.UUID, status store.FileStatus, stage store.FileStage, toolStep int) error {
	return nil
}

func (m *mockStore) CompleteFileExecution(ctx context.Context, id uuid.UUID, status store.FileStatus, result []byte, errorMessage *string, executionTime float64) error {
	return nil
}

func (m *mockStore) GetFileHistory(ctx context.Context, workflowID uuid.UUID, cacheKey string) (*store.FileHistory, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) UpsertFileHistory(ctx context.Context, fh *store.FileHistory) error {
	return nil
}

func (m *mockStore) ListFileHistory(ctx context.Context, workflowID uuid.UUID, limit int) ([]store.FileHistory, error) {
	m.capturedLimit = limit
	return m.listHistoryResp, m.listHistoryErr
}

func (m *mockStore) ClearFileHistory(ctx context.Context, workflowID uuid.UUID) (int64, error) {
	return m.clearedResp, m.clearErr
}
