package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"docflow/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestCreateFileExecution_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	fe := &store.FileExecution{
		ID:                  uuid.New(),
		WorkflowExecutionID: uuid.New(),
		FileName:            "invoice-01.pdf",
		FilePath:            "in/invoice-01.pdf",
		FileHash:            "abc123",
		FileSize:            1024,
		Status:              store.FileStatusQueued,
		Stage:               store.FileStageInitiated,
		CreatedAt:           time.Now(),
	}

	mock.ExpectExec(`INSERT INTO file_executions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.CreateFileExecution(context.Background(), nil, fe); err != nil {
		t.Fatalf("CreateFileExecution failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetFileExecutionByID_NotFound(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT .* FROM file_executions WHERE id`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := st.GetFileExecutionByID(context.Background(), id)
	if err != store.ErrNotFound {
		t.Errorf("got %v, want store.ErrNotFound", err)
	}
}

func TestListFileExecutions_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	execID := uuid.New()
	cols := []string{
		"id", "workflow_execution_id", "file_name", "file_path", "file_hash",
		"file_size", "mime_type", "status", "stage", "tool_step_reached",
		"error_message", "result", "execution_time", "created_at", "modified_at",
	}

	mock.ExpectQuery(`SELECT .* FROM file_executions\s+WHERE workflow_execution_id`).
		WithArgs(execID).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(uuid.New(), execID, "a.pdf", "in/a.pdf", "h1", int64(100), "application/pdf",
				"COMPLETED", "COMPLETED", 2, nil, []byte(`{}`), 1.5, time.Now(), time.Now()).
			AddRow(uuid.New(), execID, "b.pdf", "in/b.pdf", "h2", int64(200), "application/pdf",
				"ERROR", "COMPLETED", 1, "boom", []byte(`{}`), 0.5, time.Now(), time.Now()))

	files, err := st.ListFileExecutions(context.Background(), execID)
	if err != nil {
		t.Fatalf("ListFileExecutions failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].FileName != "a.pdf" {
		t.Errorf("got file name %s, want a.pdf", files[0].FileName)
	}
	if files[1].Status != store.FileStatusError {
		t.Errorf("got status %s, want ERROR", files[1].Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateFileExecutionState_ExcludesTerminalRows(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	id := uuid.New()
	mock.ExpectExec(`UPDATE file_executions\s+SET status = \$1, stage = \$2, tool_step_reached = \$3, modified_at = NOW\(\)\s+WHERE id = \$4 AND status NOT IN`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.UpdateFileExecutionState(context.Background(), id,
		store.FileStatusExecuting, store.FileStageInProgress, 1)
	if err != nil {
		t.Fatalf("UpdateFileExecutionState failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCompleteFileExecution_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	id := uuid.New()
	errMsg := "step 1 (ocr): tool failed"

	mock.ExpectExec(`UPDATE file_executions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.CompleteFileExecution(context.Background(), id,
		store.FileStatusError, nil, &errMsg, 2.5)
	if err != nil {
		t.Fatalf("CompleteFileExecution failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
