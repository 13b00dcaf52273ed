package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestEnqueueFile_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	fileExecID := uuid.New()
	payload := json.RawMessage(`{"file_name": "a.pdf"}`)
	expectedQueueID := int64(42)

	mock.ExpectQuery(`INSERT INTO file_queue`).
		WithArgs(fileExecID, payload).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(expectedQueueID))

	id, err := st.EnqueueFile(ctx, nil, fileExecID, payload)
	if err != nil {
		t.Fatalf("EnqueueFile failed: %v", err)
	}
	if id != expectedQueueID {
		t.Errorf("got id %d, want %d", id, expectedQueueID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestEnqueueFile_InsertError(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	fileExecID := uuid.New()

	mock.ExpectQuery(`INSERT INTO file_queue`).
		WillReturnError(sql.ErrConnDone)

	_, err := st.EnqueueFile(ctx, nil, fileExecID, json.RawMessage(`{}`))
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestDequeueFiles_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	file1 := uuid.New()
	file2 := uuid.New()
	payload1 := json.RawMessage(`{"file_name": "a.pdf"}`)
	payload2 := json.RawMessage(`{"file_name": "b.pdf"}`)

	mock.ExpectBegin()

	// SELECT ... FOR UPDATE SKIP LOCKED LIMIT 3
	mock.ExpectQuery(`SELECT id, file_execution_id, payload, attempt FROM file_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_execution_id", "payload", "attempt"}).
			AddRow(int64(1), file1, payload1, 0).
			AddRow(int64(2), file2, payload2, 1))

	// Bulk UPDATE visibility timeout + attempt + fresh lease
	mock.ExpectExec(`UPDATE file_queue\s+SET visible_after = .+, attempt = attempt \+ 1, lease =`).
		WithArgs(VisibilityTimeout.Seconds(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	// Claimed files move QUEUED -> PENDING
	mock.ExpectExec(`UPDATE file_executions`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	mock.ExpectCommit()

	items, err := st.DequeueFiles(ctx, 3)
	if err != nil {
		t.Fatalf("DequeueFiles failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].FileExecutionID != file1 {
		t.Errorf("got file execution %v, want %v", items[0].FileExecutionID, file1)
	}
	if items[1].Attempt != 1 {
		t.Errorf("got attempt %d, want 1", items[1].Attempt)
	}
	if items[0].Lease == uuid.Nil {
		t.Error("claimed items must carry a lease")
	}
	if items[0].Lease != items[1].Lease {
		t.Errorf("one claim batch must share one lease: %v vs %v", items[0].Lease, items[1].Lease)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDequeueFiles_QueryStructure(t *testing.T) {
	// Verify the generated SQL keeps FIFO order and SKIP LOCKED. This
	// catches regression if someone deletes the claiming logic.
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, file_execution_id, payload, attempt\s+FROM file_queue\s+WHERE visible_after <= NOW\(\)\s+ORDER BY created_at ASC\s+FOR UPDATE SKIP LOCKED`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_execution_id", "payload", "attempt"}).
			AddRow(int64(100), uuid.New(), []byte("{}"), 0))

	mock.ExpectExec(`UPDATE file_queue`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE file_executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	items, err := st.DequeueFiles(ctx, 1)
	if err != nil {
		t.Fatalf("DequeueFiles failed: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDequeueFiles_EmptyQueue(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, file_execution_id, payload, attempt FROM file_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_execution_id", "payload", "attempt"}))
	mock.ExpectRollback()

	items, err := st.DequeueFiles(ctx, 5)
	if err != nil {
		t.Errorf("expected no error for empty queue, got %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected 0 items, got %d", len(items))
	}
}

func TestDequeueFiles_LimitDefaultsToOne(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, file_execution_id, payload, attempt FROM file_queue`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_execution_id", "payload", "attempt"}))
	mock.ExpectRollback()

	// Limit of 0 should default to 1
	_, err := st.DequeueFiles(ctx, 0)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAckFile_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	fileExecID := uuid.New()

	mock.ExpectExec(`DELETE FROM file_queue`).
		WithArgs(fileExecID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.AckFile(ctx, nil, fileExecID); err != nil {
		t.Fatalf("AckFile failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRetryFile_WithBackoff(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	fileExecID := uuid.New()
	currentAttempt := 2 // Less than MaxRetries (5)

	mock.ExpectQuery(`SELECT attempt FROM file_queue`).
		WithArgs(fileExecID).
		WillReturnRows(sqlmock.NewRows([]string{"attempt"}).AddRow(currentAttempt))

	// Exponential backoff: 10 * 2^2 = 40 seconds. The same UPDATE must
	// drop the lease so a heartbeat from the released claim cannot push
	// the item back out to a full visibility window.
	expectedBackoff := time.Duration(10*(1<<currentAttempt)) * time.Second
	mock.ExpectExec(`UPDATE file_queue\s+SET visible_after = .+, lease = NULL\s+WHERE file_execution_id`).
		WithArgs(expectedBackoff.Seconds(), fileExecID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	exhausted, err := st.RetryFile(ctx, fileExecID, "temporary error")
	if err != nil {
		t.Fatalf("RetryFile failed: %v", err)
	}
	if exhausted {
		t.Error("expected exhausted=false for attempt under the ceiling")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRetryFile_Exhausted(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	fileExecID := uuid.New()

	mock.ExpectQuery(`SELECT attempt FROM file_queue`).
		WithArgs(fileExecID).
		WillReturnRows(sqlmock.NewRows([]string{"attempt"}).AddRow(MaxRetries + 1))

	mock.ExpectExec(`DELETE FROM file_queue`).
		WithArgs(fileExecID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	exhausted, err := st.RetryFile(ctx, fileExecID, "retries exhausted")
	if err != nil {
		t.Fatalf("RetryFile exhausted failed: %v", err)
	}
	if !exhausted {
		t.Error("expected exhausted=true once attempts exceed the ceiling")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRetryFile_ItemGoneTreatedAsExhausted(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	fileExecID := uuid.New()

	mock.ExpectQuery(`SELECT attempt FROM file_queue`).
		WithArgs(fileExecID).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectExec(`DELETE FROM file_queue`).
		WithArgs(fileExecID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	exhausted, err := st.RetryFile(ctx, fileExecID, "item vanished")
	if err != nil {
		t.Fatalf("RetryFile failed: %v", err)
	}
	if !exhausted {
		t.Error("expected exhausted=true when the item is already gone")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestExtendFileVisibility_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	fileExecID := uuid.New()
	lease := uuid.New()
	visibleAfter := time.Now().Add(10 * time.Minute)

	mock.ExpectExec(`UPDATE file_queue`).
		WithArgs(visibleAfter, fileExecID, lease).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.ExtendFileVisibility(ctx, fileExecID, lease, visibleAfter); err != nil {
		t.Fatalf("ExtendFileVisibility failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestExtendFileVisibility_GuardedByLease(t *testing.T) {
	// A heartbeat from a released claim must match zero rows: the UPDATE
	// filters on the lease, and retry scheduling clears it.
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	fileExecID := uuid.New()
	staleLease := uuid.New()
	visibleAfter := time.Now().Add(5 * time.Minute)

	mock.ExpectExec(`UPDATE file_queue\s+SET visible_after = \$1\s+WHERE file_execution_id = \$2 AND lease = \$3`).
		WithArgs(visibleAfter, fileExecID, staleLease).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.ExtendFileVisibility(ctx, fileExecID, staleLease, visibleAfter); err != nil {
		t.Fatalf("ExtendFileVisibility failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPurgeQueuedFiles_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	execID := uuid.New()

	mock.ExpectBegin()

	// Unclaimed queue items deleted
	mock.ExpectExec(`DELETE FROM file_queue`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	// Matching QUEUED file rows errored
	mock.ExpectExec(`UPDATE file_executions`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	mock.ExpectCommit()

	purged, err := st.PurgeQueuedFiles(ctx, execID)
	if err != nil {
		t.Fatalf("PurgeQueuedFiles failed: %v", err)
	}
	if purged != 3 {
		t.Errorf("got purged %d, want 3", purged)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestEnqueueCallback_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()
	payload := json.RawMessage(`{"execution_id": "x"}`)

	mock.ExpectQuery(`INSERT INTO callback_queue`).
		WithArgs(payload).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := st.EnqueueCallback(ctx, nil, payload)
	if err != nil {
		t.Fatalf("EnqueueCallback failed: %v", err)
	}
	if id != 7 {
		t.Errorf("got id %d, want 7", id)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDequeueCallbacks_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, payload\s+FROM callback_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload"}).
			AddRow(int64(1), []byte(`{"a":1}`)).
			AddRow(int64(2), []byte(`{"a":2}`)))
	mock.ExpectExec(`UPDATE callback_queue`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	items, err := st.DequeueCallbacks(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueCallbacks failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != 1 || items[1].ID != 2 {
		t.Errorf("unexpected item IDs: %d, %d", items[0].ID, items[1].ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDequeueCallbacks_EmptyQueue(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, payload\s+FROM callback_queue`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload"}))
	mock.ExpectRollback()

	items, err := st.DequeueCallbacks(ctx, 10)
	if err != nil {
		t.Errorf("expected no error for empty queue, got %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected 0 items, got %d", len(items))
	}
}

func TestAckCallback_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	mock.ExpectExec(`DELETE FROM callback_queue`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.AckCallback(context.Background(), 9); err != nil {
		t.Fatalf("AckCallback failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRetryCallback_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	mock.ExpectExec(`UPDATE callback_queue`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.RetryCallback(context.Background(), 9); err != nil {
		t.Fatalf("RetryCallback failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
