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

func TestCreateWorkflow_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	wf := &store.Workflow{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           "invoices",
		Source:         store.ConnectorConfig{Kind: "filesystem", Settings: map[string]string{"root": "/in"}},
		Destination:    store.ConnectorConfig{Kind: "filesystem", Settings: map[string]string{"directory": "/out"}},
		ToolChain: []store.ToolInstance{
			{ToolID: "ocr", Runner: "docker", Image: "docflow/ocr:1.2"},
		},
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO workflows`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.CreateWorkflow(context.Background(), nil, wf); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetWorkflowByID_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	wfID := uuid.New()
	orgID := uuid.New()
	cols := []string{
		"id", "organization_id", "name", "source_config", "destination_config",
		"tool_chain", "allow_concurrent", "notification_url", "created_at", "modified_at",
	}

	mock.ExpectQuery(`SELECT .* FROM workflows WHERE id`).
		WithArgs(wfID).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			wfID, orgID, "invoices",
			[]byte(`{"kind":"filesystem","settings":{"root":"/in"}}`),
			[]byte(`{"kind":"filesystem","settings":{"directory":"/out"}}`),
			[]byte(`[{"tool_id":"ocr","runner":"docker","image":"docflow/ocr:1.2"}]`),
			false, "", time.Now(), time.Now(),
		))

	wf, err := st.GetWorkflowByID(context.Background(), wfID)
	if err != nil {
		t.Fatalf("GetWorkflowByID failed: %v", err)
	}
	if wf.Source.Kind != "filesystem" {
		t.Errorf("got source kind %s, want filesystem", wf.Source.Kind)
	}
	if len(wf.ToolChain) != 1 || wf.ToolChain[0].ToolID != "ocr" {
		t.Errorf("unexpected tool chain: %+v", wf.ToolChain)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetWorkflowByID_NotFound(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	wfID := uuid.New()
	mock.ExpectQuery(`SELECT .* FROM workflows WHERE id`).
		WithArgs(wfID).
		WillReturnError(sql.ErrNoRows)

	_, err := st.GetWorkflowByID(context.Background(), wfID)
	if err != store.ErrNotFound {
		t.Errorf("got %v, want store.ErrNotFound", err)
	}
}

func TestGetWorkflowByID_CorruptToolChain(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	wfID := uuid.New()
	cols := []string{
		"id", "organization_id", "name", "source_config", "destination_config",
		"tool_chain", "allow_concurrent", "notification_url", "created_at", "modified_at",
	}

	mock.ExpectQuery(`SELECT .* FROM workflows WHERE id`).
		WithArgs(wfID).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			wfID, uuid.New(), "invoices",
			[]byte(`{"kind":"filesystem"}`),
			[]byte(`{"kind":"filesystem"}`),
			[]byte(`not-json`),
			false, "", time.Now(), time.Now(),
		))

	_, err := st.GetWorkflowByID(context.Background(), wfID)
	if err == nil {
		t.Error("expected error for corrupt tool chain JSON")
	}
}
