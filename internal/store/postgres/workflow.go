package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"docflow/internal/store"

	"github.com/google/uuid"
)

// CreateWorkflow inserts a new workflow row. Connector configs and the
// tool chain are stored as JSONB.
func (s *Store) CreateWorkflow(ctx context.Context, tx store.DBTransaction, wf *store.Workflow) error {
	executor := s.getExecutor(tx)

	sourceJSON, err := json.Marshal(wf.Source)
	if err != nil {
		return fmt.Errorf("failed to marshal source config: %w", err)
	}
	destJSON, err := json.Marshal(wf.Destination)
	if err != nil {
		return fmt.Errorf("failed to marshal destination config: %w", err)
	}
	chainJSON, err := json.Marshal(wf.ToolChain)
	if err != nil {
		return fmt.Errorf("failed to marshal tool chain: %w", err)
	}

	query := `
		INSERT INTO workflows (id, organization_id, name, source_config, destination_config, tool_chain, allow_concurrent, notification_url, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err = executor.ExecContext(ctx, query,
		wf.ID,
		wf.OrganizationID,
		wf.Name,
		sourceJSON,
		destJSON,
		chainJSON,
		wf.AllowConcurrent,
		wf.NotificationURL,
		wf.CreatedAt,
	)
	return err
}

func (s *Store) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*store.Workflow, error) {
	query := `
		SELECT id, organization_id, name, source_config, destination_config, tool_chain, allow_concurrent, notification_url, created_at, modified_at
		FROM workflows WHERE id = $1
	`

	var wf store.Workflow
	var sourceJSON, destJSON, chainJSON []byte

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&wf.ID, &wf.OrganizationID, &wf.Name,
		&sourceJSON, &destJSON, &chainJSON,
		&wf.AllowConcurrent, &wf.NotificationURL,
		&wf.CreatedAt, &wf.ModifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(sourceJSON, &wf.Source); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source config: %w", err)
	}
	if err := json.Unmarshal(destJSON, &wf.Destination); err != nil {
		return nil, fmt.Errorf("failed to unmarshal destination config: %w", err)
	}
	if err := json.Unmarshal(chainJSON, &wf.ToolChain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool chain: %w", err)
	}

	return &wf, nil
}
