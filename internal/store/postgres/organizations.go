package postgres

import (
	"context"
	"database/sql"
	"errors"

	"docflow/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreateOrganization(ctx context.Context, org *store.Organization, hashedKey string) error {
	query := `
		INSERT INTO organizations (id, name, api_key_hash, rate_limit, rate_limit_burst, max_concurrent_executions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		hashedKey,
		org.RateLimit,
		org.RateLimitBurst,
		org.MaxConcurrentExecutions,
		org.CreatedAt,
	)
	return err
}

func (s *Store) GetOrganizationByID(ctx context.Context, id uuid.UUID) (*store.Organization, error) {
	query := "SELECT id, name, rate_limit, rate_limit_burst, max_concurrent_executions, created_at FROM organizations WHERE id = $1"
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) GetOrganizationByAPIKeyHash(ctx context.Context, hash string) (*store.Organization, error) {
	query := "SELECT id, name, rate_limit, rate_limit_burst, max_concurrent_executions, created_at FROM organizations WHERE api_key_hash = $1"
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, hash))
}

func (s *Store) scanOrganization(row *sql.Row) (*store.Organization, error) {
	var org store.Organization
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.RateLimit,
		&org.RateLimitBurst,
		&org.MaxConcurrentExecutions,
		&org.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}
