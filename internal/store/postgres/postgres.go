// Package postgres implements the store interfaces using PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"docflow/internal/store"

	_ "github.com/lib/pq"
)

// Store provides PostgreSQL-backed implementations of all repositories.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and verifies connectivity.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying pool for migrations and health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) getExecutor(tx store.DBTransaction) store.DBTransaction {
	if tx != nil {
		return tx
	}
	return s.db
}
