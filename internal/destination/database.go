package destination

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// DatabaseConnector inserts result rows into a user-configured table.
// The table must have (execution_id, file_execution_id, file_name, result,
// metadata) columns; it is owned by the user, not by migrations.
type DatabaseConnector struct {
	db    *sql.DB
	table string
}

func newDatabaseConnector(settings map[string]string, deps Deps) (Connector, error) {
	table := settings["table"]
	if table == "" {
		return nil, fmt.Errorf("database destination requires a 'table' setting")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database destination requires a database handle")
	}
	return &DatabaseConnector{db: deps.DB, table: table}, nil
}

func (c *DatabaseConnector) Kind() string {
	return KindDatabase
}

func (c *DatabaseConnector) Write(ctx context.Context, req WriteRequest) error {
	// Table name cannot be a bind parameter; quote it instead.
	query := fmt.Sprintf(
		`INSERT INTO %s (execution_id, file_execution_id, file_name, result, metadata) VALUES ($1, $2, $3, $4, $5)`,
		pq.QuoteIdentifier(c.table),
	)
	_, err := c.db.ExecContext(ctx, query,
		req.ExecutionID, req.FileExecutionID, req.FileName, req.Artifact, req.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result row for %s: %w", req.FileName, err)
	}
	return nil
}
