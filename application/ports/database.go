package ports

import (
	"context"
	"database/sql"
)

// Database represents a database connection
type Database interface {
	// Execute runs a query that doesn't return rows
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	// Get scans a single row into dest
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Select scans all rows into dest
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Transaction executes fn within a transaction, committing on nil error
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// Ping verifies the connection
	Ping(ctx context.Context) error

	// Close closes the database connection
	Close() error
}

// Transaction represents a database transaction
type Transaction interface {
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}
