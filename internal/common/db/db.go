package db

import (
	"context"
	"database/sql"
)

// Database defines the minimal database surface used by repositories.
// Implementations must be safe for concurrent use.
type Database interface {
	// Query executes a query that returns rows
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)

	// QueryRow executes a query that returns at most one row
	QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row

	// Exec executes a query that doesn't return rows
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	// Transaction executes fn within a database transaction.
	// The transaction is rolled back if fn returns an error.
	Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error

	// Ping verifies the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the database and its connection pool
	Close() error
}
