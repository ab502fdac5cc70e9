package db

import (
	"context"
	"database/sql"
)

// Database is a pooled SQL connection with transactional support.
type Database interface {
	Querier

	// Transaction runs fn inside a transaction, rolling back when fn fails.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	Ping(ctx context.Context) error
	Close() error
	Stats() sql.DBStats
}

// Transaction is a Querier bound to an open transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Rows iterates over a query result.
type Rows interface {
	Scanner
	Next() bool
	Close() error
	Err() error
}

// Row is the result of QueryRow.
type Row interface {
	Scanner
}

// Scanner is implemented by Row and Rows so scan helpers work with both.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
