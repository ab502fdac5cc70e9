package db

import (
	"context"
	"fmt"
)

// Migrate applies idempotent DDL statements in order.
func Migrate(ctx context.Context, database Database, statements ...string) error {
	for i, stmt := range statements {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
