package database

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed migrations/001_kv_items.up.sql
var kvItemsMigrationSQL string

const kvItemsTable = "kv_items"

// EnsureSchema creates the kv_items table on first use.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	exists, err := db.hasTable(ctx, kvItemsTable)
	if err != nil {
		return fmt.Errorf("check existing tables: %w", err)
	}
	if exists {
		return nil
	}

	db.log.Info("session table missing; applying migration", "table", kvItemsTable)
	if _, err := db.Pool.Exec(ctx, kvItemsMigrationSQL); err != nil {
		return fmt.Errorf("apply kv_items migration: %w", err)
	}

	exists, err = db.hasTable(ctx, kvItemsTable)
	if err != nil {
		return fmt.Errorf("re-check tables after migration: %w", err)
	}
	if !exists {
		return fmt.Errorf("schema initialization incomplete: %s is still missing", kvItemsTable)
	}

	db.log.Info("session schema ensured", "table", kvItemsTable)
	return nil
}

func (db *DB) hasTable(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public'
			  AND table_name = $1
		)
	`, name).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}
