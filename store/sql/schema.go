package sqlstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// EnsureSchema creates the item and change-log tables when missing.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return fmt.Errorf("sqlstore: bun db is required")
	}
	if _, err := db.NewCreateTable().
		Model((*itemRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create items table: %w", err)
	}
	if _, err := db.NewCreateTable().
		Model((*changeRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create changes table: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*changeRecord)(nil)).
		Index("session_store_changes_item_key_idx").
		Column("item_key").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create changes index: %w", err)
	}
	return nil
}
