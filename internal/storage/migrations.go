package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migrations are applied in order; each runs at most once. Never edit an
// entry that has shipped; append a new one.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		customer_name TEXT NOT NULL DEFAULT '',
		customer_email TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_source_date_id
		ON transactions(source, date, id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_hash
		ON transactions(hash) WHERE hash != ''`,
	`CREATE TABLE IF NOT EXISTS annotations (
		record_id TEXT PRIMARY KEY,
		matched_target_id TEXT NOT NULL DEFAULT '',
		matched_invoice_num TEXT NOT NULL DEFAULT '',
		account_code TEXT NOT NULL DEFAULT '',
		strategy_id TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		classified_at TEXT NOT NULL DEFAULT '',
		reconciled INTEGER NOT NULL DEFAULT 0,
		manually_confirmed INTEGER NOT NULL DEFAULT 0,
		linked_gateway_ids TEXT NOT NULL DEFAULT '[]',
		linked_invoice_ids TEXT NOT NULL DEFAULT '[]'
	)`,
}

// runMigrations applies any migrations past the recorded schema version.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
		slog.Debug("applied migration", "version", i+1)
	}

	return nil
}
