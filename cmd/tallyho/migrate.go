package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyho-dev/tallyho/internal/config"
	"github.com/tallyho-dev/tallyho/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := storage.NewSQLiteStore(config.DatabasePath())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer closeStore(store)

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			cmd.Println("Migrations complete.")
			return nil
		},
	}
}
