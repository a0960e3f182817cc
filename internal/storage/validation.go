package storage

import (
	"context"
	"fmt"

	"github.com/tallyho-dev/tallyho/internal/model"
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	return ctx.Err()
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

func validateTransaction(tx *model.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("transaction id cannot be empty")
	}
	if !tx.Source.Valid() {
		return fmt.Errorf("transaction %s has unknown source %q", tx.ID, tx.Source)
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("transaction %s has zero date", tx.ID)
	}
	return nil
}
