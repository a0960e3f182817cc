package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tallyho-dev/tallyho/internal/model"
)

// GetAnnotation returns the current annotation for a record. A record with
// no annotation yet yields the zero annotation, not an error.
func (s *SQLiteStore) GetAnnotation(ctx context.Context, id string) (*model.MatchAnnotation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT matched_target_id, matched_invoice_num, account_code, strategy_id,
			confidence, classified_at, reconciled, manually_confirmed,
			linked_gateway_ids, linked_invoice_ids
		FROM annotations WHERE record_id = ?`, id)

	ann, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.MatchAnnotation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation for %s: %w", id, err)
	}
	return ann, nil
}

// MergeAnnotation folds a partial annotation into whatever the record
// currently carries, inside one database transaction so the read-modify-
// write is atomic against concurrent runs on the same store.
func (s *SQLiteStore) MergeAnnotation(ctx context.Context, id string, partial *model.MatchAnnotation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if partial == nil {
		return fmt.Errorf("partial annotation cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin annotation merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT matched_target_id, matched_invoice_num, account_code, strategy_id,
			confidence, classified_at, reconciled, manually_confirmed,
			linked_gateway_ids, linked_invoice_ids
		FROM annotations WHERE record_id = ?`, id)

	current, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		current = &model.MatchAnnotation{}
	} else if err != nil {
		return fmt.Errorf("failed to read annotation for %s: %w", id, err)
	}

	merged := current.Merge(partial)

	gatewayIDs, err := json.Marshal(idsOrEmpty(merged.LinkedGatewayIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal gateway links for %s: %w", id, err)
	}
	invoiceIDs, err := json.Marshal(idsOrEmpty(merged.LinkedInvoiceIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal invoice links for %s: %w", id, err)
	}

	classifiedAt := ""
	if !merged.ClassifiedAt.IsZero() {
		classifiedAt = merged.ClassifiedAt.UTC().Format(dateLayout)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO annotations (record_id, matched_target_id, matched_invoice_num,
			account_code, strategy_id, confidence, classified_at, reconciled,
			manually_confirmed, linked_gateway_ids, linked_invoice_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			matched_target_id = excluded.matched_target_id,
			matched_invoice_num = excluded.matched_invoice_num,
			account_code = excluded.account_code,
			strategy_id = excluded.strategy_id,
			confidence = excluded.confidence,
			classified_at = excluded.classified_at,
			reconciled = excluded.reconciled,
			manually_confirmed = excluded.manually_confirmed,
			linked_gateway_ids = excluded.linked_gateway_ids,
			linked_invoice_ids = excluded.linked_invoice_ids`,
		id,
		merged.MatchedTargetID,
		merged.MatchedInvoiceNum,
		merged.AccountCode,
		string(merged.StrategyID),
		merged.Confidence,
		classifiedAt,
		boolToInt(merged.Reconciled),
		boolToInt(merged.ManuallyConfirmed),
		string(gatewayIDs),
		string(invoiceIDs),
	); err != nil {
		return fmt.Errorf("failed to write annotation for %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit annotation for %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnnotation(row rowScanner) (*model.MatchAnnotation, error) {
	var (
		ann                    model.MatchAnnotation
		strategy, classifiedAt string
		reconciled, confirmed  int
		gatewayIDs, invoiceIDs string
	)
	if err := row.Scan(
		&ann.MatchedTargetID,
		&ann.MatchedInvoiceNum,
		&ann.AccountCode,
		&strategy,
		&ann.Confidence,
		&classifiedAt,
		&reconciled,
		&confirmed,
		&gatewayIDs,
		&invoiceIDs,
	); err != nil {
		return nil, err
	}

	ann.StrategyID = model.StrategyID(strategy)
	ann.Reconciled = reconciled != 0
	ann.ManuallyConfirmed = confirmed != 0

	if classifiedAt != "" {
		parsed, err := time.Parse(dateLayout, classifiedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse classified_at: %w", err)
		}
		ann.ClassifiedAt = parsed
	}
	if err := json.Unmarshal([]byte(gatewayIDs), &ann.LinkedGatewayIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gateway links: %w", err)
	}
	if err := json.Unmarshal([]byte(invoiceIDs), &ann.LinkedInvoiceIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invoice links: %w", err)
	}
	if len(ann.LinkedGatewayIDs) == 0 {
		ann.LinkedGatewayIDs = nil
	}
	if len(ann.LinkedInvoiceIDs) == 0 {
		ann.LinkedInvoiceIDs = nil
	}
	return &ann, nil
}

func idsOrEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
