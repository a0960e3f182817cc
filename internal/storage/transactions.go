package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/service"
)

const dateLayout = time.RFC3339

// SaveTransactions inserts transactions, skipping duplicates by hash. Used
// by the import command; the engine never writes transactions.
func (s *SQLiteStore) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, source, date, amount, currency, description,
			customer_name, customer_email, hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		record := &transactions[i]
		if err := validateTransaction(record); err != nil {
			return err
		}
		if record.Hash == "" {
			record.Hash = record.GenerateHash()
		}
		meta, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", record.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			record.ID,
			string(record.Source),
			record.Date.UTC().Format(dateLayout),
			record.Amount.String(),
			record.Currency,
			record.Description,
			record.CustomerName,
			record.CustomerEmail,
			record.Hash,
			string(meta),
		); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				// Same hash arrived through another id: an import replay.
				continue
			}
			return fmt.Errorf("failed to insert transaction %s: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

// FetchBySource returns one page of a domain's transactions in (date, id)
// order using a keyset cursor, so pagination stays stable while annotations
// are being merged concurrently.
func (s *SQLiteStore) FetchBySource(ctx context.Context, domain model.SourceDomain, filter service.Filter, page service.Page) (*service.PageResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if !domain.Valid() {
		return nil, fmt.Errorf("unknown source domain %q", domain)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 500
	}

	query := strings.Builder{}
	query.WriteString(`
		SELECT id, source, date, amount, currency, description,
			customer_name, customer_email, hash, metadata
		FROM transactions
		WHERE source = ?`)
	args := []any{string(domain)}

	if page.Cursor != "" {
		cursorDate, cursorID, err := decodeCursor(page.Cursor)
		if err != nil {
			return nil, err
		}
		query.WriteString(` AND (date > ? OR (date = ? AND id > ?))`)
		args = append(args, cursorDate, cursorDate, cursorID)
	}
	if filter.StartDate != nil {
		query.WriteString(` AND date >= ?`)
		args = append(args, filter.StartDate.UTC().Format(dateLayout))
	}
	if filter.EndDate != nil {
		query.WriteString(` AND date <= ?`)
		args = append(args, filter.EndDate.UTC().Format(dateLayout))
	}
	if filter.Currency != "" {
		query.WriteString(` AND currency = ?`)
		args = append(args, filter.Currency)
	}

	query.WriteString(` ORDER BY date, id LIMIT ?`)
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s transactions: %w", domain, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Transaction
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s transactions: %w", domain, err)
	}

	result := &service.PageResult{}
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		result.NextCursor = encodeCursor(last.Date, last.ID)
	}
	result.Transactions = out
	return result, nil
}

func scanTransaction(rows *sql.Rows) (*model.Transaction, error) {
	var (
		record           model.Transaction
		source, date     string
		amount, metadata string
	)
	if err := rows.Scan(
		&record.ID,
		&source,
		&date,
		&amount,
		&record.Currency,
		&record.Description,
		&record.CustomerName,
		&record.CustomerEmail,
		&record.Hash,
		&metadata,
	); err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	record.Source = model.SourceDomain(source)

	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date for %s: %w", record.ID, err)
	}
	record.Date = parsed

	record.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount for %s: %w", record.ID, err)
	}

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", record.ID, err)
		}
	}
	return &record, nil
}

func encodeCursor(date time.Time, id string) string {
	return date.UTC().Format(dateLayout) + "|" + id
}

func decodeCursor(cursor string) (date, id string, err error) {
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed page cursor %q", cursor)
	}
	return parts[0], parts[1], nil
}
