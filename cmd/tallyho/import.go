package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tallyho-dev/tallyho/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import transactions into a record domain",
		Long: `Import transaction records from a CSV file into one of the three record
domains. Expected columns: id, date (2006-01-02), amount, currency,
description, customer_name, customer_email, then any number of
key=value metadata columns.

Duplicate rows (same content hash) are skipped, so re-importing the same
file is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("source", "", "Target domain: bank, gateway, or invoice (required)")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sourceFlag, _ := cmd.Flags().GetString("source")
	domain := model.SourceDomain(sourceFlag)
	if !domain.Valid() {
		return fmt.Errorf("unknown source domain %q (want bank, gateway, or invoice)", sourceFlag)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer func() { _ = f.Close() }()

	transactions, err := parseImportCSV(f, domain)
	if err != nil {
		return err
	}
	if len(transactions) == 0 {
		cmd.Println("No rows to import.")
		return nil
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	if err := store.SaveTransactions(ctx, transactions); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	cmd.Printf("Imported %d %s records.\n", len(transactions), domain)
	return nil
}

func parseImportCSV(r io.Reader, domain model.SourceDomain) ([]model.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var out []model.Transaction
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", line+1, err)
		}
		line++
		if line == 1 && strings.EqualFold(row[0], "id") {
			// Header row.
			continue
		}
		if len(row) < 5 {
			return nil, fmt.Errorf("row %d has %d columns, want at least 5", line, len(row))
		}

		date, err := time.Parse(model.MetaDateLayout, row[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad date %q: %w", line, row[1], err)
		}
		amount, err := decimal.NewFromString(row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad amount %q: %w", line, row[2], err)
		}

		tx := model.Transaction{
			ID:          row[0],
			Source:      domain,
			Date:        date.UTC(),
			Amount:      amount,
			Currency:    row[3],
			Description: row[4],
		}
		if len(row) > 5 {
			tx.CustomerName = row[5]
		}
		if len(row) > 6 {
			tx.CustomerEmail = row[6]
		}
		if len(row) > 7 {
			for _, extra := range row[7:] {
				key, value, ok := strings.Cut(extra, "=")
				if !ok || key == "" {
					continue
				}
				if tx.Metadata == nil {
					tx.Metadata = make(map[string]string)
				}
				tx.Metadata[key] = value
			}
		}
		tx.Hash = tx.GenerateHash()
		out = append(out, tx)
	}

	return out, nil
}
