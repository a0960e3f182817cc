package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tallyho-dev/tallyho/internal/chain"
	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/service"
	"github.com/tallyho-dev/tallyho/internal/storage"
)

func coverageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Report chain-resolution coverage from persisted annotations",
		Long: `Report the fully/partially/unresolved split for bank entries using the
annotations already in the store, without running any matching.`,
		RunE: runCoverage,
	}
	cmd.Flags().BoolP("verbose", "v", false, "List bank entries that are not fully resolved")
	return cmd
}

func runCoverage(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	bank, err := fetchDomain(ctx, store, model.SourceBank)
	if err != nil {
		return err
	}
	gateway, err := fetchDomain(ctx, store, model.SourceGateway)
	if err != nil {
		return err
	}
	invoices, err := fetchDomain(ctx, store, model.SourceInvoice)
	if err != nil {
		return err
	}

	annotations := func(id string) *model.MatchAnnotation {
		ann, annErr := store.GetAnnotation(ctx, id)
		if annErr != nil {
			return nil
		}
		return ann
	}

	resolver := chain.NewResolver(gateway, invoices, annotations)
	cov, states := resolver.Coverage(bank)

	cmd.Printf("Bank entries: %d\n", len(bank))
	cmd.Printf("  fully resolved:     %d\n", cov.FullyResolved)
	cmd.Printf("  partially resolved: %d\n", cov.PartiallyResolved)
	cmd.Printf("  unresolved:         %d\n", cov.Unresolved)

	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		ids := make([]string, 0, len(states))
		for id := range states {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if states[id] != model.ChainFullyResolved {
				cmd.Printf("  %s: %s\n", id, states[id])
			}
		}
	}
	return nil
}

func fetchDomain(ctx context.Context, store *storage.SQLiteStore, domain model.SourceDomain) ([]model.Transaction, error) {
	var (
		out    []model.Transaction
		cursor string
	)
	for {
		res, err := store.FetchBySource(ctx, domain, service.Filter{}, service.Page{Cursor: cursor, Limit: 500})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s records: %w", domain, err)
		}
		out = append(out, res.Transactions...)
		if res.NextCursor == "" {
			return out, nil
		}
		cursor = res.NextCursor
	}
}
