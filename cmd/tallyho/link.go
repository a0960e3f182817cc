package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyho-dev/tallyho/internal/merge"
	"github.com/tallyho-dev/tallyho/internal/model"
)

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <bank-id> <invoice-id>...",
		Short: "Manually link a bank entry to one or more invoices",
		Long: `Record a confirmed settlement: one bank entry funding one or more
invoices. The bank record receives the linked invoice id set and every
invoice is individually marked reconciled.

Manual links outrank every automatic strategy and are never overwritten by
later pipeline runs.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runLink,
	}
}

func runLink(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bankID := args[0]
	invoiceIDs := args[1:]

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	merger := merge.New(store)
	errs := merger.LinkBankToInvoices(ctx, bankID, invoiceIDs, model.StrategyManual, 1.0, time.Now())
	if len(errs) > 0 {
		for _, linkErr := range errs {
			cmd.PrintErrf("  %v\n", linkErr)
		}
		return fmt.Errorf("%d of %d link writes failed", len(errs), len(invoiceIDs)+1)
	}

	cmd.Printf("Linked bank entry %s to %d invoice(s).\n", bankID, len(invoiceIDs))
	return nil
}
