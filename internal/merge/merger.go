// Package merge applies match results to the record store as non-destructive
// partial updates: existing manual confirmations survive, reconciled never
// regresses, and a weaker strategy never displaces a stronger one.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tallyho-dev/tallyho/internal/common"
	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/service"
)

// Merger wraps the record store's annotation write path. All pipeline writes
// go through here so the priority and monotonicity rules live in one place.
//
// The store's merge is last-write-wins per record with no multi-record
// transaction. Concurrent runs can race on a record; that is accepted
// because merges are monotonic and convergent, a re-run reaches the same
// fixed point.
type Merger struct {
	store service.RecordStore
	retry service.RetryOptions
}

// New creates a Merger over the given store.
func New(store service.RecordStore) *Merger {
	return &Merger{
		store: store,
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Apply merges one partial annotation onto a record. The current annotation
// is read, folded with the incoming one under the model's merge rules, and
// written back. A failed write for one record must not abort the batch;
// callers collect the returned error and move on.
func (m *Merger) Apply(ctx context.Context, id string, partial *model.MatchAnnotation) error {
	current, err := m.store.GetAnnotation(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: read annotation for %s: %v", common.ErrMergeConflict, id, err)
	}
	if current == nil {
		current = &model.MatchAnnotation{}
	}

	merged := current.Merge(partial)

	writeErr := common.WithRetry(ctx, func() error {
		if err := m.store.MergeAnnotation(ctx, id, &merged); err != nil {
			return &common.RetryableError{Err: err, Retryable: common.IsRetryable(err)}
		}
		return nil
	}, m.retry)
	if writeErr != nil {
		return fmt.Errorf("%w: write annotation for %s: %v", common.ErrMergeConflict, id, writeErr)
	}
	return nil
}

// ApplyAll merges a batch of annotations keyed by record id, in sorted key
// order for deterministic write sequences. Per-record failures are collected
// and returned together; the records that failed keep their pre-update state
// for the next run.
func (m *Merger) ApplyAll(ctx context.Context, annotations map[string]*model.MatchAnnotation) []error {
	ids := make([]string, 0, len(annotations))
	for id := range annotations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return errs
		}
		if err := m.Apply(ctx, id, annotations[id]); err != nil {
			slog.Warn("annotation merge failed, continuing batch", "record_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errs
}

// LinkBankToInvoices records the inverse, AP-style direction: one bank debit
// funding several invoices. The bank record receives the linked invoice id
// set; each invoice is individually marked reconciled against the bank
// record.
func (m *Merger) LinkBankToInvoices(ctx context.Context, bankID string, invoiceIDs []string, strategy model.StrategyID, confidence float64, at time.Time) []error {
	var errs []error

	manual := strategy == model.StrategyManual

	bankAnn := &model.MatchAnnotation{
		StrategyID:        strategy,
		Confidence:        confidence,
		ClassifiedAt:      at,
		LinkedInvoiceIDs:  invoiceIDs,
		Reconciled:        true,
		ManuallyConfirmed: manual,
	}
	if err := m.Apply(ctx, bankID, bankAnn); err != nil {
		errs = append(errs, err)
	}

	for _, invID := range invoiceIDs {
		invAnn := &model.MatchAnnotation{
			MatchedTargetID:   bankID,
			StrategyID:        strategy,
			Confidence:        confidence,
			ClassifiedAt:      at,
			Reconciled:        true,
			ManuallyConfirmed: manual,
		}
		if err := m.Apply(ctx, invID, invAnn); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
