// Package disburse groups gateway transactions into settlement-batch
// aggregates and matches bank entries against them. Many gateway
// transactions settle together into one bank deposit; the aggregate is the
// unit a bank entry can actually be reconciled against.
package disburse

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tallyho-dev/tallyho/internal/model"
)

// Aggregate groups gateway transactions by (settlement day, merchant
// account), summing settlement amounts and collecting member ids. Aggregates
// are recomputed every run from current gateway data so they always reflect
// the latest settlement metadata; they are never persisted.
func Aggregate(gateway []model.Transaction) []model.DisbursementAggregate {
	groups := make(map[string]*model.DisbursementAggregate)

	for i := range gateway {
		tx := &gateway[i]
		day := tx.SettlementDay()
		merchant := tx.Meta(model.MetaMerchantAccount)

		agg := &model.DisbursementAggregate{
			Date:              day,
			MerchantAccountID: merchant,
			Currency:          tx.Currency,
		}
		key := agg.Key()
		if existing, ok := groups[key]; ok {
			agg = existing
		} else {
			groups[key] = agg
		}

		agg.TotalAmount = agg.TotalAmount.Add(tx.Amount.Abs())
		agg.MemberIDs = append(agg.MemberIDs, tx.ID)
	}

	out := make([]model.DisbursementAggregate, 0, len(groups))
	for _, agg := range groups {
		sort.Strings(agg.MemberIDs)
		out = append(out, *agg)
	}

	// Deterministic order: by date, then merchant account.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].MerchantAccountID < out[j].MerchantAccountID
	})

	return out
}

// TotalOf sums the absolute amounts of a set of aggregates.
func TotalOf(aggs []*model.DisbursementAggregate) decimal.Decimal {
	total := decimal.Zero
	for _, agg := range aggs {
		total = total.Add(agg.TotalAmount)
	}
	return total
}
