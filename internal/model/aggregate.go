package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DisbursementAggregate groups the gateway transactions that settled together
// into one bank payout. Aggregates are derived fresh each run from current
// gateway data and are never persisted or mutated.
type DisbursementAggregate struct {
	Date              time.Time
	MerchantAccountID string
	Currency          string
	MemberIDs         []string
	TotalAmount       decimal.Decimal
}

// Key identifies the aggregate by its grouping dimensions.
func (d *DisbursementAggregate) Key() string {
	return fmt.Sprintf("%s|%s", d.Date.Format("2006-01-02"), d.MerchantAccountID)
}

// MemberCount returns the number of constituent gateway transactions.
func (d *DisbursementAggregate) MemberCount() int {
	return len(d.MemberIDs)
}
