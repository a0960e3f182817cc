package disburse

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyho-dev/tallyho/internal/match"
	"github.com/tallyho-dev/tallyho/internal/model"
)

var payoutDay = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func gatewaySale(id, amount, merchant string, settlement time.Time) model.Transaction {
	return model.Transaction{
		ID:       id,
		Source:   model.SourceGateway,
		Date:     settlement.AddDate(0, 0, -1),
		Amount:   decimal.RequireFromString(amount),
		Currency: "EUR",
		Metadata: map[string]string{
			model.MetaSettlementDate:  settlement.Format(model.MetaDateLayout),
			model.MetaMerchantAccount: merchant,
			model.MetaGatewayName:     "stripe",
		},
	}
}

func bankDeposit(id, amount string, date time.Time) model.Transaction {
	return model.Transaction{
		ID:          id,
		Source:      model.SourceBank,
		Date:        date,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "EUR",
		Description: "STRIPE PAYOUT",
	}
}

func TestAggregate(t *testing.T) {
	aggs := Aggregate([]model.Transaction{
		gatewaySale("gw-b", "400.00", "acct-1", payoutDay),
		gatewaySale("gw-a", "600.00", "acct-1", payoutDay),
		gatewaySale("gw-c", "-50.00", "acct-1", payoutDay.AddDate(0, 0, 1)),
		gatewaySale("gw-d", "75.00", "acct-2", payoutDay),
	})

	require.Len(t, aggs, 3)

	// Output is ordered by date then merchant account.
	assert.Equal(t, "acct-1", aggs[0].MerchantAccountID)
	assert.True(t, aggs[0].Date.Equal(payoutDay))
	assert.True(t, aggs[0].TotalAmount.Equal(decimal.RequireFromString("1000.00")),
		"same-batch sales sum, got %s", aggs[0].TotalAmount)
	assert.Equal(t, []string{"gw-a", "gw-b"}, aggs[0].MemberIDs)

	assert.Equal(t, "acct-2", aggs[1].MerchantAccountID)

	// Refunds contribute their absolute amount on their own settlement day.
	assert.True(t, aggs[2].TotalAmount.Equal(decimal.RequireFromString("50.00")))
}

func TestAggregate_FallsBackToTransactionDate(t *testing.T) {
	tx := model.Transaction{
		ID:     "gw-1",
		Source: model.SourceGateway,
		Date:   time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC),
		Amount: decimal.RequireFromString("10.00"),
	}

	aggs := Aggregate([]model.Transaction{tx})
	require.Len(t, aggs, 1)
	assert.True(t, aggs[0].Date.Equal(payoutDay), "no settlement metadata truncates the transaction date")
}

func TestMatcher_SameDay(t *testing.T) {
	aggs := Aggregate([]model.Transaction{
		gatewaySale("gw-a", "600.00", "acct-1", payoutDay),
		gatewaySale("gw-b", "400.00", "acct-1", payoutDay),
	})
	m := NewMatcher(aggs, match.DefaultTolerances())

	bank := bankDeposit("bank-1", "1000.00", payoutDay)
	got := m.Match(&bank)
	require.NotNil(t, got)
	assert.Equal(t, model.StrategyDisbursementDay, got.StrategyID)
	assert.Equal(t, ConfidenceSameDay, got.Confidence)
	assert.Equal(t, []string{"gw-a", "gw-b"}, got.GatewayIDs())
}

func TestMatcher_Window(t *testing.T) {
	aggs := Aggregate([]model.Transaction{
		gatewaySale("gw-a", "600.00", "acct-1", payoutDay),
		gatewaySale("gw-b", "400.00", "acct-1", payoutDay),
	})
	m := NewMatcher(aggs, match.DefaultTolerances())

	// Two days after settlement, inside the card rail's disbursement window.
	bank := bankDeposit("bank-1", "1000.00", payoutDay.AddDate(0, 0, 2))
	got := m.Match(&bank)
	require.NotNil(t, got)
	assert.Equal(t, model.StrategyDisbursementNear, got.StrategyID)
	require.Len(t, got.Aggregates, 1)
	assert.True(t, got.Aggregates[0].TotalAmount.Equal(decimal.RequireFromString("1000.00")))
}

func TestMatcher_WindowPrefersCloserAggregate(t *testing.T) {
	aggs := Aggregate([]model.Transaction{
		gatewaySale("gw-near", "500.00", "acct-1", payoutDay.AddDate(0, 0, -1)),
		gatewaySale("gw-far", "500.00", "acct-1", payoutDay.AddDate(0, 0, -3)),
	})
	m := NewMatcher(aggs, match.DefaultTolerances())

	bank := bankDeposit("bank-1", "500.00", payoutDay)
	got := m.Match(&bank)
	require.NotNil(t, got)
	assert.Equal(t, []string{"gw-near"}, got.GatewayIDs())
}

func TestMatcher_Sum(t *testing.T) {
	// Two payout cycles batched into one bank credit; no single aggregate
	// covers the amount.
	aggs := Aggregate([]model.Transaction{
		gatewaySale("gw-a", "600.00", "acct-1", payoutDay.AddDate(0, 0, -1)),
		gatewaySale("gw-b", "400.00", "acct-1", payoutDay.AddDate(0, 0, -2)),
	})
	m := NewMatcher(aggs, match.DefaultTolerances())

	bank := bankDeposit("bank-1", "1000.00", payoutDay)
	got := m.Match(&bank)
	require.NotNil(t, got)
	assert.Equal(t, model.StrategyDisbursementSum, got.StrategyID)
	assert.Equal(t, ConfidenceSum, got.Confidence)
	require.Len(t, got.Aggregates, 2)
	assert.Equal(t, []string{"gw-a", "gw-b"}, got.GatewayIDs())
}

func TestMatcher_SumSkipsOversizedAggregate(t *testing.T) {
	aggs := Aggregate([]model.Transaction{
		gatewaySale("gw-big", "900.00", "acct-1", payoutDay.AddDate(0, 0, -1)),
		gatewaySale("gw-a", "300.00", "acct-2", payoutDay.AddDate(0, 0, -1)),
		gatewaySale("gw-b", "200.00", "acct-3", payoutDay.AddDate(0, 0, -2)),
	})
	m := NewMatcher(aggs, match.DefaultTolerances())

	// 500 can only be 300+200; the 900 aggregate must not poison the greedy
	// accumulation.
	bank := bankDeposit("bank-1", "500.00", payoutDay)
	got := m.Match(&bank)
	require.NotNil(t, got)
	assert.Equal(t, model.StrategyDisbursementSum, got.StrategyID)
	assert.Equal(t, []string{"gw-a", "gw-b"}, got.GatewayIDs())
}

func TestMatcher_ConsumedAggregatesAreExcluded(t *testing.T) {
	aggs := Aggregate([]model.Transaction{
		gatewaySale("gw-a", "1000.00", "acct-1", payoutDay),
	})
	m := NewMatcher(aggs, match.DefaultTolerances())

	first := bankDeposit("bank-1", "1000.00", payoutDay)
	require.NotNil(t, m.Match(&first))

	second := bankDeposit("bank-2", "1000.00", payoutDay)
	assert.Nil(t, m.Match(&second), "a payout cannot fund two bank entries")
}

func TestMatcher_NoMatch(t *testing.T) {
	aggs := Aggregate([]model.Transaction{
		gatewaySale("gw-a", "600.00", "acct-1", payoutDay),
	})
	m := NewMatcher(aggs, match.DefaultTolerances())

	bank := bankDeposit("bank-1", "123.45", payoutDay)
	assert.Nil(t, m.Match(&bank))

	zero := bankDeposit("bank-2", "0", payoutDay)
	assert.Nil(t, m.Match(&zero))
}

func TestMatcher_CurrencyMismatch(t *testing.T) {
	sale := gatewaySale("gw-a", "600.00", "acct-1", payoutDay)
	sale.Currency = "USD"
	aggs := Aggregate([]model.Transaction{sale})
	m := NewMatcher(aggs, match.DefaultTolerances())

	// Same amount, same day, wrong currency: neither the single-aggregate
	// windows nor the sum path may absorb it.
	bank := bankDeposit("bank-1", "600.00", payoutDay)
	assert.Nil(t, m.Match(&bank))

	matched := bankDeposit("bank-2", "600.00", payoutDay)
	matched.Currency = "USD"
	hit := m.Match(&matched)
	require.NotNil(t, hit)
	assert.Equal(t, model.StrategyDisbursementDay, hit.StrategyID)
}

func TestMatcher_ExcludeMembers(t *testing.T) {
	aggs := Aggregate([]model.Transaction{
		gatewaySale("gw-a", "600.00", "acct-1", payoutDay),
		gatewaySale("gw-b", "400.00", "acct-1", payoutDay),
	})
	m := NewMatcher(aggs, match.DefaultTolerances())
	m.ExcludeMembers([]string{"gw-b"})

	bank := bankDeposit("bank-1", "1000.00", payoutDay)
	assert.Nil(t, m.Match(&bank), "an aggregate containing an excluded member is consumed")
}
