package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceDomain_Valid(t *testing.T) {
	assert.True(t, SourceBank.Valid())
	assert.True(t, SourceGateway.Valid())
	assert.True(t, SourceInvoice.Valid())
	assert.False(t, SourceDomain("").Valid())
	assert.False(t, SourceDomain("ledger").Valid())
}

func TestTransaction_SettlementDay(t *testing.T) {
	txDate := time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		meta map[string]string
		want time.Time
	}{
		{
			name: "settlement date wins",
			meta: map[string]string{
				MetaSettlementDate:   "2024-06-05",
				MetaDisbursementDate: "2024-06-07",
			},
			want: time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "disbursement date second",
			meta: map[string]string{MetaDisbursementDate: "2024-06-07"},
			want: time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "transaction date truncated last",
			meta: nil,
			want: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "malformed metadata falls through",
			meta: map[string]string{MetaSettlementDate: "05/06/2024"},
			want: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := Transaction{Date: txDate, Metadata: tt.meta}
			assert.True(t, tt.want.Equal(tx.SettlementDay()))
		})
	}
}

func TestTransaction_MetaDate(t *testing.T) {
	tx := Transaction{Metadata: map[string]string{MetaSettlementDate: "2024-06-05"}}

	d, ok := tx.MetaDate(MetaSettlementDate)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), d)

	_, ok = tx.MetaDate(MetaDisbursementDate)
	assert.False(t, ok)

	var bare Transaction
	_, ok = bare.MetaDate(MetaSettlementDate)
	assert.False(t, ok)
	assert.Empty(t, bare.Meta(MetaSettlementDate))
}

func TestTransaction_IsInflow(t *testing.T) {
	assert.True(t, (&Transaction{Amount: decimal.RequireFromString("0.01")}).IsInflow())
	assert.False(t, (&Transaction{Amount: decimal.RequireFromString("-0.01")}).IsInflow())
	assert.False(t, (&Transaction{Amount: decimal.Zero}).IsInflow())
}

func TestTransaction_GenerateHash(t *testing.T) {
	base := Transaction{
		Source:      SourceBank,
		Date:        time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("100.00"),
		Description: "deposit",
	}

	same := base
	assert.Equal(t, base.GenerateHash(), same.GenerateHash())

	differentAmount := base
	differentAmount.Amount = decimal.RequireFromString("100.01")
	assert.NotEqual(t, base.GenerateHash(), differentAmount.GenerateHash())

	differentID := base
	differentID.Metadata = map[string]string{MetaTransactionID: "abc"}
	assert.NotEqual(t, base.GenerateHash(), differentID.GenerateHash())
}
