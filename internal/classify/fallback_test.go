package classify

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tallyho-dev/tallyho/internal/index"
	"github.com/tallyho-dev/tallyho/internal/model"
)

func bankTx(id, desc, amount string, meta map[string]string) model.Transaction {
	return model.Transaction{
		ID:          id,
		Source:      model.SourceBank,
		Date:        time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
		Currency:    "EUR",
		Description: desc,
		Metadata:    meta,
	}
}

func testIndex() *index.InvoiceIndex {
	mk := func(id, name, code string) model.Transaction {
		return model.Transaction{
			ID:           id,
			Source:       model.SourceInvoice,
			Date:         time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			Amount:       decimal.RequireFromString("100.00"),
			CustomerName: name,
			Metadata:     map[string]string{model.MetaAccountCode: code},
		}
	}
	return index.Build([]model.Transaction{
		mk("inv-1", "Jane Doe Clinic", "102"),
		mk("inv-2", "Jane Doe Clinic", "102"),
		mk("inv-3", "Jane Doe Clinic", "200"),
		mk("inv-4", "Acme Corp", "4000"),
	})
}

func TestClassifier_Classify(t *testing.T) {
	c := New(testIndex(), map[string]string{"stripe": "4000"}, Config{
		EntityMarkers: []string{"Northwind"},
	})

	tests := []struct {
		name           string
		tx             model.Transaction
		wantStrategy   model.StrategyID
		wantCode       string
		wantReconciled bool
		wantName       string
	}{
		{
			name:           "internal transfer",
			tx:             bankTx("b-1", "INTERNAL TRANSFER savings to current", "-500.00", nil),
			wantStrategy:   model.StrategyInternalTransfer,
			wantCode:       model.CategoryInternal,
			wantReconciled: true,
		},
		{
			name:         "intercompany marker plus legal suffix",
			tx:           bankTx("b-2", "INVOICE SETTLEMENT Northwind Trading GmbH", "-1200.00", nil),
			wantStrategy: model.StrategyIntercompany,
			wantCode:     model.CategoryIntercompany,
		},
		{
			name:         "name extraction resolves to modal category",
			tx:           bankTx("b-3", "Transfer/Jane Doe Clinic", "150.00", nil),
			wantStrategy: model.StrategyNameExtraction,
			wantCode:     "102",
			wantName:     "Jane Doe Clinic",
		},
		{
			name:         "gateway payout inherits dominant category",
			tx:           bankTx("b-4", "STRIPE PAYOUT REF 123", "980.00", nil),
			wantStrategy: model.StrategyGatewayDominant,
			wantCode:     "4000",
		},
		{
			name:         "catch-all income",
			tx:           bankTx("b-5", "UNKNOWN DEPOSIT", "42.00", nil),
			wantStrategy: model.StrategyCatchAll,
			wantCode:     model.CategoryOtherIncome,
		},
		{
			name:         "catch-all expense",
			tx:           bankTx("b-6", "UNKNOWN CHARGE", "-42.00", nil),
			wantStrategy: model.StrategyCatchAll,
			wantCode:     model.CategoryOtherExpense,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(&tt.tx)
			assert.Equal(t, tt.tx.ID, got.TransactionID)
			assert.Equal(t, tt.wantStrategy, got.StrategyID)
			assert.Equal(t, tt.wantCode, got.AccountCode)
			assert.Equal(t, tt.wantReconciled, got.Reconciled)
			if tt.wantName != "" {
				assert.Equal(t, tt.wantName, got.ExtractedName)
			}
			assert.Greater(t, got.Confidence, 0.0)
		})
	}
}

func TestClassifier_GatewayNameIsNotACounterparty(t *testing.T) {
	c := New(testIndex(), map[string]string{"paypal": "4000"}, Config{})

	// The extracted name is a gateway, so phase C must decline and phase D
	// picks it up through the dominant map.
	tx := bankTx("b-1", "Transfer/PAYPAL EUROPE", "300.00", nil)
	got := c.Classify(&tx)
	assert.Equal(t, model.StrategyGatewayDominant, got.StrategyID)
	assert.Equal(t, "4000", got.AccountCode)
}

func TestClassifier_Totality(t *testing.T) {
	c := New(index.Build(nil), nil, Config{})

	descriptions := []string{"", "x", "???", "TRANSFER /", "payment of "}
	for _, desc := range descriptions {
		tx := bankTx("b-1", desc, "10.00", nil)
		got := c.Classify(&tx)
		assert.NotEmpty(t, got.AccountCode, "description %q must still classify", desc)
		assert.NotEmpty(t, got.StrategyID)
	}
}

func TestMatchesInternalTransfer(t *testing.T) {
	tests := []struct {
		desc string
		want bool
	}{
		{desc: "transfer to own account", want: true},
		{desc: "Cash Pooling sweep", want: true},
		{desc: "FROM SAVINGS", want: true},
		{desc: "transfer between accounts 123", want: true},
		{desc: "payment of Jane Doe", want: false},
		{desc: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesInternalTransfer(tt.desc))
		})
	}
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want string
	}{
		{name: "slash form", desc: "Transfer/Jane Doe Clinic", want: "Jane Doe Clinic"},
		{name: "slash form with reference suffix", desc: "TRANSFER / ACME LTD / REF 42", want: "ACME LTD"},
		{name: "payment of", desc: "payment of Acme Corp", want: "Acme Corp"},
		{name: "sepa credit", desc: "SEPA CREDIT Jane Doe Clinic", want: "Jane Doe Clinic"},
		{name: "from form", desc: "received from Jane Doe", want: "Jane Doe"},
		{name: "no pattern", desc: "MISC DEPOSIT 42", want: ""},
		{name: "empty capture", desc: "Transfer/   ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractName(tt.desc))
		})
	}
}

func TestModalAccountCode(t *testing.T) {
	mk := func(code string) *model.Transaction {
		return &model.Transaction{Metadata: map[string]string{model.MetaAccountCode: code}}
	}

	assert.Equal(t, "102",
		ModalAccountCode([]*model.Transaction{mk("102"), mk("102"), mk("200")}))
	assert.Equal(t, "102",
		ModalAccountCode([]*model.Transaction{mk("200"), mk("102")}), "ties break to the smaller code")
	assert.Equal(t, "",
		ModalAccountCode([]*model.Transaction{{}, {}}))
}

func TestDominantByGateway(t *testing.T) {
	mk := func(id, gateway string) model.Transaction {
		return model.Transaction{
			ID:       id,
			Source:   model.SourceGateway,
			Metadata: map[string]string{model.MetaGatewayName: gateway},
		}
	}
	gateway := []model.Transaction{
		mk("gw-1", "Stripe"),
		mk("gw-2", "Stripe"),
		mk("gw-3", "Stripe"),
		mk("gw-4", "PayPal"),
		mk("gw-5", "Mollie"),
	}
	annotations := map[string]*model.MatchAnnotation{
		"gw-1": {AccountCode: "4000"},
		"gw-2": {AccountCode: "4000"},
		"gw-3": {AccountCode: "4100"},
		"gw-4": {AccountCode: "4100"},
		// gw-5 unresolved; mollie gets no dominant code.
	}

	got := DominantByGateway(gateway, func(id string) *model.MatchAnnotation {
		return annotations[id]
	})

	assert.Equal(t, map[string]string{
		"stripe": "4000",
		"paypal": "4100",
	}, got)
}
