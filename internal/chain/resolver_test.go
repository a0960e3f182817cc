package chain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tallyho-dev/tallyho/internal/model"
)

func record(id string, source model.SourceDomain, meta map[string]string) model.Transaction {
	return model.Transaction{
		ID:       id,
		Source:   source,
		Date:     time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		Amount:   decimal.RequireFromString("100.00"),
		Currency: "EUR",
		Metadata: meta,
	}
}

func TestResolver_Resolve(t *testing.T) {
	gateway := []model.Transaction{
		record("gw-coded", model.SourceGateway, nil),
		record("gw-linked", model.SourceGateway, nil),
		record("gw-orphan", model.SourceGateway, nil),
	}
	invoices := []model.Transaction{
		record("inv-coded", model.SourceInvoice, map[string]string{model.MetaAccountCode: "4000"}),
		record("inv-bare", model.SourceInvoice, nil),
	}

	annotations := map[string]*model.MatchAnnotation{
		// Category directly on the gateway annotation.
		"gw-coded": {StrategyID: model.StrategyGatewayDominant, AccountCode: "4000"},
		// Category reached through the matched invoice's metadata.
		"gw-linked": {StrategyID: model.StrategyExternalID, MatchedTargetID: "inv-coded"},
		// Matched, but the invoice carries no category code.
		"gw-orphan": {StrategyID: model.StrategyExternalID, MatchedTargetID: "inv-bare"},

		"bank-full":    {LinkedGatewayIDs: []string{"gw-coded", "gw-linked"}},
		"bank-partial": {LinkedGatewayIDs: []string{"gw-coded", "gw-orphan"}},
		"bank-missing": {LinkedGatewayIDs: []string{"gw-unknown"}},
	}
	r := NewResolver(gateway, invoices, func(id string) *model.MatchAnnotation {
		return annotations[id]
	})

	tests := []struct {
		name   string
		bankID string
		want   model.ChainState
	}{
		{name: "every member reaches a category", bankID: "bank-full", want: model.ChainFullyResolved},
		{name: "one member stops short", bankID: "bank-partial", want: model.ChainPartiallyResolved},
		{name: "linked gateway record missing", bankID: "bank-missing", want: model.ChainPartiallyResolved},
		{name: "no gateway link at all", bankID: "bank-none", want: model.ChainUnresolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := record(tt.bankID, model.SourceBank, nil)
			assert.Equal(t, tt.want, r.Resolve(&bank))
		})
	}
}

func TestResolver_Coverage(t *testing.T) {
	gateway := []model.Transaction{record("gw-1", model.SourceGateway, nil)}
	annotations := map[string]*model.MatchAnnotation{
		"gw-1":   {StrategyID: model.StrategyGatewayDominant, AccountCode: "4000"},
		"bank-1": {LinkedGatewayIDs: []string{"gw-1"}},
	}
	r := NewResolver(gateway, nil, func(id string) *model.MatchAnnotation {
		return annotations[id]
	})

	bank := []model.Transaction{
		record("bank-1", model.SourceBank, nil),
		record("bank-2", model.SourceBank, nil),
	}
	cov, states := r.Coverage(bank)

	assert.Equal(t, 1, cov.FullyResolved)
	assert.Equal(t, 0, cov.PartiallyResolved)
	assert.Equal(t, 1, cov.Unresolved)
	assert.Equal(t, model.ChainFullyResolved, states["bank-1"])
	assert.Equal(t, model.ChainUnresolved, states["bank-2"])
}
