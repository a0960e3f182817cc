package index

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyho-dev/tallyho/internal/model"
)

func invoice(id, name, email, amount string, meta map[string]string) model.Transaction {
	return model.Transaction{
		ID:            id,
		Source:        model.SourceInvoice,
		Date:          time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.RequireFromString(amount),
		Currency:      "EUR",
		CustomerName:  name,
		CustomerEmail: email,
		Metadata:      meta,
	}
}

func testInvoices() []model.Transaction {
	return []model.Transaction{
		invoice("inv-003", "Jane Doe Clinic", "billing@janedoe.example", "150.00",
			map[string]string{model.MetaInvoiceNumber: "INV-2024-003"}),
		invoice("inv-001", "Acme Corp", "ap@acme.example", "250.00",
			map[string]string{model.MetaInvoiceNumber: "INV-2024-001", model.MetaOrderNumber: "ORD-77"}),
		invoice("inv-002", "Acme Corp", "ap@acme.example", "250.40",
			map[string]string{model.MetaInvoiceNumber: "INV-2024-002"}),
		invoice("inv-004", "Café Müller GmbH", "", "99.90", nil),
	}
}

func TestBuild_ByExternalID(t *testing.T) {
	idx := Build(testInvoices())

	tests := []struct {
		name   string
		query  string
		wantID string
	}{
		{name: "exact invoice number", query: "INV-2024-003", wantID: "inv-003"},
		{name: "separator and case insensitive", query: "inv 2024/003", wantID: "inv-003"},
		{name: "order number", query: "ORD-77", wantID: "inv-001"},
		{name: "unknown", query: "INV-9999", wantID: ""},
		{name: "empty", query: "", wantID: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idx.ByExternalID(tt.query)
			if tt.wantID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestBuild_NameLookups(t *testing.T) {
	idx := Build(testInvoices())

	exact := idx.ByName("ACME CORP")
	require.Len(t, exact, 2)
	assert.Equal(t, "inv-001", exact[0].ID, "candidate lists are sorted by id")
	assert.Equal(t, "inv-002", exact[1].ID)

	folded := idx.ByName("cafe muller gmbh")
	require.Len(t, folded, 1)
	assert.Equal(t, "inv-004", folded[0].ID)

	sub := idx.ByNameSubstring("Acme")
	require.Len(t, sub, 2, "substring lookup covers names containing the query")
	assert.Empty(t, idx.ByNameSubstring("xy"), "queries below the token floor return nothing")
}

func TestBuild_ByEmail(t *testing.T) {
	idx := Build(testInvoices())

	got := idx.ByEmail("  AP@Acme.example ")
	require.Len(t, got, 2)
	assert.Equal(t, "inv-001", got[0].ID)
	assert.Empty(t, idx.ByEmail("nobody@acme.example"))
}

func TestBuild_ByAmountNear(t *testing.T) {
	idx := Build(testInvoices())

	// 250.40 buckets to 250; 250.00 buckets to 250; the probe also covers
	// the 249 and 251 neighbors.
	got := idx.ByAmountNear(251)
	require.Len(t, got, 2)
	assert.Equal(t, "inv-001", got[0].ID)
	assert.Equal(t, "inv-002", got[1].ID)

	assert.Empty(t, idx.ByAmountNear(500))
}

func TestFuzzyName(t *testing.T) {
	idx := Build(testInvoices())

	tests := []struct {
		name      string
		query     string
		wantNames []string
	}{
		{name: "exact tokens", query: "jane doe clinic", wantNames: []string{"jane doe clinic"}},
		{name: "reordered with noise", query: "SEPA CREDIT Doe Jane Clinic", wantNames: []string{"jane doe clinic"}},
		{name: "below threshold", query: "jane", wantNames: nil},
		{name: "no shared tokens", query: "unrelated vendor", wantNames: nil},
		{name: "empty", query: "", wantNames: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idx.FuzzyName(tt.query)
			names := make([]string, 0, len(got))
			for _, m := range got {
				names = append(names, m.Name)
			}
			if tt.wantNames == nil {
				assert.Empty(t, names)
				return
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestFuzzyName_Ranking(t *testing.T) {
	idx := Build([]model.Transaction{
		invoice("inv-a", "Jane Doe Clinic", "", "10", nil),
		invoice("inv-b", "Jane Doe", "", "20", nil),
	})

	got := idx.FuzzyName("jane doe")
	require.Len(t, got, 2)
	assert.Equal(t, "jane doe", got[0].Name, "full overlap ranks first")
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.InDelta(t, 2.0/3.0, got[1].Score, 1e-9)
}
