// Package index builds the lookup structures over the invoice/order domain
// that every matching strategy consults. Indexes are built once per run and
// are read-only afterwards, so no locking is needed.
package index

import (
	"sort"
	"strings"

	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/normalize"
)

// InvoiceIndex holds every lookup structure over the invoice domain.
type InvoiceIndex struct {
	byID         map[string]*model.Transaction
	byExternalID map[string]*model.Transaction
	byName       map[string][]*model.Transaction
	byToken      map[string]map[string]struct{}
	byEmail      map[string][]*model.Transaction
	byBucket     map[int64][]*model.Transaction
	nameTokens   map[string][]string
	invoices     []*model.Transaction
}

// Build constructs all invoice-domain indexes. Input order does not matter;
// every index keeps its candidate lists sorted by id so lookups are
// deterministic across runs.
func Build(invoices []model.Transaction) *InvoiceIndex {
	idx := &InvoiceIndex{
		byID:         make(map[string]*model.Transaction, len(invoices)),
		byExternalID: make(map[string]*model.Transaction, len(invoices)*2),
		byName:       make(map[string][]*model.Transaction),
		byToken:      make(map[string]map[string]struct{}),
		byEmail:      make(map[string][]*model.Transaction),
		byBucket:     make(map[int64][]*model.Transaction),
		nameTokens:   make(map[string][]string),
		invoices:     make([]*model.Transaction, 0, len(invoices)),
	}

	for i := range invoices {
		inv := &invoices[i]
		idx.invoices = append(idx.invoices, inv)
		idx.byID[inv.ID] = inv

		if num := normalizeID(inv.Meta(model.MetaInvoiceNumber)); num != "" {
			idx.byExternalID[num] = inv
		}
		if num := normalizeID(inv.Meta(model.MetaOrderNumber)); num != "" {
			idx.byExternalID[num] = inv
		}

		name := normalize.Fold(inv.CustomerName)
		if name != "" {
			idx.byName[name] = append(idx.byName[name], inv)
			if _, ok := idx.nameTokens[name]; !ok {
				idx.nameTokens[name] = normalize.Tokens(inv.CustomerName)
			}
			for _, tok := range idx.nameTokens[name] {
				names, ok := idx.byToken[tok]
				if !ok {
					names = make(map[string]struct{})
					idx.byToken[tok] = names
				}
				names[name] = struct{}{}
			}
		}

		if email := strings.ToLower(strings.TrimSpace(inv.CustomerEmail)); email != "" {
			idx.byEmail[email] = append(idx.byEmail[email], inv)
		}

		idx.byBucket[normalize.AmountBucket(inv.Amount)] = append(
			idx.byBucket[normalize.AmountBucket(inv.Amount)], inv)
	}

	for _, list := range idx.byName {
		sortByID(list)
	}
	for _, list := range idx.byEmail {
		sortByID(list)
	}
	for _, list := range idx.byBucket {
		sortByID(list)
	}

	return idx
}

// Size returns the number of indexed invoices.
func (idx *InvoiceIndex) Size() int {
	return len(idx.invoices)
}

// All returns every indexed invoice, sorted by id.
func (idx *InvoiceIndex) All() []*model.Transaction {
	out := make([]*model.Transaction, len(idx.invoices))
	copy(out, idx.invoices)
	sortByID(out)
	return out
}

// ByID returns the invoice with the given record id.
func (idx *InvoiceIndex) ByID(id string) *model.Transaction {
	return idx.byID[id]
}

// ByExternalID returns the invoice whose invoice number or order number
// equals the given identifier, after id normalization.
func (idx *InvoiceIndex) ByExternalID(external string) *model.Transaction {
	return idx.byExternalID[normalizeID(external)]
}

// ExternalIDs returns all indexed external identifiers, sorted. Used by the
// id-substring strategy to probe descriptions.
func (idx *InvoiceIndex) ExternalIDs() []string {
	out := make([]string, 0, len(idx.byExternalID))
	for id := range idx.byExternalID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ByName returns invoices whose normalized customer name matches exactly.
func (idx *InvoiceIndex) ByName(name string) []*model.Transaction {
	return idx.byName[normalize.Fold(name)]
}

// ByNameSubstring returns invoices whose normalized customer name contains
// or is contained by the query, sorted by id. Exact hits are not repeated.
func (idx *InvoiceIndex) ByNameSubstring(name string) []*model.Transaction {
	query := normalize.Fold(name)
	if len(query) < normalize.MinTokenLen {
		return nil
	}
	var out []*model.Transaction
	for indexed, list := range idx.byName {
		if indexed == query {
			continue
		}
		if strings.Contains(indexed, query) || strings.Contains(query, indexed) {
			out = append(out, list...)
		}
	}
	sortByID(out)
	return out
}

// ByEmail returns invoices with the given customer email, case-insensitive.
func (idx *InvoiceIndex) ByEmail(email string) []*model.Transaction {
	return idx.byEmail[strings.ToLower(strings.TrimSpace(email))]
}

// ByAmountNear returns invoices in the amount bucket of the query and both
// neighboring buckets, covering sub-unit rounding across domains.
func (idx *InvoiceIndex) ByAmountNear(bucket int64) []*model.Transaction {
	var out []*model.Transaction
	for _, b := range []int64{bucket - 1, bucket, bucket + 1} {
		out = append(out, idx.byBucket[b]...)
	}
	sortByID(out)
	return out
}

// normalizeID canonicalizes an external identifier: upper-case, no
// whitespace, no separator punctuation.
func normalizeID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sortByID(list []*model.Transaction) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
