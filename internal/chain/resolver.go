// Package chain walks the multi-hop relation from a bank entry through its
// disbursement aggregate and gateway transactions down to invoices and their
// category codes.
package chain

import (
	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/service"
)

// Annotations resolves the current annotation of a record id, or nil.
type Annotations func(id string) *model.MatchAnnotation

// Resolver classifies how far each bank entry's settlement chain reaches.
type Resolver struct {
	annotations Annotations
	gatewayByID map[string]*model.Transaction
	invoiceByID map[string]*model.Transaction
}

// NewResolver builds a resolver over the current run's records.
func NewResolver(gateway, invoices []model.Transaction, annotations Annotations) *Resolver {
	r := &Resolver{
		annotations: annotations,
		gatewayByID: make(map[string]*model.Transaction, len(gateway)),
		invoiceByID: make(map[string]*model.Transaction, len(invoices)),
	}
	for i := range gateway {
		r.gatewayByID[gateway[i].ID] = &gateway[i]
	}
	for i := range invoices {
		r.invoiceByID[invoices[i].ID] = &invoices[i]
	}
	return r
}

// Resolve walks one bank entry's chain. A bank entry with no gateway link is
// unresolved; with gateway links but at least one member lacking an invoice
// with a category code, partially resolved; otherwise fully resolved.
func (r *Resolver) Resolve(bank *model.Transaction) model.ChainState {
	ann := r.annotations(bank.ID)
	if ann == nil || len(ann.LinkedGatewayIDs) == 0 {
		return model.ChainUnresolved
	}

	complete := true
	for _, gwID := range ann.LinkedGatewayIDs {
		if !r.gatewayReachesCategory(gwID) {
			complete = false
		}
	}
	if complete {
		return model.ChainFullyResolved
	}
	return model.ChainPartiallyResolved
}

// gatewayReachesCategory reports whether a gateway transaction links to an
// invoice that carries a category code, either via its own annotation or via
// the invoice record's metadata.
func (r *Resolver) gatewayReachesCategory(gatewayID string) bool {
	gw := r.gatewayByID[gatewayID]
	if gw == nil {
		return false
	}

	ann := r.annotations(gatewayID)
	if ann == nil {
		return false
	}
	if ann.AccountCode != "" {
		return true
	}
	if ann.MatchedTargetID == "" {
		return false
	}

	inv := r.invoiceByID[ann.MatchedTargetID]
	if inv == nil {
		return false
	}
	return inv.Meta(model.MetaAccountCode) != ""
}

// Coverage resolves every bank entry and tallies the three-way split exposed
// to operators as the coverage metric.
func (r *Resolver) Coverage(bank []model.Transaction) (service.ChainCoverage, map[string]model.ChainState) {
	var cov service.ChainCoverage
	states := make(map[string]model.ChainState, len(bank))
	for i := range bank {
		state := r.Resolve(&bank[i])
		states[bank[i].ID] = state
		switch state {
		case model.ChainFullyResolved:
			cov.FullyResolved++
		case model.ChainPartiallyResolved:
			cov.PartiallyResolved++
		case model.ChainUnresolved:
			cov.Unresolved++
		}
	}
	return cov, states
}
