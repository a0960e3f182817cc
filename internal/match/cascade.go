package match

import (
	"log/slog"
	"strings"

	"github.com/tallyho-dev/tallyho/internal/index"
	"github.com/tallyho-dev/tallyho/internal/model"
)

// railKeywords maps description/metadata markers to payment rails. Checked
// in order against the gateway name first, then the description.
var railKeywords = []struct {
	keyword string
	rail    Rail
}{
	{"paypal", RailPaypalLike},
	{"stripe", RailCard},
	{"braintree", RailCard},
	{"adyen", RailCard},
	{"gocardless", RailDirectDebit},
	{"sepa", RailDirectDebit},
	{"direct debit", RailDirectDebit},
}

// RailOf guesses the payment rail a transaction rode on, from its gateway
// metadata or description. Unknown rails get the default tolerances.
func RailOf(tx *model.Transaction) Rail {
	haystacks := []string{
		strings.ToLower(tx.Meta(model.MetaGatewayName)),
		strings.ToLower(tx.Description),
	}
	for _, hay := range haystacks {
		if hay == "" {
			continue
		}
		for _, rk := range railKeywords {
			if strings.Contains(hay, rk.keyword) {
				return rk.rail
			}
		}
	}
	return RailDefault
}

// Cascade applies an ordered list of strategies to one transaction at a
// time: the first strategy to produce an acceptable candidate wins, and the
// winner's target is claimed in the exclusion set so no other transaction
// can take it this run. Strategies are never blended.
type Cascade struct {
	byRail map[Rail][]Strategy
}

// NewCascade builds the standard cascade for each payment rail. prior may be
// nil when no previous annotations exist (the reverify rung then never
// fires).
func NewCascade(table ToleranceTable, prior AnnotationLookup) *Cascade {
	c := &Cascade{byRail: make(map[Rail][]Strategy, 4)}
	for _, rail := range []Rail{RailCard, RailPaypalLike, RailDirectDebit, RailDefault} {
		tol := table.For(rail)
		c.byRail[rail] = []Strategy{
			ExternalIDStrategy{},
			ReverifyStrategy{Prior: prior},
			IDInDescriptionStrategy{},
			EmailStrategy{Tolerances: tol},
			EmailStrategy{Tolerances: tol, Loose: true},
			FuzzyNameStrategy{Tolerances: tol},
			FuzzyNameStrategy{Tolerances: tol, Loose: true},
			AmountDateStrategy{Tolerances: tol},
		}
	}
	return c
}

// Strategies returns the ordered strategy list for a rail. Exposed for
// callers that want a subset cascade.
func (c *Cascade) Strategies(rail Rail) []Strategy {
	return c.byRail[rail]
}

// Match runs the cascade for one transaction. The winning candidate's target
// is claimed before returning; a nil result means every rung declined and the
// transaction falls through to the chain resolver and the fallback
// classifier.
func (c *Cascade) Match(tx *model.Transaction, idx *index.InvoiceIndex, excl *ExclusionSet) *Candidate {
	for _, strat := range c.byRail[RailOf(tx)] {
		cand := strat.TryMatch(tx, idx, excl)
		if cand == nil {
			continue
		}
		if !excl.Claim(cand.Target.ID, tx.ID) {
			// Raced with another worker for the same target; this rung is
			// spent for this transaction, move to the next one.
			continue
		}
		slog.Debug("cascade matched",
			"transaction_id", tx.ID,
			"target_id", cand.Target.ID,
			"strategy", cand.StrategyID,
			"confidence", cand.Confidence)
		return cand
	}
	return nil
}
