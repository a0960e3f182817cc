package match

import (
	"math"
	"time"

	"github.com/tallyho-dev/tallyho/internal/index"
	"github.com/tallyho-dev/tallyho/internal/model"
)

// Candidate is one acceptable match a strategy produced for a transaction.
type Candidate struct {
	Target       *model.Transaction
	StrategyID   model.StrategyID
	Confidence   float64
	DateDiffDays float64
	AmountPct    float64
}

// TieScore combines date distance and amount distance into the single value
// used to pick between candidates within one strategy: smaller is better.
func (c *Candidate) TieScore() float64 {
	return math.Abs(c.DateDiffDays) + c.AmountPct*100
}

// Strategy is one rung of the matching cascade: a pure function from a
// transaction plus the invoice indexes to at most one acceptable candidate.
// Strategies must not claim targets themselves; the cascade does the
// claiming so exclusivity bookkeeping lives in one place.
type Strategy interface {
	// ID is the human-readable provenance identifier.
	ID() model.StrategyID
	// TryMatch returns the best acceptable candidate, or nil. Transactions
	// missing a field the strategy needs are a non-match, never an error.
	TryMatch(tx *model.Transaction, idx *index.InvoiceIndex, excl *ExclusionSet) *Candidate
}

// dateDiffDays returns the signed day difference b-a.
func dateDiffDays(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24
}

// pickBest selects the candidate with the lowest tie score; equal scores fall
// back to target id so a rerun picks the same winner.
func pickBest(cands []Candidate) *Candidate {
	if len(cands) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(cands); i++ {
		si, sb := cands[i].TieScore(), cands[best].TieScore()
		if si < sb || (si == sb && cands[i].Target.ID < cands[best].Target.ID) {
			best = i
		}
	}
	return &cands[best]
}
