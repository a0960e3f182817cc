package match

import (
	"math"
	"strings"

	"github.com/tallyho-dev/tallyho/internal/index"
	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/normalize"
)

// Fixed confidence values per strategy. Confidence travels with the
// annotation as provenance; it is not blended across strategies.
const (
	ConfidenceExternalID      = 0.97
	ConfidenceReverify        = 0.90
	ConfidenceIDInDescription = 0.90
	ConfidenceEmailAmountDate = 0.85
	ConfidenceEmailDate       = 0.70
	ConfidenceFuzzyCeiling    = 0.85
	ConfidenceFuzzyLoose      = 0.65
	ConfidenceAmountDate      = 0.60
)

// AnnotationLookup resolves the prior annotation for a record id, or nil.
// The reverify strategy uses it to defend against stale annotations.
type AnnotationLookup func(id string) *model.MatchAnnotation

// ExternalIDStrategy matches a transaction to an invoice through an exact
// external identifier: the transaction's order or invoice number resolved
// against the invoice-number index.
type ExternalIDStrategy struct{}

// ID implements Strategy.
func (ExternalIDStrategy) ID() model.StrategyID { return model.StrategyExternalID }

// TryMatch implements Strategy.
func (ExternalIDStrategy) TryMatch(tx *model.Transaction, idx *index.InvoiceIndex, excl *ExclusionSet) *Candidate {
	for _, key := range []string{model.MetaOrderNumber, model.MetaInvoiceNumber, model.MetaTransactionID} {
		external := tx.Meta(key)
		if external == "" {
			continue
		}
		inv := idx.ByExternalID(external)
		if inv == nil || inv.ID == tx.ID || excl.Claimed(inv.ID) {
			continue
		}
		return &Candidate{
			Target:       inv,
			StrategyID:   model.StrategyExternalID,
			Confidence:   ConfidenceExternalID,
			DateDiffDays: dateDiffDays(inv.Date, tx.Date),
			AmountPct:    normalize.PercentDiff(inv.Amount, tx.Amount) / 100,
		}
	}
	return nil
}

// ReverifyStrategy re-checks a previously established match against the
// current index. A stale annotation pointing at a record that no longer
// exists is dropped; a still-valid one is re-affirmed carrying the prior
// strategy and confidence forward, so replaying a run leaves the stored
// annotation untouched.
type ReverifyStrategy struct {
	Prior AnnotationLookup
}

// ID implements Strategy.
func (ReverifyStrategy) ID() model.StrategyID { return model.StrategyReverify }

// TryMatch implements Strategy.
func (s ReverifyStrategy) TryMatch(tx *model.Transaction, idx *index.InvoiceIndex, excl *ExclusionSet) *Candidate {
	if s.Prior == nil {
		return nil
	}
	prior := s.Prior(tx.ID)
	if prior == nil || prior.MatchedTargetID == "" {
		return nil
	}
	inv := idx.ByID(prior.MatchedTargetID)
	if inv == nil && prior.MatchedInvoiceNum != "" {
		inv = idx.ByExternalID(prior.MatchedInvoiceNum)
	}
	if inv == nil || excl.Claimed(inv.ID) {
		return nil
	}
	strategy := prior.StrategyID
	if strategy == "" {
		strategy = model.StrategyReverify
	}
	confidence := prior.Confidence
	if confidence == 0 {
		confidence = ConfidenceReverify
	}
	return &Candidate{
		Target:       inv,
		StrategyID:   strategy,
		Confidence:   confidence,
		DateDiffDays: dateDiffDays(inv.Date, tx.Date),
		AmountPct:    normalize.PercentDiff(inv.Amount, tx.Amount) / 100,
	}
}

// minProbeIDLen filters out identifiers too short to probe descriptions
// with; short numeric ids collide with amounts and dates constantly.
const minProbeIDLen = 4

// IDInDescriptionStrategy finds an invoice number literally present in the
// transaction's free-text description, confirmed by an exact amount match.
type IDInDescriptionStrategy struct{}

// ID implements Strategy.
func (IDInDescriptionStrategy) ID() model.StrategyID { return model.StrategyIDInDescription }

// TryMatch implements Strategy.
func (IDInDescriptionStrategy) TryMatch(tx *model.Transaction, idx *index.InvoiceIndex, excl *ExclusionSet) *Candidate {
	if tx.Description == "" || tx.Amount.IsZero() {
		return nil
	}
	desc := compactUpper(tx.Description)
	if desc == "" {
		return nil
	}

	var cands []Candidate
	for _, external := range idx.ExternalIDs() {
		if len(external) < minProbeIDLen || !strings.Contains(desc, external) {
			continue
		}
		inv := idx.ByExternalID(external)
		if inv == nil || excl.Claimed(inv.ID) {
			continue
		}
		if !inv.Amount.Abs().Equal(tx.Amount.Abs()) {
			continue
		}
		cands = append(cands, Candidate{
			Target:       inv,
			StrategyID:   model.StrategyIDInDescription,
			Confidence:   ConfidenceIDInDescription,
			DateDiffDays: dateDiffDays(inv.Date, tx.Date),
		})
	}
	return pickBest(cands)
}

// EmailStrategy matches on the customer email plus amount and date
// tolerances. Loose mode drops the amount check and pays for it with a lower
// confidence.
type EmailStrategy struct {
	Tolerances Tolerances
	Loose      bool
}

// ID implements Strategy.
func (s EmailStrategy) ID() model.StrategyID {
	if s.Loose {
		return model.StrategyEmailDate
	}
	return model.StrategyEmailAmountDate
}

// TryMatch implements Strategy.
func (s EmailStrategy) TryMatch(tx *model.Transaction, idx *index.InvoiceIndex, excl *ExclusionSet) *Candidate {
	if tx.CustomerEmail == "" || tx.Date.IsZero() {
		return nil
	}
	if !s.Loose && tx.Amount.IsZero() {
		return nil
	}

	var cands []Candidate
	for _, inv := range idx.ByEmail(tx.CustomerEmail) {
		if excl.Claimed(inv.ID) {
			continue
		}
		diffDays := dateDiffDays(inv.Date, tx.Date)
		if math.Abs(diffDays) > float64(s.Tolerances.DateWindowDays) {
			continue
		}
		if !s.Loose && !normalize.WithinPercent(inv.Amount, tx.Amount, s.Tolerances.AmountPercent) {
			continue
		}
		confidence := ConfidenceEmailAmountDate
		if s.Loose {
			confidence = ConfidenceEmailDate
		}
		cands = append(cands, Candidate{
			Target:       inv,
			StrategyID:   s.ID(),
			Confidence:   confidence,
			DateDiffDays: diffDays,
			AmountPct:    normalize.PercentDiff(inv.Amount, tx.Amount) / 100,
		})
	}
	return pickBest(cands)
}

// FuzzyNameStrategy matches on token-overlap name similarity combined with
// amount and date tolerances. Confidence scales with the similarity score up
// to a ceiling; the loose variant drops the amount check.
type FuzzyNameStrategy struct {
	Tolerances Tolerances
	Loose      bool
}

// ID implements Strategy.
func (s FuzzyNameStrategy) ID() model.StrategyID {
	if s.Loose {
		return model.StrategyFuzzyName
	}
	return model.StrategyFuzzyNameAmount
}

// TryMatch implements Strategy.
func (s FuzzyNameStrategy) TryMatch(tx *model.Transaction, idx *index.InvoiceIndex, excl *ExclusionSet) *Candidate {
	name := tx.CustomerName
	if name == "" {
		name = tx.Description
	}
	if name == "" || tx.Date.IsZero() {
		return nil
	}
	if !s.Loose && tx.Amount.IsZero() {
		return nil
	}

	ceiling := ConfidenceFuzzyCeiling
	if s.Loose {
		ceiling = ConfidenceFuzzyLoose
	}

	var cands []Candidate
	for _, match := range idx.FuzzyName(name) {
		for _, inv := range match.Invoices {
			if excl.Claimed(inv.ID) {
				continue
			}
			diffDays := dateDiffDays(inv.Date, tx.Date)
			if math.Abs(diffDays) > float64(s.Tolerances.DateWindowDays) {
				continue
			}
			if !s.Loose && !normalize.WithinPercent(inv.Amount, tx.Amount, s.Tolerances.AmountPercent) {
				continue
			}
			cands = append(cands, Candidate{
				Target:       inv,
				StrategyID:   s.ID(),
				Confidence:   ceiling * match.Score,
				DateDiffDays: diffDays,
				AmountPct:    normalize.PercentDiff(inv.Amount, tx.Amount) / 100,
			})
		}
	}
	return pickBest(cands)
}

// AmountDateStrategy is the last resort before the cascade gives up: an
// exact-bucket amount hit inside a narrow date window, with no identity
// signal at all.
type AmountDateStrategy struct {
	Tolerances Tolerances
}

// ID implements Strategy.
func (AmountDateStrategy) ID() model.StrategyID { return model.StrategyAmountDate }

// TryMatch implements Strategy.
func (s AmountDateStrategy) TryMatch(tx *model.Transaction, idx *index.InvoiceIndex, excl *ExclusionSet) *Candidate {
	if tx.Amount.IsZero() || tx.Date.IsZero() {
		return nil
	}

	var cands []Candidate
	for _, inv := range idx.ByAmountNear(normalize.AmountBucket(tx.Amount)) {
		if excl.Claimed(inv.ID) {
			continue
		}
		if !inv.Amount.Abs().Equal(tx.Amount.Abs()) {
			continue
		}
		diffDays := dateDiffDays(inv.Date, tx.Date)
		if math.Abs(diffDays) > float64(s.Tolerances.NarrowWindowDays) {
			continue
		}
		cands = append(cands, Candidate{
			Target:       inv,
			StrategyID:   model.StrategyAmountDate,
			Confidence:   ConfidenceAmountDate,
			DateDiffDays: diffDays,
		})
	}
	return pickBest(cands)
}

// compactUpper upper-cases text and strips everything but letters and
// digits, matching the normalization applied to external identifiers.
func compactUpper(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToUpper(text) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
