package disburse

import (
	"math"
	"sort"
	"time"

	"github.com/tallyho-dev/tallyho/internal/match"
	"github.com/tallyho-dev/tallyho/internal/model"
)

// Confidence values for the three bank-side aggregate strategies.
const (
	ConfidenceSameDay = 0.92
	ConfidenceWindow  = 0.85
	ConfidenceSum     = 0.80
)

// BankMatch links one bank entry to the aggregates funding it.
type BankMatch struct {
	BankID     string
	StrategyID model.StrategyID
	Aggregates []*model.DisbursementAggregate
	Confidence float64
}

// GatewayIDs returns the union of member gateway transaction ids, sorted.
func (m *BankMatch) GatewayIDs() []string {
	var out []string
	for _, agg := range m.Aggregates {
		out = append(out, agg.MemberIDs...)
	}
	sort.Strings(out)
	return out
}

// Matcher matches bank entries against disbursement aggregates. Matched
// aggregates are consumed for the rest of the run; two bank entries cannot
// absorb the same payout.
type Matcher struct {
	tolerances match.ToleranceTable
	aggregates []model.DisbursementAggregate
	consumed   map[string]bool
}

// NewMatcher builds a matcher over the given aggregates.
func NewMatcher(aggregates []model.DisbursementAggregate, tolerances match.ToleranceTable) *Matcher {
	return &Matcher{
		tolerances: tolerances,
		aggregates: aggregates,
		consumed:   make(map[string]bool),
	}
}

// ExcludeMembers consumes every aggregate containing any of the given
// gateway transaction ids, keeping payouts already linked to a bank entry
// out of later matching.
func (m *Matcher) ExcludeMembers(gatewayIDs []string) {
	ids := make(map[string]bool, len(gatewayIDs))
	for _, id := range gatewayIDs {
		ids[id] = true
	}
	for i := range m.aggregates {
		agg := &m.aggregates[i]
		if m.consumed[agg.Key()] {
			continue
		}
		for _, member := range agg.MemberIDs {
			if ids[member] {
				m.consumed[agg.Key()] = true
				break
			}
		}
	}
}

// currencyMismatch reports whether the aggregate settles in a different
// currency than the bank entry. Records without a currency stay eligible.
func currencyMismatch(agg *model.DisbursementAggregate, bank *model.Transaction) bool {
	return agg.Currency != "" && bank.Currency != "" && agg.Currency != bank.Currency
}

// Match tries, in order: a same-day amount match within the absolute
// tolerance; an amount match within the rail's disbursement window; a greedy
// multi-aggregate sum inside the lookback window. A nil result means the
// bank entry has no gateway link and is handed to the fallback classifier.
func (m *Matcher) Match(bank *model.Transaction) *BankMatch {
	if bank.Amount.IsZero() || bank.Date.IsZero() {
		return nil
	}
	tol := m.tolerances.For(match.RailOf(bank))
	bankDay := bank.Date.UTC().Truncate(24 * time.Hour)

	if hit := m.matchSingle(bank, bankDay, 0, tol); hit != nil {
		hit.StrategyID = model.StrategyDisbursementDay
		hit.Confidence = ConfidenceSameDay
		return hit
	}
	if hit := m.matchSingle(bank, bankDay, tol.DisburseWindowDays, tol); hit != nil {
		hit.StrategyID = model.StrategyDisbursementNear
		hit.Confidence = ConfidenceWindow
		return hit
	}
	return m.matchSum(bank, bankDay, tol)
}

// matchSingle finds the closest-in-time unconsumed aggregate whose total is
// within the absolute tolerance of the bank amount, no more than windowDays
// away.
func (m *Matcher) matchSingle(bank *model.Transaction, bankDay time.Time, windowDays int, tol match.Tolerances) *BankMatch {
	target := bank.Amount.Abs()

	var best *model.DisbursementAggregate
	bestDist := math.MaxFloat64
	for i := range m.aggregates {
		agg := &m.aggregates[i]
		if m.consumed[agg.Key()] || currencyMismatch(agg, bank) {
			continue
		}
		dist := math.Abs(bankDay.Sub(agg.Date).Hours() / 24)
		if dist > float64(windowDays) {
			continue
		}
		if agg.TotalAmount.Sub(target).Abs().GreaterThan(tol.AmountAbsolute) {
			continue
		}
		if dist < bestDist || (dist == bestDist && best != nil && agg.Key() < best.Key()) {
			best = agg
			bestDist = dist
		}
	}
	if best == nil {
		return nil
	}
	m.consumed[best.Key()] = true
	return &BankMatch{BankID: bank.ID, Aggregates: []*model.DisbursementAggregate{best}}
}

// matchSum greedily accumulates unconsumed aggregates inside the lookback
// window, closest in time to the bank date first, until the running sum is
// within tolerance of the bank amount. Models providers that batch several
// payout cycles into a single bank credit.
func (m *Matcher) matchSum(bank *model.Transaction, bankDay time.Time, tol match.Tolerances) *BankMatch {
	target := bank.Amount.Abs()

	type scored struct {
		agg  *model.DisbursementAggregate
		dist float64
	}
	var window []scored
	for i := range m.aggregates {
		agg := &m.aggregates[i]
		if m.consumed[agg.Key()] || currencyMismatch(agg, bank) {
			continue
		}
		dist := math.Abs(bankDay.Sub(agg.Date).Hours() / 24)
		if dist > float64(tol.SumLookbackDays) {
			continue
		}
		if agg.TotalAmount.GreaterThan(target.Add(tol.AmountAbsolute)) {
			continue
		}
		window = append(window, scored{agg: agg, dist: dist})
	}
	if len(window) == 0 {
		return nil
	}

	sort.Slice(window, func(i, j int) bool {
		if window[i].dist != window[j].dist {
			return window[i].dist < window[j].dist
		}
		return window[i].agg.Key() < window[j].agg.Key()
	})

	running := target.Sub(target) // zero in the bank's precision
	var picked []*model.DisbursementAggregate
	for _, s := range window {
		next := running.Add(s.agg.TotalAmount)
		if next.GreaterThan(target.Add(tol.AmountAbsolute)) {
			continue
		}
		running = next
		picked = append(picked, s.agg)
		if running.Sub(target).Abs().LessThanOrEqual(tol.AmountAbsolute) {
			for _, agg := range picked {
				m.consumed[agg.Key()] = true
			}
			return &BankMatch{
				BankID:     bank.ID,
				StrategyID: model.StrategyDisbursementSum,
				Aggregates: picked,
				Confidence: ConfidenceSum,
			}
		}
	}
	return nil
}
