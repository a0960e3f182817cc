package model

// StrategyID names the matching strategy or fallback phase that produced an
// annotation. Recorded for provenance and used to rank annotations when two
// runs disagree.
type StrategyID string

// Matching cascade strategies, highest confidence first.
const (
	StrategyExternalID       StrategyID = "external-id"
	StrategyReverify         StrategyID = "reverify"
	StrategyIDInDescription  StrategyID = "id-in-description"
	StrategyEmailAmountDate  StrategyID = "email-amount-date"
	StrategyEmailDate        StrategyID = "email-date"
	StrategyFuzzyNameAmount  StrategyID = "fuzzy-name-amount"
	StrategyFuzzyName        StrategyID = "fuzzy-name"
	StrategyAmountDate       StrategyID = "amount-date"
	StrategyDisbursementDay  StrategyID = "disbursement-same-day"
	StrategyDisbursementNear StrategyID = "disbursement-window"
	StrategyDisbursementSum  StrategyID = "disbursement-sum"
)

// P&L fallback phases, applied only after the cascade gives up.
const (
	StrategyInternalTransfer StrategyID = "internal-transfer"
	StrategyIntercompany     StrategyID = "intercompany"
	StrategyNameExtraction   StrategyID = "name-extraction"
	StrategyGatewayDominant  StrategyID = "gateway-dominant"
	StrategyCatchAll         StrategyID = "catch-all"
)

// StrategyManual marks an annotation confirmed by a human. It outranks
// everything and is never overwritten.
const StrategyManual StrategyID = "manual"

// strategyPriority orders strategies from strongest to weakest. Lower is
// stronger. Unknown strategies sort last.
var strategyPriority = map[StrategyID]int{
	StrategyManual:           0,
	StrategyExternalID:       1,
	StrategyReverify:         2,
	StrategyIDInDescription:  3,
	StrategyDisbursementDay:  4,
	StrategyDisbursementNear: 5,
	StrategyDisbursementSum:  6,
	StrategyEmailAmountDate:  7,
	StrategyEmailDate:        8,
	StrategyFuzzyNameAmount:  9,
	StrategyFuzzyName:        10,
	StrategyAmountDate:       11,
	StrategyInternalTransfer: 12,
	StrategyIntercompany:     13,
	StrategyNameExtraction:   14,
	StrategyGatewayDominant:  15,
	StrategyCatchAll:         16,
}

// Priority returns the cascade ordinal for s. Lower values outrank higher
// ones when deciding whether an annotation may be replaced.
func (s StrategyID) Priority() int {
	if p, ok := strategyPriority[s]; ok {
		return p
	}
	return len(strategyPriority)
}

// Outranks reports whether s takes precedence over other.
func (s StrategyID) Outranks(other StrategyID) bool {
	return s.Priority() < other.Priority()
}

// IsFallback reports whether s is one of the P&L fallback phases.
func (s StrategyID) IsFallback() bool {
	switch s {
	case StrategyInternalTransfer, StrategyIntercompany, StrategyNameExtraction,
		StrategyGatewayDominant, StrategyCatchAll:
		return true
	}
	return false
}
