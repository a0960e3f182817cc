// Package model defines the core domain models used throughout the application.
package model

import (
	"sort"
	"time"
)

// MatchAnnotation is the output the pipeline writes back onto a transaction.
// It is created empty, refined strategy by strategy, and only ever merged
// forward; no phase deletes an annotation.
type MatchAnnotation struct {
	ClassifiedAt      time.Time
	MatchedTargetID   string
	MatchedInvoiceNum string
	AccountCode       string
	StrategyID        StrategyID
	LinkedGatewayIDs  []string
	LinkedInvoiceIDs  []string
	Confidence        float64
	Reconciled        bool
	ManuallyConfirmed bool
}

// IsZero reports whether the annotation carries no classification at all.
func (a *MatchAnnotation) IsZero() bool {
	return a.StrategyID == "" &&
		a.MatchedTargetID == "" &&
		a.AccountCode == "" &&
		!a.Reconciled &&
		!a.ManuallyConfirmed &&
		len(a.LinkedGatewayIDs) == 0 &&
		len(a.LinkedInvoiceIDs) == 0
}

// Classified reports whether the annotation carries a terminal classification.
func (a *MatchAnnotation) Classified() bool {
	return a.StrategyID != "" && (a.MatchedTargetID != "" || a.AccountCode != "" || len(a.LinkedGatewayIDs) > 0)
}

// effectiveStrategy treats a manual confirmation as the manual strategy so
// priority comparisons keep human decisions on top.
func (a *MatchAnnotation) effectiveStrategy() StrategyID {
	if a.ManuallyConfirmed {
		return StrategyManual
	}
	return a.StrategyID
}

// ShouldReplace reports whether incoming may overwrite the classification
// fields of the existing annotation. A stronger strategy always may; an equal
// or weaker one may not, except that any specific strategy may upgrade a
// catch-all. Manual confirmations are never replaced.
func (a *MatchAnnotation) ShouldReplace(incoming *MatchAnnotation) bool {
	if a.ManuallyConfirmed {
		return false
	}
	if a.StrategyID == "" {
		return true
	}
	if a.StrategyID == StrategyCatchAll && incoming.StrategyID != StrategyCatchAll {
		return true
	}
	return incoming.effectiveStrategy().Outranks(a.effectiveStrategy())
}

// Merge folds incoming into a, honoring the priority and monotonicity rules:
// reconciled never regresses, a weaker strategy never displaces a stronger
// one, and set-valued links are unioned rather than replaced. The result is
// the annotation that should be persisted.
func (a *MatchAnnotation) Merge(incoming *MatchAnnotation) MatchAnnotation {
	out := *a

	if a.ShouldReplace(incoming) {
		if incoming.StrategyID != "" {
			out.StrategyID = incoming.StrategyID
			out.Confidence = incoming.Confidence
			out.ClassifiedAt = incoming.ClassifiedAt
		}
		if incoming.MatchedTargetID != "" {
			out.MatchedTargetID = incoming.MatchedTargetID
		}
		if incoming.MatchedInvoiceNum != "" {
			out.MatchedInvoiceNum = incoming.MatchedInvoiceNum
		}
		if incoming.AccountCode != "" {
			out.AccountCode = incoming.AccountCode
		}
	}

	// Link sets are a set relation, not a claim; union regardless of rank.
	out.LinkedGatewayIDs = unionSorted(a.LinkedGatewayIDs, incoming.LinkedGatewayIDs)
	out.LinkedInvoiceIDs = unionSorted(a.LinkedInvoiceIDs, incoming.LinkedInvoiceIDs)

	// Reconciled is monotonic.
	out.Reconciled = a.Reconciled || incoming.Reconciled
	out.ManuallyConfirmed = a.ManuallyConfirmed || incoming.ManuallyConfirmed

	return out
}

// unionSorted merges two id sets into a sorted, deduplicated slice. Sorted
// output keeps repeated runs byte-identical.
func unionSorted(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
