package index

import (
	"sort"

	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/normalize"
)

// FuzzyThreshold is the minimum token-overlap score a candidate name must
// reach to be considered a fuzzy hit.
const FuzzyThreshold = 0.5

// NameMatch is one fuzzy name lookup hit.
type NameMatch struct {
	Name     string
	Invoices []*model.Transaction
	Score    float64
	Shared   int
}

// FuzzyName finds candidate invoice names sharing tokens with the query,
// scored by sharedTokens/max(queryTokens, candidateTokens). Candidates with
// score >= FuzzyThreshold and at least one shared token are returned ranked
// descending by score, ties broken by name then id so repeated runs rank
// identically.
func (idx *InvoiceIndex) FuzzyName(query string) []NameMatch {
	queryTokens := normalize.Tokens(query)
	if len(queryTokens) == 0 {
		return nil
	}

	candidates := make(map[string]struct{})
	for _, tok := range queryTokens {
		for name := range idx.byToken[tok] {
			candidates[name] = struct{}{}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	matches := make([]NameMatch, 0, len(candidates))
	for name := range candidates {
		score, shared := normalize.TokenOverlap(queryTokens, idx.nameTokens[name])
		if shared == 0 || score < FuzzyThreshold {
			continue
		}
		matches = append(matches, NameMatch{
			Name:     name,
			Invoices: idx.byName[name],
			Score:    score,
			Shared:   shared,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name < matches[j].Name
	})

	return matches
}
