// Package normalize turns raw names, descriptions, and amounts into
// comparable forms shared by every matching strategy.
package normalize

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLen is the shortest token considered for fuzzy comparisons.
// Shorter tokens (initials, "of", legal particles) produce too many
// accidental collisions.
const MinTokenLen = 3

var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lower-cases text, strips diacritics and non-alphanumerics, and
// collapses runs of whitespace into single spaces. The result is the
// canonical comparable form of a name or description.
func Fold(text string) string {
	if text == "" {
		return ""
	}

	folded, _, err := transform.String(stripDiacritics, text)
	if err != nil {
		// Fall back on the raw text; a failed transform only costs recall.
		folded = text
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens folds text and splits it into the token set used for fuzzy
// comparison. Tokens shorter than MinTokenLen are discarded; duplicates are
// removed while preserving first-seen order.
func Tokens(text string) []string {
	folded := Fold(text)
	if folded == "" {
		return nil
	}

	fields := strings.Fields(folded)
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len(tok) < MinTokenLen {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TokenOverlap scores two token slices by sharedCount/max(lenA, lenB).
// This Jaccard-like overlap tolerates reordered words and legal-entity
// suffixes better than edit distance does on short names.
func TokenOverlap(a, b []string) (score float64, shared int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0
	}
	set := make(map[string]struct{}, len(a))
	for _, tok := range a {
		set[tok] = struct{}{}
	}
	for _, tok := range b {
		if _, ok := set[tok]; ok {
			shared++
		}
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return float64(shared) / float64(maxLen), shared
}

// AmountBucket maps an amount to its integer-rounded absolute bucket key,
// tolerating sub-unit rounding differences between domains. Callers probe
// neighboring buckets for amounts near a .5 boundary.
func AmountBucket(amount decimal.Decimal) int64 {
	return amount.Abs().Round(0).IntPart()
}

// WithinPercent reports whether b is within pct percent of a (a is the
// reference). A zero reference matches only an exactly zero b.
func WithinPercent(a, b decimal.Decimal, pct float64) bool {
	if a.IsZero() {
		return b.IsZero()
	}
	diff := a.Abs().Sub(b.Abs()).Abs()
	limit := a.Abs().Mul(decimal.NewFromFloat(pct / 100))
	return diff.LessThanOrEqual(limit)
}

// PercentDiff returns the absolute percentage difference of b from a.
// A zero reference yields 100 for any nonzero b.
func PercentDiff(a, b decimal.Decimal) float64 {
	if a.IsZero() {
		if b.IsZero() {
			return 0
		}
		return 100
	}
	diff := a.Abs().Sub(b.Abs()).Abs()
	ratio := diff.Div(a.Abs())
	f, _ := ratio.Mul(decimal.NewFromInt(100)).Float64()
	return f
}
