// Package match implements the ordered cascade of matching strategies that
// links transactions across record domains.
package match

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rail identifies a payment rail. Different rails disburse on different
// cadences, so tolerances are configured per rail rather than globally.
type Rail string

// Known payment rails.
const (
	RailCard        Rail = "card"
	RailPaypalLike  Rail = "paypal"
	RailDirectDebit Rail = "direct-debit"
	RailDefault     Rail = "default"
)

// Tolerances is the canonical tolerance table for one payment rail. The
// numeric defaults are starting points meant to be tuned in config against
// real data, not constants of nature.
type Tolerances struct {
	// AmountPercent is the relative amount tolerance for identity-based
	// strategies (email, fuzzy name).
	AmountPercent float64
	// AmountAbsolute is the absolute tolerance for aggregate sums, in
	// currency units.
	AmountAbsolute decimal.Decimal
	// DateWindowDays is the window for identity-based strategies.
	DateWindowDays int
	// NarrowWindowDays is the window for the amount-only last resort.
	NarrowWindowDays int
	// DisburseWindowDays is the bank-vs-aggregate date window.
	DisburseWindowDays int
	// SumLookbackDays bounds the multi-aggregate greedy sum search.
	SumLookbackDays int
}

// Validate rejects tables that would make matching degenerate.
func (t Tolerances) Validate() error {
	if t.AmountPercent < 0 || t.AmountPercent > 100 {
		return fmt.Errorf("amount percent tolerance out of range: %v", t.AmountPercent)
	}
	if t.AmountAbsolute.IsNegative() {
		return fmt.Errorf("amount absolute tolerance negative: %v", t.AmountAbsolute)
	}
	if t.DateWindowDays < 0 || t.NarrowWindowDays < 0 || t.DisburseWindowDays < 0 || t.SumLookbackDays < 0 {
		return fmt.Errorf("negative date window")
	}
	return nil
}

// ToleranceTable maps each rail to its tolerances, falling back to the
// default rail for anything unlisted.
type ToleranceTable map[Rail]Tolerances

// DefaultTolerances returns the built-in tolerance table.
func DefaultTolerances() ToleranceTable {
	return ToleranceTable{
		RailCard: {
			AmountPercent:      5,
			AmountAbsolute:     decimal.NewFromInt(1),
			DateWindowDays:     15,
			NarrowWindowDays:   3,
			DisburseWindowDays: 3,
			SumLookbackDays:    10,
		},
		RailPaypalLike: {
			AmountPercent:      5,
			AmountAbsolute:     decimal.NewFromInt(1),
			DateWindowDays:     30,
			NarrowWindowDays:   5,
			DisburseWindowDays: 5,
			SumLookbackDays:    14,
		},
		RailDirectDebit: {
			AmountPercent:      5,
			AmountAbsolute:     decimal.NewFromInt(1),
			DateWindowDays:     30,
			NarrowWindowDays:   5,
			DisburseWindowDays: 5,
			SumLookbackDays:    10,
		},
		RailDefault: {
			AmountPercent:      5,
			AmountAbsolute:     decimal.NewFromInt(1),
			DateWindowDays:     15,
			NarrowWindowDays:   3,
			DisburseWindowDays: 4,
			SumLookbackDays:    10,
		},
	}
}

// For returns the tolerances for rail, falling back to defaults.
func (tt ToleranceTable) For(rail Rail) Tolerances {
	if t, ok := tt[rail]; ok {
		return t
	}
	if t, ok := tt[RailDefault]; ok {
		return t
	}
	return DefaultTolerances()[RailDefault]
}

// Validate checks every rail's table.
func (tt ToleranceTable) Validate() error {
	for rail, t := range tt {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("rail %s: %w", rail, err)
		}
	}
	return nil
}
