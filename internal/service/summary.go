package service

import (
	"time"

	"github.com/tallyho-dev/tallyho/internal/model"
)

// DecisionSample is one individual match decision retained for audit. Only a
// bounded number of samples are kept per run.
type DecisionSample struct {
	TransactionID string
	TargetID      string
	StrategyID    model.StrategyID
	AccountCode   string
	Confidence    float64
}

// SourceStatus records how completely one domain was fetched.
type SourceStatus struct {
	Domain   model.SourceDomain
	Error    string
	Fetched  int
	Pages    int
	Complete bool
}

// ChainCoverage is the three-way chain resolution split for bank entries.
type ChainCoverage struct {
	FullyResolved     int
	PartiallyResolved int
	Unresolved        int
}

// RunSummary is the stable output contract of a pipeline run: per-strategy
// counts, coverage percentages, and a bounded sample of decisions. It never
// contains the full result set.
type RunSummary struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	StrategyCounts  map[model.StrategyID]int
	PhaseCounts     map[string]int
	RunID           string
	Sources         []SourceStatus
	Samples         []DecisionSample
	MergeErrors     []string
	Chain           ChainCoverage
	TotalInflow     int
	Classified      int
	CoveragePercent float64
	DryRun          bool
	TwoPass         bool
}

// Duration returns the wall-clock duration of the run.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Complete reports whether every domain fetch ran to exhaustion. A false
// value means the run proceeded on partial data and results understate
// coverage.
func (s *RunSummary) Complete() bool {
	for _, src := range s.Sources {
		if !src.Complete {
			return false
		}
	}
	return true
}
