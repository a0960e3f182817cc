// Package engine orchestrates the reconciliation pipeline: fetch, index,
// aggregate, match, chain-resolve, classify, persist.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tallyho-dev/tallyho/internal/chain"
	"github.com/tallyho-dev/tallyho/internal/classify"
	"github.com/tallyho-dev/tallyho/internal/common"
	"github.com/tallyho-dev/tallyho/internal/disburse"
	"github.com/tallyho-dev/tallyho/internal/index"
	"github.com/tallyho-dev/tallyho/internal/match"
	"github.com/tallyho-dev/tallyho/internal/merge"
	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/service"
)

// Config holds engine tuning knobs. Zero values take defaults.
type Config struct {
	Tolerances  match.ToleranceTable
	Fallback    classify.Config
	PageSize    int
	MaxPages    int
	Workers     int
	SampleLimit int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Tolerances:  match.DefaultTolerances(),
		PageSize:    500,
		MaxPages:    1000,
		Workers:     4,
		SampleLimit: 25,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Tolerances == nil {
		c.Tolerances = def.Tolerances
	}
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = def.MaxPages
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.SampleLimit <= 0 {
		c.SampleLimit = def.SampleLimit
	}
	return c
}

// Options selects what one pipeline run does. This is the orchestration
// surface callers depend on.
type Options struct {
	Filter       service.Filter
	DomainFilter []model.SourceDomain
	DryRun       bool
	TwoPass      bool
}

// Engine runs the reconciliation pipeline against a record store.
type Engine struct {
	store service.RecordStore
	cfg   Config
	retry service.RetryOptions
}

// New creates an engine with the given store and configuration.
func New(store service.RecordStore, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Tolerances.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tolerance table: %w", err)
	}
	return &Engine{
		store: store,
		cfg:   cfg,
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// Run executes the full pipeline once. Phases are sequential; each depends
// on what the previous one staged. The store is read-only until the merge
// phase, so aborting earlier leaves it untouched. Dry runs execute the whole
// cascade and return the same summary without ever calling the write path.
func (e *Engine) Run(ctx context.Context, opts Options) (*service.RunSummary, error) {
	summary := &service.RunSummary{
		RunID:          uuid.NewString(),
		StartedAt:      time.Now(),
		DryRun:         opts.DryRun,
		TwoPass:        opts.TwoPass,
		StrategyCounts: make(map[model.StrategyID]int),
		PhaseCounts:    make(map[string]int),
	}

	domains := opts.DomainFilter
	if len(domains) == 0 {
		domains = []model.SourceDomain{model.SourceBank, model.SourceGateway, model.SourceInvoice}
	}
	for _, d := range domains {
		if !d.Valid() {
			return nil, fmt.Errorf("unknown source domain %q", d)
		}
	}

	slog.Info("starting reconciliation run",
		"run_id", summary.RunID,
		"dry_run", opts.DryRun,
		"two_pass", opts.TwoPass)

	data, err := e.fetchDomains(ctx, domains, opts.Filter)
	if err != nil {
		return nil, err
	}
	for _, d := range domains {
		summary.Sources = append(summary.Sources, data[d].status)
	}

	bank := transactionsOf(data, model.SourceBank)
	gateway := transactionsOf(data, model.SourceGateway)
	invoices := transactionsOf(data, model.SourceInvoice)
	if len(bank)+len(gateway)+len(invoices) == 0 {
		return nil, common.ErrNoRecords
	}

	slog.Info("fetched domains",
		"bank", len(bank),
		"gateway", len(gateway),
		"invoice", len(invoices))

	state := loadAnnotations(ctx, e.store, data)
	idx := index.Build(invoices)
	aggregates := disburse.Aggregate(gateway)
	summary.PhaseCounts["disbursement-aggregates"] = len(aggregates)
	members := 0
	for i := range aggregates {
		members += aggregates[i].MemberCount()
	}
	summary.PhaseCounts["disbursement-members"] = members

	e.runMatchPhases(ctx, bank, gateway, idx, aggregates, state, summary, false)

	// Chain resolution feeds the coverage metric and tells the fallback
	// what is still open.
	resolver := chain.NewResolver(gateway, invoices, state.get)
	summary.Chain, _ = resolver.Coverage(bank)

	e.runFallback(bank, gateway, idx, state, summary)

	if !opts.DryRun {
		merger := merge.New(e.store)
		errs := merger.ApplyAll(ctx, state.pending())
		for _, mergeErr := range errs {
			summary.MergeErrors = append(summary.MergeErrors, mergeErr.Error())
		}
		state.clearPending()
	}

	if opts.TwoPass {
		// The second pass benefits from annotations the first pass and the
		// fallback wrote: reverify and gateway-dominant both see more. Records
		// the first pass already matched hold their targets but are not
		// re-matched, so each match counts once per run.
		e.runMatchPhases(ctx, bank, gateway, idx, disburse.Aggregate(gateway), state, summary, true)
		summary.Chain, _ = resolver.Coverage(bank)
		if !opts.DryRun {
			merger := merge.New(e.store)
			errs := merger.ApplyAll(ctx, state.pending())
			for _, mergeErr := range errs {
				summary.MergeErrors = append(summary.MergeErrors, mergeErr.Error())
			}
			state.clearPending()
		}
	}

	e.fillCoverage(bank, gateway, state, summary)
	summary.FinishedAt = time.Now()

	slog.Info("reconciliation run complete",
		"run_id", summary.RunID,
		"coverage_percent", summary.CoveragePercent,
		"classified", summary.Classified,
		"total_inflow", summary.TotalInflow,
		"merge_errors", len(summary.MergeErrors),
		"duration", summary.Duration())

	return summary, nil
}

// runMatchPhases executes the matching cascade for gateway and bank records.
// Per-record work shards across workers; the exclusion set is the only
// shared mutable structure and is mutex-guarded internally.
func (e *Engine) runMatchPhases(ctx context.Context, bank, gateway []model.Transaction, idx *index.InvoiceIndex, aggregates []model.DisbursementAggregate, state *annotationState, summary *service.RunSummary, secondPass bool) {
	excl := match.NewExclusionSet()
	cascade := match.NewCascade(e.cfg.Tolerances, state.get)

	// Gateway transactions match against the invoice index.
	e.cascadeShard(ctx, gateway, cascade, idx, excl, state, summary, secondPass)

	// Bank entries try the disbursement aggregates first; an entry with no
	// gateway link falls back to the invoice cascade (direct settlements,
	// AP payments).
	bankMatcher := disburse.NewMatcher(aggregates, e.cfg.Tolerances)
	var unlinked []model.Transaction
	for i := range bank {
		tx := &bank[i]
		current := state.get(tx.ID)
		if current != nil && current.ManuallyConfirmed {
			continue
		}
		if secondPass && current != nil && len(current.LinkedGatewayIDs) > 0 {
			// Linked by the first pass of this run. Consume the payout so no
			// other entry can absorb it, but don't count the match again.
			bankMatcher.ExcludeMembers(current.LinkedGatewayIDs)
			continue
		}
		hit := bankMatcher.Match(tx)
		if hit == nil {
			if current == nil || len(current.LinkedGatewayIDs) == 0 {
				unlinked = append(unlinked, *tx)
			}
			continue
		}
		slog.Debug("bank entry absorbed payout",
			"bank_id", tx.ID,
			"strategy", hit.StrategyID,
			"aggregates", len(hit.Aggregates),
			"total", disburse.TotalOf(hit.Aggregates))
		state.stage(tx.ID, &model.MatchAnnotation{
			StrategyID:       hit.StrategyID,
			Confidence:       hit.Confidence,
			ClassifiedAt:     time.Now(),
			LinkedGatewayIDs: hit.GatewayIDs(),
			Reconciled:       true,
		})
		summary.StrategyCounts[hit.StrategyID]++
		e.sample(summary, service.DecisionSample{
			TransactionID: tx.ID,
			StrategyID:    hit.StrategyID,
			Confidence:    hit.Confidence,
		})
	}
	e.cascadeShard(ctx, unlinked, cascade, idx, excl, state, summary, secondPass)

	summary.PhaseCounts["cascade-claimed"] = excl.Len()
}

// cascadeShard fans per-record cascade work across workers. Record outcomes
// are independent except through the exclusion set.
func (e *Engine) cascadeShard(ctx context.Context, txns []model.Transaction, cascade *match.Cascade, idx *index.InvoiceIndex, excl *match.ExclusionSet, state *annotationState, summary *service.RunSummary, skipMatched bool) {
	if len(txns) == 0 {
		return
	}

	type outcome struct {
		txID string
		cand *match.Candidate
	}

	jobs := make(chan *model.Transaction)
	results := make(chan outcome)

	var wg sync.WaitGroup
	for w := 0; w < e.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				cand := cascade.Match(tx, idx, excl)
				if cand != nil {
					results <- outcome{txID: tx.ID, cand: cand}
				}
			}
		}()
	}

	go func() {
		// Deterministic feed order: sorted by id. With exclusivity through
		// the claim set, feed order only matters when two records race for
		// one target; sorting keeps that race's resolution stable.
		ordered := make([]*model.Transaction, 0, len(txns))
		for i := range txns {
			current := state.get(txns[i].ID)
			if current != nil && current.ManuallyConfirmed {
				continue
			}
			if skipMatched && current != nil && current.MatchedTargetID != "" {
				// Matched earlier in this run. Hold the target so the match
				// stays exclusive, but don't re-run or re-count it. All claims
				// land before the first job is fed.
				excl.Claim(current.MatchedTargetID, txns[i].ID)
				continue
			}
			ordered = append(ordered, &txns[i])
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
		for _, tx := range ordered {
			jobs <- tx
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	now := time.Now()
	for res := range results {
		inv := res.cand.Target
		code := inv.Meta(model.MetaAccountCode)
		state.stage(res.txID, &model.MatchAnnotation{
			MatchedTargetID:   inv.ID,
			MatchedInvoiceNum: inv.Meta(model.MetaInvoiceNumber),
			AccountCode:       code,
			StrategyID:        res.cand.StrategyID,
			Confidence:        res.cand.Confidence,
			ClassifiedAt:      now,
			Reconciled:        true,
		})
		// The consumed invoice records the inverse link and is marked
		// reconciled as well.
		state.stage(inv.ID, &model.MatchAnnotation{
			MatchedTargetID: res.txID,
			StrategyID:      res.cand.StrategyID,
			Confidence:      res.cand.Confidence,
			ClassifiedAt:    now,
			Reconciled:      true,
		})
		summary.StrategyCounts[res.cand.StrategyID]++
		e.sample(summary, service.DecisionSample{
			TransactionID: res.txID,
			TargetID:      inv.ID,
			StrategyID:    res.cand.StrategyID,
			AccountCode:   code,
			Confidence:    res.cand.Confidence,
		})
	}
}

// runFallback applies the P&L classification cascade to every bank and
// gateway record still lacking a category code. After this phase no record
// remains unclassified.
func (e *Engine) runFallback(bank, gateway []model.Transaction, idx *index.InvoiceIndex, state *annotationState, summary *service.RunSummary) {
	dominant := classify.DominantByGateway(gateway, state.get)
	classifier := classify.New(idx, dominant, e.cfg.Fallback)

	for _, txns := range [][]model.Transaction{bank, gateway} {
		for i := range txns {
			tx := &txns[i]
			current := state.get(tx.ID)
			if current != nil && current.ManuallyConfirmed {
				continue
			}
			if current != nil && current.Classified() && !current.StrategyID.IsFallback() {
				// Matched-specific and matched-aggregate/chain are terminal
				// outcomes; the fallback only owns what the cascade left.
				// Its own prior results re-classify to the same answer, so
				// replayed runs report the same counts.
				continue
			}
			res := classifier.Classify(tx)
			state.stage(tx.ID, &model.MatchAnnotation{
				AccountCode:  res.AccountCode,
				StrategyID:   res.StrategyID,
				Confidence:   res.Confidence,
				ClassifiedAt: time.Now(),
				Reconciled:   res.Reconciled,
			})
			summary.StrategyCounts[res.StrategyID]++
			summary.PhaseCounts["fallback"]++
			e.sample(summary, service.DecisionSample{
				TransactionID: tx.ID,
				StrategyID:    res.StrategyID,
				AccountCode:   res.AccountCode,
				Confidence:    res.Confidence,
			})
		}
	}
}

// fillCoverage computes the totality metric over inflow records.
func (e *Engine) fillCoverage(bank, gateway []model.Transaction, state *annotationState, summary *service.RunSummary) {
	for _, txns := range [][]model.Transaction{bank, gateway} {
		for i := range txns {
			if !txns[i].IsInflow() {
				continue
			}
			summary.TotalInflow++
			if ann := state.get(txns[i].ID); ann != nil && ann.Classified() {
				summary.Classified++
			}
		}
	}
	if summary.TotalInflow > 0 {
		summary.CoveragePercent = 100 * float64(summary.Classified) / float64(summary.TotalInflow)
	} else {
		summary.CoveragePercent = 100
	}
}

func (e *Engine) sample(summary *service.RunSummary, s service.DecisionSample) {
	if len(summary.Samples) < e.cfg.SampleLimit {
		summary.Samples = append(summary.Samples, s)
	}
}

func transactionsOf(data map[model.SourceDomain]*domainData, domain model.SourceDomain) []model.Transaction {
	if d, ok := data[domain]; ok {
		return d.transactions
	}
	return nil
}
