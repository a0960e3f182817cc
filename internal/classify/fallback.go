package classify

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/tallyho-dev/tallyho/internal/index"
	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/normalize"
)

// Confidence values per fallback phase. Deliberately below every cascade
// strategy so a later run can upgrade any of these to a specific match.
const (
	ConfidenceInternal     = 0.95
	ConfidenceIntercompany = 0.90
	ConfidenceNameExact    = 0.75
	ConfidenceNameSub      = 0.65
	ConfidenceNameFuzzy    = 0.60
	ConfidenceDominant     = 0.55
	ConfidenceCatchAll     = 0.30
)

// Config tunes the fallback classifier. Zero values fall back to built-in
// defaults.
type Config struct {
	// EntityMarkers are the company's own internal-entity names; a
	// description containing a marker plus a legal suffix is intercompany.
	EntityMarkers []string
	// GatewayNames are provider names the name extractor must skip.
	GatewayNames []string
	// IntercompanyCode overrides the fixed intercompany category.
	IntercompanyCode string
	// CatchAllIncome and CatchAllExpense override the terminal buckets.
	CatchAllIncome  string
	CatchAllExpense string
}

func (c Config) withDefaults() Config {
	if len(c.GatewayNames) == 0 {
		c.GatewayNames = defaultGatewayNames
	}
	if c.IntercompanyCode == "" {
		c.IntercompanyCode = model.CategoryIntercompany
	}
	if c.CatchAllIncome == "" {
		c.CatchAllIncome = model.CategoryOtherIncome
	}
	if c.CatchAllExpense == "" {
		c.CatchAllExpense = model.CategoryOtherExpense
	}
	return c
}

// Result is the outcome of one fallback classification. Every call yields a
// result; the catch-all phase cannot fail.
type Result struct {
	TransactionID string
	StrategyID    model.StrategyID
	AccountCode   string
	ExtractedName string
	Confidence    float64
	Reconciled    bool
}

// Classifier applies the fallback phases A through E in strict order. Phases
// are mutually exclusive and short-circuiting.
type Classifier struct {
	idx      *index.InvoiceIndex
	dominant map[string]string
	cfg      Config
}

// New builds a fallback classifier over the run's invoice index. dominant
// maps a gateway name to its single most frequent category code, computed
// once per run from that gateway's already-resolved population (see
// DominantByGateway).
func New(idx *index.InvoiceIndex, dominant map[string]string, cfg Config) *Classifier {
	return &Classifier{
		idx:      idx,
		dominant: dominant,
		cfg:      cfg.withDefaults(),
	}
}

// Classify assigns a terminal classification to a transaction the cascade
// left unresolved. It never returns a zero result: the catch-all bucket
// guarantees totality unconditionally.
func (c *Classifier) Classify(tx *model.Transaction) Result {
	if r, ok := c.internalTransfer(tx); ok {
		return r
	}
	if r, ok := c.intercompany(tx); ok {
		return r
	}
	if r, ok := c.nameExtraction(tx); ok {
		return r
	}
	if r, ok := c.gatewayDominant(tx); ok {
		return r
	}
	return c.catchAll(tx)
}

// internalTransfer is phase A. Uniquely among fallback phases it also marks
// the transaction reconciled: an internal movement needs no external
// settlement proof.
func (c *Classifier) internalTransfer(tx *model.Transaction) (Result, bool) {
	if !MatchesInternalTransfer(tx.Description) {
		return Result{}, false
	}
	return Result{
		TransactionID: tx.ID,
		StrategyID:    model.StrategyInternalTransfer,
		AccountCode:   model.CategoryInternal,
		Confidence:    ConfidenceInternal,
		Reconciled:    true,
	}, true
}

// intercompany is phase B: a known internal-entity marker plus a legal
// suffix in the same description.
func (c *Classifier) intercompany(tx *model.Transaction) (Result, bool) {
	if len(c.cfg.EntityMarkers) == 0 || !HasLegalSuffix(tx.Description) {
		return Result{}, false
	}
	desc := strings.ToLower(tx.Description)
	for _, marker := range c.cfg.EntityMarkers {
		if marker == "" {
			continue
		}
		if strings.Contains(desc, strings.ToLower(marker)) {
			return Result{
				TransactionID: tx.ID,
				StrategyID:    model.StrategyIntercompany,
				AccountCode:   c.cfg.IntercompanyCode,
				Confidence:    ConfidenceIntercompany,
			}, true
		}
	}
	return Result{}, false
}

// nameExtraction is phase C: pull a counterparty name out of the
// description, skip gateway payouts, then look the name up exact, substring,
// and finally fuzzy against the invoice-name index. A hit classifies to the
// customer's modal category code.
func (c *Classifier) nameExtraction(tx *model.Transaction) (Result, bool) {
	name := ExtractName(tx.Description)
	if name == "" {
		return Result{}, false
	}
	if c.isGatewayName(name) {
		slog.Debug("extracted name is a gateway, skipping", "transaction_id", tx.ID, "name", name)
		return Result{}, false
	}

	if invoices := c.idx.ByName(name); len(invoices) > 0 {
		return c.nameResult(tx, name, invoices, model.StrategyNameExtraction, ConfidenceNameExact)
	}
	if invoices := c.idx.ByNameSubstring(name); len(invoices) > 0 {
		return c.nameResult(tx, name, invoices, model.StrategyNameExtraction, ConfidenceNameSub)
	}
	if matches := c.idx.FuzzyName(name); len(matches) > 0 {
		best := matches[0]
		return c.nameResult(tx, name, best.Invoices, model.StrategyNameExtraction, ConfidenceNameFuzzy*best.Score)
	}
	return Result{}, false
}

func (c *Classifier) nameResult(tx *model.Transaction, name string, invoices []*model.Transaction, strategy model.StrategyID, confidence float64) (Result, bool) {
	code := ModalAccountCode(invoices)
	if code == "" {
		return Result{}, false
	}
	return Result{
		TransactionID: tx.ID,
		StrategyID:    strategy,
		AccountCode:   code,
		ExtractedName: name,
		Confidence:    confidence,
	}, true
}

// gatewayDominant is phase D: the transaction is known to come from a
// gateway but has no direct invoice link, so it inherits that gateway's
// dominant category code.
func (c *Classifier) gatewayDominant(tx *model.Transaction) (Result, bool) {
	gateway := strings.ToLower(tx.Meta(model.MetaGatewayName))
	if gateway == "" {
		gateway = c.gatewayFromDescription(tx.Description)
	}
	if gateway == "" {
		return Result{}, false
	}
	code, ok := c.dominant[gateway]
	if !ok || code == "" {
		return Result{}, false
	}
	return Result{
		TransactionID: tx.ID,
		StrategyID:    model.StrategyGatewayDominant,
		AccountCode:   code,
		Confidence:    ConfidenceDominant,
	}, true
}

// catchAll is phase E. It exists to make the 100%-coverage invariant hold
// unconditionally and therefore cannot fail.
func (c *Classifier) catchAll(tx *model.Transaction) Result {
	code := c.cfg.CatchAllExpense
	if tx.IsInflow() {
		code = c.cfg.CatchAllIncome
	}
	return Result{
		TransactionID: tx.ID,
		StrategyID:    model.StrategyCatchAll,
		AccountCode:   code,
		Confidence:    ConfidenceCatchAll,
	}
}

func (c *Classifier) isGatewayName(name string) bool {
	folded := normalize.Fold(name)
	for _, gw := range c.cfg.GatewayNames {
		g := normalize.Fold(gw)
		if g == "" {
			continue
		}
		if folded == g || strings.Contains(folded, g) {
			return true
		}
	}
	return false
}

func (c *Classifier) gatewayFromDescription(description string) string {
	desc := strings.ToLower(description)
	for _, gw := range c.cfg.GatewayNames {
		if gw != "" && strings.Contains(desc, strings.ToLower(gw)) {
			return strings.ToLower(gw)
		}
	}
	return ""
}

// ModalAccountCode returns the most frequent financial account code across a
// customer's invoices. A customer can hold invoices in several categories;
// the dominant one is the best single-value estimate. Ties break to the
// lexically smallest code so reruns are stable.
func ModalAccountCode(invoices []*model.Transaction) string {
	counts := make(map[string]int)
	for _, inv := range invoices {
		if code := inv.Meta(model.MetaAccountCode); code != "" {
			counts[code]++
		}
	}
	if len(counts) == 0 {
		return ""
	}
	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	best := codes[0]
	for _, code := range codes[1:] {
		if counts[code] > counts[best] {
			best = code
		}
	}
	return best
}
