package model

// ChainState classifies how far a bank entry's settlement chain could be
// walked: bank entry → disbursement aggregate → gateway transactions →
// invoices → category codes.
type ChainState string

const (
	// ChainFullyResolved means every consulted path reaches a category code.
	ChainFullyResolved ChainState = "fully-resolved"
	// ChainPartiallyResolved means a gateway link exists but at least one
	// member lacks an invoice or category link.
	ChainPartiallyResolved ChainState = "partially-resolved"
	// ChainUnresolved means no gateway link exists at all.
	ChainUnresolved ChainState = "unresolved"
)

// Fixed category codes assigned by the fallback classifier.
const (
	CategoryInternal     = "internal"
	CategoryIntercompany = "intercompany"
	CategoryOtherIncome  = "other-income"
	CategoryOtherExpense = "other-expense"
)
