package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SourceDomain identifies which record domain a transaction came from.
type SourceDomain string

// Source domain constants.
const (
	SourceBank    SourceDomain = "bank"
	SourceGateway SourceDomain = "gateway"
	SourceInvoice SourceDomain = "invoice"
)

// Valid reports whether d is one of the three known domains.
func (d SourceDomain) Valid() bool {
	switch d {
	case SourceBank, SourceGateway, SourceInvoice:
		return true
	}
	return false
}

// Well-known metadata keys. Ingestion writes these; the engine only reads.
const (
	MetaTransactionID    = "transactionId"
	MetaSettlementDate   = "settlementDate"
	MetaDisbursementDate = "disbursementDate"
	MetaMerchantAccount  = "merchantAccountId"
	MetaInvoiceNumber    = "invoiceNumber"
	MetaOrderNumber      = "orderNumber"
	MetaAccountCode      = "financialAccountCode"
	MetaGatewayName      = "gatewayName"
)

// MetaDateLayout is the layout of date-valued metadata fields.
const MetaDateLayout = "2006-01-02"

// Transaction represents a single monetary event from one source domain.
// Transactions are immutable after ingestion except for their MatchAnnotation.
type Transaction struct {
	Date          time.Time
	Metadata      map[string]string
	ID            string
	Source        SourceDomain
	Currency      string
	Description   string
	CustomerName  string
	CustomerEmail string
	Hash          string
	Amount        decimal.Decimal
}

// Meta returns the metadata value for key, or "" when absent.
func (t *Transaction) Meta(key string) string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata[key]
}

// MetaDate parses a date-valued metadata field. The zero time and false are
// returned when the field is absent or malformed.
func (t *Transaction) MetaDate(key string) (time.Time, bool) {
	raw := t.Meta(key)
	if raw == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(MetaDateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// SettlementDay returns the day the transaction settled, preferring the
// explicit settlement date, then the disbursement date, then the transaction
// date itself, truncated to midnight UTC.
func (t *Transaction) SettlementDay() time.Time {
	if d, ok := t.MetaDate(MetaSettlementDate); ok {
		return d
	}
	if d, ok := t.MetaDate(MetaDisbursementDate); ok {
		return d
	}
	return t.Date.UTC().Truncate(24 * time.Hour)
}

// IsInflow reports whether the transaction moves money in.
func (t *Transaction) IsInflow() bool {
	return t.Amount.IsPositive()
}

// GenerateHash creates a unique hash for duplicate detection on import.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.Source,
		t.Date.Format("2006-01-02"),
		t.Amount.String(),
		t.Description,
		t.Meta(MetaTransactionID))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
