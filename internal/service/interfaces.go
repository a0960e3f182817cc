// Package service defines the interfaces the reconciliation engine consumes.
package service

import (
	"context"
	"time"

	"github.com/tallyho-dev/tallyho/internal/model"
)

// Page requests one slice of a domain fetch. Cursor is opaque to the engine;
// a storage implementation may use offsets, keyset cursors, or anything else.
type Page struct {
	Cursor string
	Limit  int
}

// PageResult is one slice of records plus the cursor for the next slice.
// NextCursor is "" when the domain is exhausted.
type PageResult struct {
	NextCursor   string
	Transactions []model.Transaction
}

// Filter narrows a domain fetch.
type Filter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Currency  string
}

// RecordStore is the keyed-record store contract the engine runs against.
// The engine never sees how records are held; it only needs filtered,
// range-paginated reads and partial merge-updates of annotation blobs.
type RecordStore interface {
	// FetchBySource returns one page of a domain's transactions, ordered
	// deterministically (by date, then id).
	FetchBySource(ctx context.Context, domain model.SourceDomain, filter Filter, page Page) (*PageResult, error)

	// GetAnnotation returns the current annotation for a record. A record
	// with no annotation yet yields the zero annotation, not an error.
	GetAnnotation(ctx context.Context, id string) (*model.MatchAnnotation, error)

	// MergeAnnotation applies a partial annotation on top of whatever the
	// record currently carries, per model.MatchAnnotation merge rules.
	MergeAnnotation(ctx context.Context, id string, partial *model.MatchAnnotation) error
}

// Ingestor is the write-side contract used by import tooling, not by the
// engine itself.
type Ingestor interface {
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
}

// RetryOptions configures retry behavior for store operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
