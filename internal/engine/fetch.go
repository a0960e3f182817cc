package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tallyho-dev/tallyho/internal/common"
	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/service"
)

// domainData is everything fetched for one source domain.
type domainData struct {
	status       service.SourceStatus
	transactions []model.Transaction
}

// fetchDomains pulls the requested domains concurrently. A domain failing
// mid-stream keeps whatever pages already arrived and flags the source
// incomplete in the run summary instead of aborting the run; only a domain
// that yields nothing at all propagates its error.
func (e *Engine) fetchDomains(ctx context.Context, domains []model.SourceDomain, filter service.Filter) (map[model.SourceDomain]*domainData, error) {
	results := make(map[model.SourceDomain]*domainData, len(domains))
	for _, d := range domains {
		results[d] = &domainData{status: service.SourceStatus{Domain: d}}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, domain := range domains {
		domain := domain
		g.Go(func() error {
			data := results[domain]
			txns, pages, err := e.fetchAll(gctx, domain, filter)
			data.transactions = txns
			data.status.Fetched = len(txns)
			data.status.Pages = pages
			if err != nil {
				data.status.Error = err.Error()
				if len(txns) == 0 {
					return fmt.Errorf("fetch %s: %w", domain, err)
				}
				slog.Warn("source fetch incomplete, using partial data",
					"domain", domain,
					"fetched", len(txns),
					"error", err)
				return nil
			}
			data.status.Complete = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetchAll walks one domain's pages up to the hard page ceiling. The ceiling
// guarantees termination even against a store that keeps handing out
// cursors.
func (e *Engine) fetchAll(ctx context.Context, domain model.SourceDomain, filter service.Filter) ([]model.Transaction, int, error) {
	var (
		out    []model.Transaction
		cursor string
		pages  int
	)

	for {
		if pages >= e.cfg.MaxPages {
			return out, pages, fmt.Errorf("%w: %s after %d pages", common.ErrPageLimit, domain, pages)
		}
		if err := ctx.Err(); err != nil {
			return out, pages, err
		}

		var res *service.PageResult
		err := common.WithRetry(ctx, func() error {
			var fetchErr error
			res, fetchErr = e.store.FetchBySource(ctx, domain, filter, service.Page{
				Cursor: cursor,
				Limit:  e.cfg.PageSize,
			})
			if fetchErr != nil {
				return &common.RetryableError{Err: fetchErr, Retryable: common.IsRetryable(fetchErr)}
			}
			return nil
		}, e.retry)
		if err != nil {
			return out, pages, errors.Join(common.ErrSourceFetch, err)
		}

		pages++
		out = append(out, res.Transactions...)

		if res.NextCursor == "" {
			return out, pages, nil
		}
		cursor = res.NextCursor
	}
}
