// Package archiver orchestrates one archive run: it walks an account's
// statuses page by page, feeds them to the output sink and the incremental
// sync store, and downloads attached media.
package archiver

import (
	"fmt"

	"tootsync/pkg/logger"
	"tootsync/pkg/mastodon"
	"tootsync/pkg/output"
	"tootsync/pkg/store"
	"tootsync/pkg/ui"
)

// Options configures an archive run.
type Options struct {
	// Sink receives the final statuses payload and downloaded media. May be
	// nil when syncing into a store only.
	Sink output.Sink
	// Store enables incremental sync. Nil disables it.
	Store *store.Store
	// WithMedia downloads status attachments into the sink.
	WithMedia bool
	// Optimize hoists the shared account out of each status in the payload.
	Optimize bool
	// PageLimit is the page size for status fetches.
	PageLimit int
}

// Archiver drives a single account's archive run.
type Archiver struct {
	client *mastodon.Client
	opts   Options
	log    logger.Logger
}

// New creates an archiver over an authorized client.
func New(client *mastodon.Client, opts Options, log logger.Logger) *Archiver {
	return &Archiver{
		client: client,
		opts:   opts,
		log:    log,
	}
}

// Run archives the given account. With a store configured the walk is
// incremental: it starts from the stored watermark, and the newest status id
// of the first page becomes the next run's watermark. The watermark is
// written after the first page's statuses are stored and before any further
// pages are fetched, so it always points at a stored status and is exactly
// as fresh as what an interrupted run durably kept.
func (a *Archiver) Run(account mastodon.Account) error {
	accountID := account.ID()
	acct := mastodon.AccountAcct(account)
	progress := ui.NewProgressDisplay(acct)

	minID := ""
	if a.opts.Store != nil {
		if err := a.opts.Store.SetAccount(account); err != nil {
			return err
		}
		watermark, err := a.opts.Store.Watermark()
		if err != nil {
			return err
		}
		minID = watermark
		a.log.InfoWithFields("starting incremental run", map[string]interface{}{
			"account":   acct,
			"watermark": watermark,
		})
	}

	paginator := a.client.NewPaginator(accountID, minID, a.opts.PageLimit)

	var collected []mastodon.Status
	watermarkPending := a.opts.Store != nil
	for {
		page, err := paginator.Next()
		if err != nil {
			return fmt.Errorf("failed to fetch status page: %w", err)
		}
		if page == nil {
			break
		}

		progress.PageFetched(paginator.Page(), len(page))
		a.log.DebugWithFields("fetched status page", map[string]interface{}{
			"account":  acct,
			"page":     paginator.Page(),
			"statuses": len(page),
		})

		for _, status := range page {
			if a.opts.Store != nil {
				if err := a.opts.Store.AddStatus(status); err != nil {
					return err
				}
			}
			if a.opts.WithMedia && a.opts.Sink != nil {
				a.downloadStatusMedia(status, progress)
			}
		}

		// The watermark is committed only after the page's statuses are in
		// the store, and before the next page is fetched. An interrupted run
		// can lose a watermark but never record one pointing at statuses
		// that were not durably stored.
		if watermarkPending {
			if err := a.opts.Store.SetWatermark(page[0].ID()); err != nil {
				return err
			}
			watermarkPending = false
		}
		collected = append(collected, page...)
	}

	if a.opts.Sink != nil {
		var payload interface{} = collected
		if a.opts.Optimize {
			payload = output.Optimize(collected)
		}
		if err := a.opts.Sink.WriteStatuses(payload); err != nil {
			return err
		}
	}

	progress.Finish()
	a.log.InfoWithFields("archive run complete", map[string]interface{}{
		"account":  acct,
		"statuses": len(collected),
		"pages":    paginator.Page(),
	})
	return nil
}
