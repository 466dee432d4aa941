package mastodon

import (
	"net/url"
	"strconv"

	"tootsync/pkg/retry"
)

// Statuses fetches one page of an account's statuses. maxID is an exclusive
// upper bound walking backward in time; minID bounds how old results may be.
// Either may be empty.
func (c *Client) Statuses(accountID, maxID, minID string, limit int) ([]Status, error) {
	params := url.Values{}
	if maxID != "" {
		params.Set("max_id", maxID)
	}
	if minID != "" {
		params.Set("min_id", minID)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var statuses []Status
	if err := c.getJSON(StatusesPath(accountID), params, true, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Paginator walks an account's statuses backward in time, one page at a
// time. It is forward-only and not restartable: after each page the cursor
// advances to the last item's id. An optional minID floor, fixed at
// construction, bounds the walk for incremental runs.
type Paginator struct {
	client    *Client
	accountID string
	maxID     string
	minID     string
	limit     int
	page      int
	done      bool
}

// NewPaginator creates a paginator over an account's statuses. minID may be
// empty for a full walk; limit caps the page size.
func (c *Client) NewPaginator(accountID, minID string, limit int) *Paginator {
	if limit <= 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return &Paginator{
		client:    c,
		accountID: accountID,
		minID:     minID,
		limit:     limit,
	}
}

// Page returns the number of pages fetched so far.
func (p *Paginator) Page() int {
	return p.page
}

// Next fetches the next page. A page fetch that hits the rate limit is
// retried exactly once after waiting out the reset. The sequence ends with a
// nil page on the first empty response.
func (p *Paginator) Next() ([]Status, error) {
	if p.done {
		return nil, nil
	}

	statuses, err := retry.OnRateLimit(p.client.log, func() ([]Status, error) {
		return p.client.Statuses(p.accountID, p.maxID, p.minID, p.limit)
	})
	if err != nil {
		return nil, err
	}

	if len(statuses) == 0 {
		p.done = true
		return nil, nil
	}

	p.page++
	p.maxID = statuses[len(statuses)-1].ID()
	return statuses, nil
}
