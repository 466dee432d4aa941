package mastodon

import (
	"net/url"
	"strconv"

	errs "tootsync/pkg/errors"
	"tootsync/pkg/retry"
)

// Me resolves the authenticated user's own account.
func (c *Client) Me() (Account, error) {
	return retry.OnRateLimit(c.log, func() (Account, error) {
		var account Account
		if err := c.getJSON(VerifyCredentialsPath, nil, true, &account); err != nil {
			return nil, err
		}
		return account, nil
	})
}

// SearchAccounts searches accounts by handle. resolve asks the server to
// look up handles it does not know locally.
func (c *Client) SearchAccounts(q string, limit int, resolve bool) ([]Account, error) {
	return retry.OnRateLimit(c.log, func() ([]Account, error) {
		params := url.Values{}
		params.Set("q", q)
		if limit > 0 {
			params.Set("limit", strconv.Itoa(limit))
		}
		params.Set("resolve", strconv.FormatBool(resolve))

		var accounts []Account
		if err := c.getJSON(AccountsSearchPath, params, true, &accounts); err != nil {
			return nil, err
		}
		return accounts, nil
	})
}

// ResolveAccount resolves a handle like "user@domain" to an account record.
// The top search result must match the requested handle exactly; a fuzzy
// near-miss is an error rather than a silently wrong account. An empty
// handle resolves the authenticated user.
func (c *Client) ResolveAccount(handle string) (Account, error) {
	if handle == "" {
		return c.Me()
	}

	accounts, err := c.SearchAccounts(handle, 1, true)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, errs.Newf(errs.ErrorTypeAccountNotFound, "no account found for %q", handle)
	}
	if acct := AccountAcct(accounts[0]); acct != handle {
		return nil, errs.Newf(errs.ErrorTypeAccountNotFound,
			"account not found: searched for %q but got %q", handle, acct)
	}
	return accounts[0], nil
}
