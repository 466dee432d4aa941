// Package retry implements the single recovery policy for rate-limited
// requests: catch a 429 once, wait out the server's reset window, retry
// once. It is shared by the status paginator, the attachment fetcher, and
// the OAuth token operations so the catch-wait-retry block exists in one
// place.
package retry
