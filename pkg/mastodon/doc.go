// Package mastodon is the core client for a single Mastodon instance.
//
// It covers instance resolution (webfinger and nodeinfo validation), the
// out-of-band OAuth authorization flow, account resolution, cursor-based
// status pagination, and media attachment downloads. All requests pass
// through one rate-limited chokepoint that converts HTTP 429 responses into
// waitable typed errors.
//
// Statuses and accounts are deliberately kept as semi-structured Document
// records: the archiver persists them verbatim and only ever inspects a
// handful of fields.
package mastodon
