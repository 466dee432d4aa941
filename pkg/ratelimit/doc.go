// Package ratelimit paces outbound HTTP requests.
//
// The Interval limiter enforces a minimum spacing between consecutive
// requests derived from a requests-per-second budget. It covers the
// client-side pacing half of rate limiting; server-side 429 responses are
// handled separately by the retry package.
package ratelimit
