// Package ratelimit is the rate-limited client for the repository host REST
// API.
//
// Every outbound call goes through one Client queue drained by a single
// goroutine, one call in flight at a time. The client tracks the primary
// budget from X-RateLimit-* headers on every response and pauses before the
// budget runs out. Failures are classified: primary limits wait for the
// reset and retry without spending retry budget, secondary limits, server
// errors and network errors back off exponentially up to MaxRetries, and
// anything else fails immediately. Retries go back to the head of the queue.
package ratelimit
