// Package webhooks receives repository-host webhook deliveries and turns
// them into notification jobs.
//
// A delivery moves through a fixed sequence: size check, signature check,
// event-type header, allow-list, decode, fingerprint claim, filter chain and
// fan-out. Every delivery ends in exactly one ProcessedEvent outcome or a
// boundary error; boundary errors never mutate the fingerprint set.
package webhooks
