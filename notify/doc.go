// Package notify holds the notification dispatch queue: an in-memory set of
// per-user jobs delivered on a fixed tick with bounded, backed-off retries.
//
// Jobs are independent of each other. A failing recipient never blocks
// delivery to anyone else, and a job that exhausts MaxAttempts is dropped
// and logged rather than retried forever.
package notify
