// Package breaker isolates failing remote dependencies behind a circuit
// breaker.
//
// A Breaker starts Closed. Once the configured number of consecutive failures
// is reached it opens and every Execute call fails fast with a retryable
// BreakerOpen error that carries the remaining recovery time. After the
// recovery timeout the breaker moves to HalfOpen and admits a single trial
// call: a success closes it, a failure opens it again.
package breaker
