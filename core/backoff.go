package core

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes Base * 2^n capped at Max, plus a random jitter in [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// Delay returns the wait before retry n, where n counts from zero.
func (b Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	next := time.Duration(float64(base) * math.Pow(2, float64(n)))
	if next < 0 || (b.Max > 0 && next > b.Max) {
		next = b.Max
	}
	if b.Jitter > 0 {
		random := b.Rand
		if random == nil {
			random = rand.Float64
		}
		next += time.Duration(random() * float64(b.Jitter))
	}
	return next
}

// AttemptDelay is Delay keyed by a one-based attempt counter.
func (b Backoff) AttemptDelay(attempt int) time.Duration {
	return b.Delay(attempt - 1)
}
