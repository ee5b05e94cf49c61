package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// State is the primary rate-limit budget reported by the repository host.
type State struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Known     bool
	UpdatedAt time.Time
}

type Tracker struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
}

func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Update records rate-limit headers from any response, successful or not.
// It reports whether the headers carried a usable budget.
func (t *Tracker) Update(header http.Header) bool {
	if len(header) == 0 {
		return false
	}
	remaining, hasRemaining := parseHeaderInt(header, HeaderRemaining)
	resetUnix, hasReset := parseHeaderInt64(header, HeaderReset)
	if !hasRemaining || !hasReset {
		return false
	}
	if remaining < 0 {
		remaining = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if limit, ok := parseHeaderInt(header, HeaderLimit); ok {
		t.state.Limit = limit
	}
	t.state.Remaining = remaining
	t.state.ResetAt = time.Unix(resetUnix, 0)
	t.state.Known = true
	t.state.UpdatedAt = t.now()
	return true
}

func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// WaitDuration is how long to pause before the next dispatch: until reset
// plus buffer when at most one call remains in the current window.
func (t *Tracker) WaitDuration(buffer time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Known || t.state.Remaining > 1 {
		return 0
	}
	now := t.now()
	if !now.Before(t.state.ResetAt) {
		return 0
	}
	return t.state.ResetAt.Add(buffer).Sub(now)
}

// RetryAfter reads Retry-After seconds, then the reset epoch, then fallback.
func RetryAfter(header http.Header, now time.Time, fallback time.Duration) time.Duration {
	if seconds, ok := parseHeaderInt(header, HeaderRetryAfter); ok && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if raw := strings.TrimSpace(header.Get(HeaderRetryAfter)); raw != "" {
		if at, err := http.ParseTime(raw); err == nil && at.After(now) {
			return at.Sub(now)
		}
	}
	if resetUnix, ok := parseHeaderInt64(header, HeaderReset); ok {
		if wait := time.Unix(resetUnix, 0).Sub(now); wait > 0 {
			return wait
		}
	}
	return fallback
}

func parseHeaderInt(header http.Header, key string) (int, bool) {
	raw := strings.TrimSpace(header.Get(key))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

func parseHeaderInt64(header http.Header, key string) (int64, bool) {
	raw := strings.TrimSpace(header.Get(key))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
