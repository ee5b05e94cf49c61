package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Fingerprint identifies equivalent deliveries:
// event|repository id|issue number|action|label.
type Fingerprint string

func NewFingerprint(event string, repositoryID int64, issueNumber int, action string, label string) Fingerprint {
	return Fingerprint(fmt.Sprintf("%s|%d|%d|%s|%s",
		strings.ToLower(strings.TrimSpace(event)),
		repositoryID,
		issueNumber,
		strings.ToLower(strings.TrimSpace(action)),
		strings.TrimSpace(label),
	))
}

type FingerprintOptions struct {
	TTL time.Duration
	// MaxEntries bounds the set. On overflow expired entries are swept
	// first, then the oldest entry is evicted.
	MaxEntries int
	Now        func() time.Time
}

// FingerprintSet is an in-memory TTL set of recently processed deliveries.
type FingerprintSet struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[Fingerprint]time.Time
}

func NewFingerprintSet(opts FingerprintOptions) *FingerprintSet {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	maxEntries := opts.MaxEntries
	if maxEntries < 0 {
		maxEntries = 0
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &FingerprintSet{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		entries:    map[Fingerprint]time.Time{},
	}
}

// Claim marks key as seen and reports whether it was absent. An entry older
// than the TTL counts as absent even before the sweeper removes it.
func (s *FingerprintSet) Claim(key Fingerprint) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if recordedAt, ok := s.entries[key]; ok && now.Sub(recordedAt) < s.ttl {
		return false
	}
	if _, ok := s.entries[key]; !ok && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.sweepLocked(now)
		if len(s.entries) >= s.maxEntries {
			s.evictOldestLocked()
		}
	}
	s.entries[key] = now
	return true
}

func (s *FingerprintSet) Contains(key Fingerprint) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	recordedAt, ok := s.entries[key]
	return ok && now.Sub(recordedAt) < s.ttl
}

// Release forgets key so an equivalent delivery is processed again.
func (s *FingerprintSet) Release(key Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Sweep removes expired entries and returns how many were removed.
func (s *FingerprintSet) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *FingerprintSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run sweeps every interval until ctx is done.
func (s *FingerprintSet) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *FingerprintSet) sweepLocked(now time.Time) int {
	removed := 0
	for key, recordedAt := range s.entries {
		if now.Sub(recordedAt) >= s.ttl {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *FingerprintSet) evictOldestLocked() {
	var oldestKey Fingerprint
	var oldest time.Time
	first := true
	for key, recordedAt := range s.entries {
		if first || recordedAt.Before(oldest) {
			oldestKey, oldest, first = key, recordedAt, false
		}
	}
	if !first {
		delete(s.entries, oldestKey)
	}
}
