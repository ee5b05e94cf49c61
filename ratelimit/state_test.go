package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestTracker_UpdateRequiresRemainingAndReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tracker := NewTracker(func() time.Time { return now })

	header := http.Header{}
	header.Set(HeaderRemaining, "10")
	if tracker.Update(header) {
		t.Fatalf("expected update without reset to be ignored")
	}
	header.Set(HeaderReset, unixString(now.Add(time.Minute)))
	header.Set(HeaderLimit, "5000")
	if !tracker.Update(header) {
		t.Fatalf("expected update to be applied")
	}
	state := tracker.Snapshot()
	if !state.Known || state.Limit != 5000 || state.Remaining != 10 || !state.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestTracker_WaitDuration(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	current := now
	tracker := NewTracker(func() time.Time { return current })
	if wait := tracker.WaitDuration(time.Second); wait != 0 {
		t.Fatalf("expected no wait with unknown budget, got %s", wait)
	}

	header := http.Header{}
	header.Set(HeaderRemaining, "2")
	header.Set(HeaderReset, unixString(now.Add(10*time.Second)))
	tracker.Update(header)
	if wait := tracker.WaitDuration(time.Second); wait != 0 {
		t.Fatalf("expected no wait with budget left, got %s", wait)
	}

	header.Set(HeaderRemaining, "1")
	tracker.Update(header)
	if wait := tracker.WaitDuration(time.Second); wait != 11*time.Second {
		t.Fatalf("expected 11s wait, got %s", wait)
	}

	current = now.Add(20 * time.Second)
	if wait := tracker.WaitDuration(time.Second); wait != 0 {
		t.Fatalf("expected no wait after reset, got %s", wait)
	}
}

func TestRetryAfter_Precedence(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	header := http.Header{}
	header.Set(HeaderRetryAfter, "7")
	header.Set(HeaderReset, unixString(now.Add(time.Minute)))
	if wait := RetryAfter(header, now, time.Hour); wait != 7*time.Second {
		t.Fatalf("expected retry-after seconds, got %s", wait)
	}

	header = http.Header{}
	header.Set(HeaderRetryAfter, now.Add(90*time.Second).UTC().Format(http.TimeFormat))
	if wait := RetryAfter(header, now, time.Hour); wait != 90*time.Second {
		t.Fatalf("expected retry-after date, got %s", wait)
	}

	header = http.Header{}
	header.Set(HeaderReset, unixString(now.Add(time.Minute)))
	if wait := RetryAfter(header, now, time.Hour); wait != time.Minute {
		t.Fatalf("expected reset epoch, got %s", wait)
	}

	if wait := RetryAfter(http.Header{}, now, time.Hour); wait != time.Hour {
		t.Fatalf("expected fallback, got %s", wait)
	}
}
