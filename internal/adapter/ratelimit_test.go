package adapter

import (
	"testing"
	"time"
)

func TestRateLimitPerInstrumentMinute(t *testing.T) {
	r := newRateLimiter(10, 5*time.Minute)
	now := time.Date(2025, 6, 30, 23, 59, 30, 0, time.UTC)

	for i := 0; i < 10; i++ {
		if !r.Allow("NIFTY", now) {
			t.Fatalf("signal %d rejected below the limit", i+1)
		}
	}
	if r.Allow("NIFTY", now) {
		t.Fatal("11th signal in the same minute must be rejected")
	}
	if !r.Allow("BANKNIFTY", now) {
		t.Fatal("another instrument must have its own bucket")
	}
	if !r.Allow("NIFTY", now.Add(time.Minute)) {
		t.Fatal("next minute must open a fresh bucket")
	}
}

func TestRateLimitPurgeAcrossMonthBoundary(t *testing.T) {
	// Staleness is decided on numeric minutes. Formatted minute keys
	// compared lexicographically misjudge staleness across month and year
	// boundaries; this pins the numeric behavior.
	r := newRateLimiter(10, 5*time.Minute)

	june := time.Date(2025, 6, 30, 23, 59, 0, 0, time.UTC)
	r.Allow("NIFTY", june)
	if r.size() != 1 {
		t.Fatalf("buckets = %d, want 1", r.size())
	}

	july := time.Date(2025, 7, 1, 0, 10, 0, 0, time.UTC)
	r.Allow("NIFTY", july)
	if r.size() != 1 {
		t.Fatalf("stale June bucket not purged, buckets = %d", r.size())
	}
}

func TestRateLimitRetentionKeepsRecentBuckets(t *testing.T) {
	r := newRateLimiter(10, 5*time.Minute)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	r.Allow("NIFTY", base)
	r.Allow("NIFTY", base.Add(2*time.Minute))
	if r.size() != 2 {
		t.Fatalf("buckets = %d, want 2 within retention", r.size())
	}
}
