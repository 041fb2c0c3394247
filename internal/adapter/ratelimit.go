package adapter

import (
	"sync"
	"time"
)

type bucketKey struct {
	instrument string
	minute     int64
}

// rateLimiter counts signals per (instrument, wall-clock minute) and caps
// each bucket. Stale buckets are purged by comparing bucket minutes
// numerically, so the cleanup works across day boundaries.
type rateLimiter struct {
	limit     int
	retention time.Duration

	mu      sync.Mutex
	buckets map[bucketKey]int
}

func newRateLimiter(limit int, retention time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:     limit,
		retention: retention,
		buckets:   make(map[bucketKey]int),
	}
}

// Allow consumes one slot for the instrument's current minute, reporting
// false when the bucket is already full.
func (r *rateLimiter) Allow(instrument string, now time.Time) bool {
	minute := now.Unix() / 60
	key := bucketKey{instrument: instrument, minute: minute}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buckets[key] >= r.limit {
		return false
	}
	r.buckets[key]++
	r.purgeLocked(minute)
	return true
}

func (r *rateLimiter) purgeLocked(minute int64) {
	cutoff := minute - int64(r.retention/time.Minute)
	for k := range r.buckets {
		if k.minute < cutoff {
			delete(r.buckets, k)
		}
	}
}

func (r *rateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
