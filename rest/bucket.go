// SPDX-License-Identifier: MIT

package rest

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/concordlib/concord/internal/metrics"
)

// bucket tracks one rate-limit window. The holder of mu owns the
// in-flight request for this bucket; requests on the same bucket
// serialize while distinct buckets proceed concurrently.
type bucket struct {
	mu sync.Mutex

	limit      int
	remaining  int
	resetAfter time.Duration
	expires    time.Time
	dirty      bool
	lastUsed   time.Time
}

func newBucket(defaultLimit int) *bucket {
	return &bucket{limit: defaultLimit, remaining: defaultLimit, lastUsed: time.Now()}
}

// reset opens a fresh window once the previous one expired.
func (b *bucket) reset() {
	b.remaining = b.limit
	b.expires = time.Time{}
	b.resetAfter = 0
	b.dirty = false
}

func (b *bucket) expired(now time.Time) bool {
	return !b.expires.IsZero() && now.After(b.expires)
}

// inactive reports whether the bucket has been idle long enough to prune.
func (b *bucket) inactive(now time.Time) bool {
	return now.Sub(b.lastUsed) >= 5*time.Minute
}

// update absorbs the rate-limit headers of a response. With useClock
// the reset is computed against the X-RateLimit-Reset wall time instead
// of trusting Reset-After, for hosts with well-synced clocks.
func (b *bucket) update(h http.Header, defaultLimit int, useClock bool) {
	if v := h.Get("X-RateLimit-Limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			b.limit = n
		}
	} else {
		b.limit = defaultLimit
	}

	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if b.dirty && n > b.remaining {
				// A stale response may not know about requests this
				// client already spent; never grow the window.
				n = b.remaining
			}
			b.remaining = n
			b.dirty = true
		}
	}

	resetAfter := h.Get("X-RateLimit-Reset-After")
	if useClock || resetAfter == "" {
		if v := h.Get("X-RateLimit-Reset"); v != "" {
			if ts, err := strconv.ParseFloat(v, 64); err == nil {
				reset := time.Unix(0, int64(ts*float64(time.Second)))
				b.resetAfter = time.Until(reset)
			}
		}
	} else if v, err := strconv.ParseFloat(resetAfter, 64); err == nil {
		b.resetAfter = time.Duration(v * float64(time.Second))
	}
	if b.resetAfter < 0 {
		b.resetAfter = 0
	}
	b.expires = time.Now().Add(b.resetAfter)
}

// limiter owns the route-key to bucket-hash mapping and the live
// buckets. Before a hash is learned a route gets a provisional bucket
// keyed by its own route key.
type limiter struct {
	mu           sync.Mutex
	hashes       map[string]string  // route key -> learned bucket hash
	buckets      map[string]*bucket // "hash:major" or "unknown:key:major"
	defaultLimit int
}

func newLimiter(defaultLimit int) *limiter {
	return &limiter{
		hashes:       map[string]string{},
		buckets:      map[string]*bucket{},
		defaultLimit: defaultLimit,
	}
}

func (l *limiter) provisionalKey(routeKey, major string) string {
	return "unknown:" + routeKey + ":" + major
}

// acquire returns the bucket currently responsible for the route.
func (l *limiter) acquire(r *Route) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	major := r.MajorParameters()
	key := l.provisionalKey(r.Key(), major)
	if hash, ok := l.hashes[r.Key()]; ok {
		key = hash + ":" + major
	}
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(l.defaultLimit)
		l.buckets[key] = b
		l.pruneLocked()
	}
	b.lastUsed = time.Now()
	return b
}

// learn records the bucket hash a response revealed for the route,
// migrating the live bucket under its discovered identity. Routes that
// alternate between hashes keep the newest one.
func (l *limiter) learn(r *Route, hash string, b *bucket) {
	if hash == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	major := r.MajorParameters()
	prev, known := l.hashes[r.Key()]
	if known && prev == hash {
		return
	}
	l.hashes[r.Key()] = hash
	l.buckets[hash+":"+major] = b
	if known {
		delete(l.buckets, prev+":"+major)
	} else {
		delete(l.buckets, l.provisionalKey(r.Key(), major))
	}
}

// pruneLocked drops idle buckets once the map has grown past 256.
func (l *limiter) pruneLocked() {
	if len(l.buckets) < 256 {
		metrics.BucketCount.Set(float64(len(l.buckets)))
		return
	}
	now := time.Now()
	for key, b := range l.buckets {
		if b.mu.TryLock() {
			if b.inactive(now) {
				delete(l.buckets, key)
			}
			b.mu.Unlock()
		}
	}
	metrics.BucketCount.Set(float64(len(l.buckets)))
}
