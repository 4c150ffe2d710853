// SPDX-License-Identifier: MIT

package rest

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerSet(pairs ...string) http.Header {
	h := http.Header{}
	for i := 0; i < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

func TestBucketUpdateFromHeaders(t *testing.T) {
	b := newBucket(1)
	b.update(headerSet(
		"X-RateLimit-Limit", "5",
		"X-RateLimit-Remaining", "3",
		"X-RateLimit-Reset-After", "2.5",
	), 1, false)

	assert.Equal(t, 5, b.limit)
	assert.Equal(t, 3, b.remaining)
	assert.InDelta(t, 2.5, b.resetAfter.Seconds(), 0.01)
	assert.False(t, b.expires.IsZero())
	assert.True(t, b.dirty)
}

func TestBucketUpdateNeverGrowsDirtyWindow(t *testing.T) {
	b := newBucket(1)
	b.update(headerSet("X-RateLimit-Limit", "5", "X-RateLimit-Remaining", "2", "X-RateLimit-Reset-After", "10"), 1, false)
	require.Equal(t, 2, b.remaining)

	// A delayed response claiming more room must not widen the window.
	b.update(headerSet("X-RateLimit-Limit", "5", "X-RateLimit-Remaining", "4", "X-RateLimit-Reset-After", "10"), 1, false)
	assert.Equal(t, 2, b.remaining)
}

func TestBucketExpiryReset(t *testing.T) {
	b := newBucket(1)
	b.update(headerSet("X-RateLimit-Limit", "2", "X-RateLimit-Remaining", "0", "X-RateLimit-Reset-After", "0.01"), 1, false)

	time.Sleep(20 * time.Millisecond)
	require.True(t, b.expired(time.Now()))
	b.reset()
	assert.Equal(t, 2, b.remaining)
	assert.False(t, b.dirty)
}

func TestLimiterLearnsAndMigratesHash(t *testing.T) {
	l := newLimiter(1)
	r := NewRoute("POST", "/channels/{channel_id}/messages").WithChannel(1)

	b := l.acquire(r)
	require.Len(t, l.buckets, 1)
	_, provisional := l.buckets[l.provisionalKey(r.Key(), "1")]
	assert.True(t, provisional)

	l.learn(r, "abc123", b)
	assert.Equal(t, "abc123", l.hashes[r.Key()])
	assert.Same(t, b, l.buckets["abc123:1"])
	_, provisional = l.buckets[l.provisionalKey(r.Key(), "1")]
	assert.False(t, provisional, "provisional key should be gone after learning")

	// Same route again resolves to the learned bucket.
	again := l.acquire(NewRoute("POST", "/channels/{channel_id}/messages").WithChannel(1))
	assert.Same(t, b, again)

	// Distinct major parameters get their own bucket under the hash.
	other := l.acquire(NewRoute("POST", "/channels/{channel_id}/messages").WithChannel(2))
	assert.NotSame(t, b, other)
}

func TestLimiterPrunesIdleBuckets(t *testing.T) {
	l := newLimiter(1)

	// Fill the map to one short of the prune threshold, then age every
	// bucket past the idle cutoff.
	for i := 0; i < 255; i++ {
		l.acquire(NewRoute("GET", fmt.Sprintf("/guilds/{guild_id}/widget%d", i)).WithGuild(7))
	}
	require.Len(t, l.buckets, 255)
	stale := time.Now().Add(-10 * time.Minute)
	for _, b := range l.buckets {
		b.lastUsed = stale
	}

	// One aged bucket has a request in flight; its held mutex must
	// shield it from the sweep.
	heldRoute := NewRoute("GET", "/guilds/{guild_id}/widget0").WithGuild(7)
	heldKey := l.provisionalKey(heldRoute.Key(), heldRoute.MajorParameters())
	held := l.buckets[heldKey]
	require.NotNil(t, held)
	held.mu.Lock()
	defer held.mu.Unlock()

	// The 256th bucket trips the sweep.
	fresh := l.acquire(NewRoute("GET", "/guilds/{guild_id}/vanity-url").WithGuild(7))

	assert.Len(t, l.buckets, 2)
	assert.Same(t, held, l.buckets[heldKey], "in-flight bucket must survive the sweep")
	freshRoute := NewRoute("GET", "/guilds/{guild_id}/vanity-url").WithGuild(7)
	assert.Same(t, fresh, l.buckets[l.provisionalKey(freshRoute.Key(), freshRoute.MajorParameters())])
}

func TestLimiterAlternatingHashKeepsNewest(t *testing.T) {
	l := newLimiter(1)
	r := NewRoute("GET", "/channels/{channel_id}").WithChannel(9)
	b := l.acquire(r)

	l.learn(r, "first", b)
	l.learn(r, "second", b)

	assert.Equal(t, "second", l.hashes[r.Key()])
	_, stale := l.buckets["first:9"]
	assert.False(t, stale, "old hash key should be dropped")
	assert.Same(t, b, l.buckets["second:9"])
}
