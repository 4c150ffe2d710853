// SPDX-License-Identifier: MIT

package state

import "github.com/concordlib/concord/types"

// ring is a fixed-capacity message buffer that evicts the oldest entry
// on overflow. Lookups scan; capacities are small enough (hundreds)
// that an index map is not worth its bookkeeping.
type ring struct {
	buf  []types.Message
	head int // index of the oldest entry
	size int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = defaultMessageCacheSize
	}
	return &ring{buf: make([]types.Message, capacity)}
}

func (r *ring) len() int { return r.size }

// add appends a message, evicting the oldest when full.
func (r *ring) add(m types.Message) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = m
		r.size++
		return
	}
	r.buf[r.head] = m
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) index(id types.Snowflake) int {
	for i := 0; i < r.size; i++ {
		pos := (r.head + i) % len(r.buf)
		if r.buf[pos].ID == id {
			return pos
		}
	}
	return -1
}

func (r *ring) get(id types.Snowflake) (types.Message, bool) {
	if pos := r.index(id); pos >= 0 {
		return r.buf[pos], true
	}
	return types.Message{}, false
}

// put overwrites an existing entry; missing IDs are ignored.
func (r *ring) put(m types.Message) {
	if pos := r.index(m.ID); pos >= 0 {
		r.buf[pos] = m
	}
}

// remove evicts one message, compacting the ring.
func (r *ring) remove(id types.Snowflake) (types.Message, bool) {
	pos := r.index(id)
	if pos < 0 {
		return types.Message{}, false
	}
	removed := r.buf[pos]
	// Shift everything after pos back one slot.
	for i := pos; ; {
		next := (i + 1) % len(r.buf)
		end := (r.head + r.size - 1) % len(r.buf)
		if i == end {
			break
		}
		r.buf[i] = r.buf[next]
		i = next
	}
	r.size--
	return removed, true
}

// all returns the buffered messages, oldest first.
func (r *ring) all() []types.Message {
	out := make([]types.Message, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}
