package session

import (
	"sync"
	"time"
)

// Retention is the bounded store of recently emitted chunks used to replay
// audio on resume (spec.md §4.4 "Retention", §4.6 "resume grace"). It holds
// at most cap chunks or chunks younger than maxAge, whichever is tighter —
// each Append prunes both bounds.
type Retention struct {
	mu     sync.Mutex
	cap    int
	maxAge time.Duration
	chunks []AudioChunk

	// evictedUpTo is the UnitIndexEnd of the furthest-reaching chunk ever
	// evicted from the ring, or -1 if nothing has been evicted yet. The ring
	// alone can't distinguish "nothing has been sent past this point" from
	// "something was sent and is now gone" once it empties out entirely
	// (e.g. every chunk aged out) — this cursor is what lets CanResumeFrom
	// tell those two cases apart (spec.md §3 "evicted chunks are unreachable
	// for resume").
	evictedUpTo int
}

// NewRetention creates a Retention ring of the given capacity and age bound.
// A zero cap or maxAge disables that respective bound (treated as
// unlimited) — callers should pass the spec defaults (R=256, T=30s).
func NewRetention(cap int, maxAge time.Duration) *Retention {
	return &Retention{cap: cap, maxAge: maxAge, evictedUpTo: -1}
}

// Append records chunk and evicts anything now outside the cap/age bounds.
func (r *Retention) Append(chunk AudioChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chunks = append(r.chunks, chunk)
	r.evictLocked()
}

func (r *Retention) evictLocked() {
	evict := func(n int) {
		if n <= 0 {
			return
		}
		for _, c := range r.chunks[:n] {
			if c.UnitIndexEnd > r.evictedUpTo {
				r.evictedUpTo = c.UnitIndexEnd
			}
		}
		r.chunks = append([]AudioChunk(nil), r.chunks[n:]...)
	}

	if r.maxAge > 0 {
		cutoff := time.Now().Add(-r.maxAge)
		i := 0
		for i < len(r.chunks) && r.chunks[i].EmittedAt.Before(cutoff) {
			i++
		}
		evict(i)
	}
	if r.cap > 0 && len(r.chunks) > r.cap {
		evict(len(r.chunks) - r.cap)
	}
}

// CanResumeFrom reports whether a resume request naming lastUnitIndexReceived
// can be fully satisfied from what's currently retained. It fails if a chunk
// reaching past lastUnitIndexReceived has already been evicted
// (tracked by evictedUpTo, independent of whether the ring has since gone
// empty), and otherwise checks that the oldest retained chunk picks up at or
// before lastUnitIndexReceived+1, so Since(lastUnitIndexReceived) covers the
// gap with no missing chunk in between (spec.md §4.1 "if ... older than the
// oldest retained chunk, reply resume_not_available").
func (r *Retention) CanResumeFrom(lastUnitIndexReceived int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evictedUpTo >= 0 && lastUnitIndexReceived < r.evictedUpTo {
		return false
	}
	if len(r.chunks) == 0 {
		return true
	}
	return r.chunks[0].UnitIndexStart <= lastUnitIndexReceived+1
}

// Since returns, in original order, every retained chunk whose
// UnitIndexStart is strictly greater than lastUnitIndexReceived (spec.md
// §4.1 "replay retained chunks with unit_index_start > last_unit_index_received").
func (r *Retention) Since(lastUnitIndexReceived int) []AudioChunk {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []AudioChunk
	for _, c := range r.chunks {
		if c.UnitIndexStart > lastUnitIndexReceived {
			cp := c
			cp.Audio = append([]byte(nil), c.Audio...)
			out = append(out, cp)
		}
	}
	return out
}

// Len reports how many chunks are currently retained.
func (r *Retention) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}
