package gateway

import "sync/atomic"

// seqCounter allocates the per-session monotonic seq field carried on every
// server message (spec.md §6: "seq on server messages is a per-session
// monotonic counter, distinct from chunk_seq"). The first call returns 0,
// matching start_ack's fixed seq=0.
type seqCounter struct {
	n int64
}

func newSeqCounter() *seqCounter {
	return &seqCounter{n: -1}
}

// next returns the next seq value, starting at 0.
func (c *seqCounter) next() int64 {
	return atomic.AddInt64(&c.n, 1)
}
