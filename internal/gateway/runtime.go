package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/ws-tts-gateway/internal/emitter"
	"github.com/lokutor-ai/ws-tts-gateway/internal/protocol"
	"github.com/lokutor-ai/ws-tts-gateway/internal/segment"
	"github.com/lokutor-ai/ws-tts-gateway/internal/sendloop"
	"github.com/lokutor-ai/ws-tts-gateway/internal/session"
)

// inboundMsg is one item handed from a connection's reader goroutine to its
// session's synthesis task. err is set instead of data when the transport
// dropped — the synthesis task treats that as "transport gone" and keeps
// running so a later resume can re-attach (spec.md §4.3 ORPHAN).
type inboundMsg struct {
	data []byte
	err  error
}

// runtime is the pipeline state that outlives any single connection: the
// segmenter's partial buffer and the emitter's in-progress chunk must
// survive a disconnect/resume cycle, so they live here rather than on the
// per-connection reader/send-loop pair. Exactly one synthesis task per
// session owns this value; only sender/conn are swapped across a resume.
type runtime struct {
	mu sync.Mutex

	seg  *segment.Segmenter
	emit *emitter.Emitter

	sender *sendloop.SendLoop // nil while ORPHAN
	conn   *websocket.Conn    // nil while ORPHAN
	seq    *seqCounter

	inbound chan inboundMsg

	shutdown chan struct{}
	once     sync.Once

	lastMsgAt time.Time

	// ctx/cancelFn let an in-flight Engine.Synthesize call be preempted
	// between frames the moment a cancel message is read, instead of
	// waiting for the synthesis task to drain back to inbound (spec.md §5:
	// the cancellation latch is "checked between every emitted frame").
	// sessionReader cancels this directly, out-of-band from the inbound
	// channel it also feeds.
	ctx      context.Context
	cancelFn context.CancelFunc

	// lastClientSeq/clientSeqSeen enforce spec.md §7's "out-of-order seq"
	// protocol_error: accessed only from the single synthesis task goroutine,
	// so no lock is needed (same pattern as seg/emit above).
	lastClientSeq int64
	clientSeqSeen bool
}

func newRuntime(seg *segment.Segmenter, emit *emitter.Emitter) *runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &runtime{
		seg:       seg,
		emit:      emit,
		seq:       newSeqCounter(),
		inbound:   make(chan inboundMsg, 8),
		shutdown:  make(chan struct{}),
		lastMsgAt: time.Now(),
		ctx:       ctx,
		cancelFn:  cancel,
	}
}

// cancel cancels the per-session synthesis context. Idempotent, like
// session.SetCancelled.
func (rt *runtime) cancel() {
	rt.cancelFn()
}

// checkClientSeq enforces that seq is strictly greater than the last seq
// this session has accepted. Not safe for concurrent use — call only from
// the synthesis task.
func (rt *runtime) checkClientSeq(seq int64) bool {
	if rt.clientSeqSeen && seq <= rt.lastClientSeq {
		return false
	}
	rt.lastClientSeq = seq
	rt.clientSeqSeen = true
	return true
}

// attach wires a newly accepted (or resumed) connection's sender/conn onto
// the runtime, replacing whatever was there (nothing, on first attach; a
// stale stopped sender, on resume).
func (rt *runtime) attach(conn *websocket.Conn, sender *sendloop.SendLoop) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.conn = conn
	rt.sender = sender
	rt.lastMsgAt = time.Now()
}

// detach clears the active transport, used when the connection is observed
// gone. It stops the sender so its Run goroutine exits.
func (rt *runtime) detach() {
	rt.mu.Lock()
	sender := rt.sender
	rt.conn = nil
	rt.sender = nil
	rt.mu.Unlock()
	if sender != nil {
		sender.Stop()
	}
}

// current returns the currently attached sender/conn pair, or nils while
// ORPHAN.
func (rt *runtime) current() (*websocket.Conn, *sendloop.SendLoop) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.conn, rt.sender
}

// requestShutdown asks the synthesis task to stop at its next opportunity,
// used by graceful process shutdown (SPEC_FULL.md §C.4).
func (rt *runtime) requestShutdown() {
	rt.once.Do(func() { close(rt.shutdown) })
}

// runtimeTable is the process-wide map from session_id to its runtime,
// paralleling session.Registry's session map but scoped to gateway-owned
// pipeline state the session package itself never needs to know about.
type runtimeTable struct {
	mu    sync.Mutex
	table map[string]*runtime
}

func newRuntimeTable() *runtimeTable {
	return &runtimeTable{table: make(map[string]*runtime)}
}

func (t *runtimeTable) set(id string, rt *runtime) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table[id] = rt
}

func (t *runtimeTable) get(id string) *runtime {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.table[id]
}

func (t *runtimeTable) delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.table, id)
}

func (t *runtimeTable) all() []*runtime {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*runtime, 0, len(t.table))
	for _, rt := range t.table {
		out = append(out, rt)
	}
	return out
}

// sessionReader is the per-connection goroutine that feeds raw frames into
// the session's shared inbound channel. It is the "reader" half folded into
// the synthesis task's lifetime per spec.md §5 — the task itself is the
// consumer loop in synth.go; this goroutine dies with its connection, not
// with the session.
func sessionReader(conn *websocket.Conn, sess *session.Session, rt *runtime, stop <-chan struct{}) {
	// The idle-read timeout is enforced by the synthesis task (synth.go),
	// not by a per-Read deadline here — a per-Read deadline would also have
	// to account for however long the engine spends synthesizing between
	// reads, which has nothing to do with the client going idle.
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			select {
			case rt.inbound <- inboundMsg{err: err}:
			case <-stop:
			}
			return
		}

		// A cancel message sets the out-of-band latch and cancels the
		// synthesis context right here, on the reader's own goroutine,
		// instead of waiting for the synthesis task to drain back to
		// rt.inbound — which it won't do until it finishes synthesizing
		// every unit already fed from the current text_delta (spec.md §5:
		// "the cancellation latch is the sole out-of-band signal ...
		// checked between every emitted frame"). The message is still
		// forwarded below so the synthesis task runs its normal onCancel
		// teardown once it gets there.
		if typ, terr := protocol.SniffType(data); terr == nil && typ == protocol.TypeCancel {
			sess.SetCancelled()
			rt.cancel()
		}

		select {
		case rt.inbound <- inboundMsg{data: data}:
		case <-stop:
			return
		}
	}
}
