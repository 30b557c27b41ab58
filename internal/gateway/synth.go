package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/ws-tts-gateway/internal/protocol"
	"github.com/lokutor-ai/ws-tts-gateway/internal/segment"
	"github.com/lokutor-ai/ws-tts-gateway/internal/sendloop"
	"github.com/lokutor-ai/ws-tts-gateway/internal/session"
)

// engineRetryBackoff is the cap on the single retry spec.md §7 allows for a
// transient per-unit engine hiccup ("retried once locally with exponential
// backoff capped at 500ms").
const engineRetryBackoff = 500 * time.Millisecond

// orphanPollInterval is how often the synthesis task checks whether the
// registry's periodic reaper has closed an ORPHAN session out from under
// it, so the task can exit instead of blocking on rt.inbound forever.
const orphanPollInterval = 500 * time.Millisecond

// synthesisLoop is the long-lived task spec.md §5 calls the "synthesis
// task": it owns sess, drains rt.inbound (fed by whichever connection is
// currently attached), drives the segmenter and engine, and hands resulting
// chunks to the send loop. It survives transport drops and resumes; it
// exits only once sess reaches CLOSED.
func (s *Server) synthesisLoop(sess *session.Session, rt *runtime) {
	ticker := time.NewTicker(orphanPollInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-rt.inbound:
			if msg.err != nil {
				s.handleTransportGone(sess, rt)
				continue
			}
			rt.lastMsgAt = time.Now()
			if done := s.handleInbound(sess, rt, msg.data); done {
				return
			}
		case <-ticker.C:
			if sess.State() == session.StateClosed {
				return
			}
			if sess.State() != session.StateOrphan && time.Since(rt.lastMsgAt) > s.cfg.IdleReadTimeout {
				s.terminate(sess, rt, protocol.ErrKindProtocolError, "idle read timeout")
				return
			}
		case <-rt.shutdown:
			s.terminate(sess, rt, protocol.ErrKindInternalError, "server shutting down")
			return
		}
	}
}

// handleInbound parses and dispatches one client message, returning true
// once the session has reached a terminal state and the loop should exit.
func (s *Server) handleInbound(sess *session.Session, rt *runtime, raw []byte) bool {
	msg, err := protocol.ParseClient(raw)
	if err != nil {
		s.terminate(sess, rt, protocol.ErrKindProtocolError, err.Error())
		return true
	}

	switch m := msg.(type) {
	case *protocol.TextDeltaMessage:
		if !rt.checkClientSeq(m.Seq) {
			s.terminate(sess, rt, protocol.ErrKindProtocolError, "out-of-order seq")
			return true
		}
		return s.onTextDelta(sess, rt, m)
	case *protocol.TextEndMessage:
		if !rt.checkClientSeq(m.Seq) {
			s.terminate(sess, rt, protocol.ErrKindProtocolError, "out-of-order seq")
			return true
		}
		return s.onTextEnd(sess, rt)
	case *protocol.CancelMessage:
		return s.onCancel(sess, rt)
	default:
		s.terminate(sess, rt, protocol.ErrKindProtocolError, "unexpected message type mid-session")
		return true
	}
}

func (s *Server) onTextDelta(sess *session.Session, rt *runtime, m *protocol.TextDeltaMessage) bool {
	switch sess.State() {
	case session.StateIdle:
		_ = sess.OnFirstTextDelta()
	case session.StateRunning:
	default:
		// text arriving after DRAINING/CANCELLING/CLOSED is a lost race
		// (spec.md §9 open question): whichever of cancel/text_end the
		// synthesis task observed first wins, so a trailing text_delta is
		// simply dropped rather than treated as a protocol error.
		s.log.Warn("text_delta dropped: session not accepting text", "session_id", sess.ID, "state", sess.State())
		return false
	}

	for _, u := range rt.seg.Feed(m.Text) {
		s.synthesizeUnit(sess, rt, u)
		if sess.IsCancelled() {
			return s.onCancel(sess, rt)
		}
	}
	return false
}

func (s *Server) onTextEnd(sess *session.Session, rt *runtime) bool {
	if sess.IsCancelled() {
		// cancel already won the race; text_end is the dropped loser
		s.log.Warn("text_end dropped: cancel already received", "session_id", sess.ID)
		return false
	}
	if err := sess.OnTextEnd(); err != nil {
		s.terminate(sess, rt, protocol.ErrKindProtocolError, err.Error())
		return true
	}
	sess.MarkTextEndSeen()

	u := rt.seg.End()
	s.synthesizeUnit(sess, rt, u)
	if sess.IsCancelled() {
		return s.onCancel(sess, rt)
	}

	if chunk, ok := rt.emit.Flush(); ok {
		s.sendChunk(sess, rt, chunk)
	}

	_ = sess.OnDrained()
	rt.cancel()
	_, sender := rt.current()
	if sender != nil {
		_ = sender.Enqueue(protocol.TTSEndMessage{Type: protocol.TypeTTSEnd, Seq: rt.seq.next(), Cancelled: false})
	}
	s.drainAndClose(rt, s.cfg.WriteTimeout)
	s.reg.Remove(sess.ID)
	return true
}

func (s *Server) onCancel(sess *session.Session, rt *runtime) bool {
	_ = sess.OnCancel()
	rt.cancel()
	_, sender := rt.current()
	if sender != nil {
		// Drop whatever audio_chunks are already queued before the final
		// tts_end — spec.md §5: "drop residual queued messages except the
		// final tts_end{cancelled=true}".
		sender.Purge()
		_ = sender.Enqueue(protocol.TTSEndMessage{Type: protocol.TypeTTSEnd, Seq: rt.seq.next(), Cancelled: true})
	}
	_ = sess.OnCancelledClosed()
	s.drainAndClose(rt, s.cfg.WriteTimeout)
	s.reg.Remove(sess.ID)
	return true
}

// synthesizeUnit drives the engine for one unit, feeding every PCM frame
// into the emitter and sending whatever chunks that feed cuts. On a
// zero-frame failure (the engine errored before producing any audio — a
// clean transient hiccup) it retries once after engineRetryBackoff, per
// spec.md §7. A failure after partial frames have already been emitted is
// not retried, since replaying the unit from frame zero would duplicate
// audio already sent (spec.md §3 causality/no-duplication invariants).
func (s *Server) synthesizeUnit(sess *session.Session, rt *runtime, u segment.Unit) {
	frames, err := s.attemptUnit(sess, rt, u)
	if err == nil || sess.IsCancelled() || errors.Is(err, context.Canceled) {
		return
	}
	if frames > 0 {
		s.terminate(sess, rt, protocol.ErrKindEngineError, err.Error())
		return
	}

	time.Sleep(engineRetryBackoff)
	if sess.IsCancelled() {
		return
	}
	if _, err := s.attemptUnit(sess, rt, u); err != nil && !sess.IsCancelled() && !errors.Is(err, context.Canceled) {
		s.terminate(sess, rt, protocol.ErrKindEngineError, err.Error())
	}
}

func (s *Server) attemptUnit(sess *session.Session, rt *runtime, u segment.Unit) (int, error) {
	frames := 0
	err := s.eng.Synthesize(rt.ctx, u.Text, func(frame []byte) error {
		if sess.IsCancelled() {
			return context.Canceled
		}
		frames++
		for _, chunk := range rt.emit.Feed(u.UnitIndex, frame) {
			s.sendChunk(sess, rt, chunk)
		}
		return nil
	})
	return frames, err
}

// sendChunk enqueues one audio_chunk on the currently attached send loop (if
// any), records it in the session's retention ring, and stamps TTFA on the
// first chunk ever sent. A full queue that stays full past the
// backpressure window terminates the session with error{kind=backpressure}
// (spec.md §4.5) — other sessions are unaffected, since each session owns
// its own queue and send loop.
func (s *Server) sendChunk(sess *session.Session, rt *runtime, chunk session.AudioChunk) {
	sess.Retention().Append(chunk)

	_, sender := rt.current()
	if sender == nil {
		return // ORPHAN: nothing to send to; the chunk is retained for replay on resume
	}

	msg := protocol.AudioChunkMessage{
		Type:           protocol.TypeAudioChunk,
		Seq:            rt.seq.next(),
		ChunkSeq:       chunk.ChunkSeq,
		UnitIndexStart: chunk.UnitIndexStart,
		UnitIndexEnd:   chunk.UnitIndexEnd,
		AudioBase64:    protocol.EncodeAudio(chunk.Audio),
	}
	if chunk.WAVHeader != nil {
		msg.WAVHeaderBase64 = protocol.EncodeAudio(chunk.WAVHeader)
	}

	if err := sender.Enqueue(msg); err != nil {
		if errors.Is(err, sendloop.ErrBackpressure) {
			s.terminate(sess, rt, protocol.ErrKindBackpressure, "client too slow")
		}
		return
	}
	if sess.FirstAudioAt.IsZero() {
		sess.FirstAudioAt = time.Now()
	}
}

// handleTransportGone reacts to a read error on the currently attached
// connection: detach it (stopping the send loop) and move the session to
// ORPHAN. The synthesis task keeps running so a resume within the grace
// window can re-attach a fresh connection to the same pipeline state.
func (s *Server) handleTransportGone(sess *session.Session, rt *runtime) {
	rt.detach()
	_ = sess.OnTransportGone()
}

// terminate sends a final error + tts_end{cancelled=true} best-effort
// directly on the currently attached connection (bypassing the bounded
// queue, since the queue itself may be the reason termination is
// happening), then tears the session down and removes it from the
// registry.
func (s *Server) terminate(sess *session.Session, rt *runtime, kind, message string) {
	s.metrics.record(kind)
	sess.SetCancelled()
	rt.cancel()
	_ = sess.OnCancel()

	conn, sender := rt.current()
	if sender != nil {
		sender.Stop()
	}
	if conn != nil {
		wctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		_ = wsjson.Write(wctx, conn, protocol.ErrorMessage{Type: protocol.TypeError, Seq: rt.seq.next(), Kind: kind, Message: message})
		_ = wsjson.Write(wctx, conn, protocol.TTSEndMessage{Type: protocol.TypeTTSEnd, Seq: rt.seq.next(), Cancelled: true})
		cancel()
		conn.Close(websocket.StatusNormalClosure, kind)
	}

	_ = sess.OnCancelledClosed()
	s.reg.Remove(sess.ID)
	s.runtimes.delete(sess.ID)
}

// drainAndClose waits up to timeout for the send loop's queue to empty
// (so a just-enqueued final tts_end actually reaches the client) before
// stopping the loop and closing the connection. Polling is simple and
// keeps sendloop's public API free of a drain-then-stop mode it otherwise
// wouldn't need.
func (s *Server) drainAndClose(rt *runtime, timeout time.Duration) {
	conn, sender := rt.current()
	if sender == nil {
		return
	}
	deadline := time.Now().Add(timeout)
	for sender.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sender.Stop()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "tts_end")
	}
	rt.detach()
}
