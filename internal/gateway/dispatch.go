package gateway

import (
	"context"
	"time"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/ws-tts-gateway/internal/emitter"
	"github.com/lokutor-ai/ws-tts-gateway/internal/protocol"
	"github.com/lokutor-ai/ws-tts-gateway/internal/segment"
	"github.com/lokutor-ai/ws-tts-gateway/internal/sendloop"
	"github.com/lokutor-ai/ws-tts-gateway/internal/session"
	"github.com/lokutor-ai/ws-tts-gateway/pkg/audio"
)

// handleStart admits a new session per spec.md §4.1/§4.6: validate the
// requested format, confirm it matches the bound engine's native sample
// rate exactly (no resampling), allocate a session_id if the client didn't
// supply one, and run Registry.Create's admission check before replying
// start_ack and spinning up the session's two long-running tasks.
func (s *Server) handleStart(ctx context.Context, conn *websocket.Conn, apiKey string, m *protocol.StartMessage) {
	seq := newSeqCounter()

	if err := protocol.ValidateStart(m); err != nil {
		s.writeFatal(ctx, conn, seq, protocol.ErrKindProtocolError, err.Error())
		return
	}

	spec := audio.Spec{SampleRate: m.SampleRate, Channels: m.Channels, Codec: audio.Codec(m.AudioFormat)}
	if err := spec.Validate(); err != nil {
		s.writeFatal(ctx, conn, seq, protocol.ErrKindUnsupportedSampleRate, err.Error())
		return
	}
	if spec.SampleRate != s.eng.NativeSampleRate() {
		s.writeFatal(ctx, conn, seq, protocol.ErrKindUnsupportedSampleRate, "engine does not support requested sample_rate")
		return
	}

	id := m.SessionID
	if id == "" {
		id = newID()
	}

	sess := session.New(id, apiKey, spec, s.cfg.RetentionChunks, s.cfg.RetentionAge)
	sess.StartAcceptedAt = time.Now()
	if err := s.reg.Create(sess); err != nil {
		s.writeFatal(ctx, conn, seq, protocol.ErrKindCapacityExhausted, err.Error())
		return
	}

	sender := sendloop.New(sendloop.WSConn{C: conn}, s.cfg.QueueCapacity, s.cfg.WriteTimeout, s.cfg.BackpressureWindow)

	rt := newRuntime(
		segment.New(true, s.cfg.FlushMinChars),
		emitter.New(spec, s.cfg.ChunkMaxBytes, sess.NextChunkSeq),
	)
	rt.attach(conn, sender)
	s.runtimes.set(id, rt)

	ack := protocol.StartAckMessage{
		Type:        protocol.TypeStartAck,
		SessionID:   id,
		Seq:         0,
		AudioFormat: protocol.AudioFormat(spec.Codec),
		SampleRate:  spec.SampleRate,
		Channels:    spec.Channels,
	}
	if err := sender.Enqueue(ack); err != nil {
		s.reg.Remove(id)
		s.runtimes.delete(id)
		return
	}
	rt.seq.next() // reserve seq 0 for start_ack, matching its fixed Seq field above

	stop := make(chan struct{})
	go func() {
		defer close(stop)
		_ = sender.Run(context.Background())
	}()
	go sessionReader(conn, sess, rt, stop)
	go s.synthesisLoop(sess, rt)
}

// handleResume re-attaches a dropped connection to its still-running
// synthesis task per spec.md §4.1: the session must currently be ORPHAN and
// resumable from what retention still holds, otherwise the gateway replies
// resume_not_available and closes.
func (s *Server) handleResume(ctx context.Context, conn *websocket.Conn, m *protocol.ResumeMessage) {
	seq := newSeqCounter()

	if err := protocol.ValidateResume(m); err != nil {
		s.writeFatal(ctx, conn, seq, protocol.ErrKindProtocolError, err.Error())
		return
	}

	sess := s.reg.Lookup(m.SessionID)
	if sess == nil || sess.State() != session.StateOrphan {
		s.writeFatal(ctx, conn, seq, protocol.ErrKindResumeNotAvailable, "no orphaned session with that id")
		return
	}
	if !sess.Retention().CanResumeFrom(m.LastUnitIndexReceived) {
		s.writeFatal(ctx, conn, seq, protocol.ErrKindResumeNotAvailable, "requested unit index no longer retained")
		return
	}

	rt := s.runtimes.get(m.SessionID)
	if rt == nil {
		s.writeFatal(ctx, conn, seq, protocol.ErrKindResumeNotAvailable, "no pipeline state for that session")
		return
	}

	if _, err := s.reg.Adopt(m.SessionID, sess.TextEndSeen()); err != nil {
		s.writeFatal(ctx, conn, seq, protocol.ErrKindResumeNotAvailable, err.Error())
		return
	}

	sender := sendloop.New(sendloop.WSConn{C: conn}, s.cfg.QueueCapacity, s.cfg.WriteTimeout, s.cfg.BackpressureWindow)
	rt.attach(conn, sender)

	for _, chunk := range sess.Retention().Since(m.LastUnitIndexReceived) {
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
			break
		}
	}

	stop := make(chan struct{})
	go func() {
		defer close(stop)
		_ = sender.Run(context.Background())
	}()
	go sessionReader(conn, sess, rt, stop)
	// The synthesis task for this session is already running from the
	// original handleStart call; resume only needed to re-attach transport.
}
