// Package emitter assembles PCM produced by the engine into size-bounded
// audio_chunk messages, assigning chunk_seq and the unit_index_start/end
// range each chunk covers.
package emitter

import (
	"time"

	"github.com/lokutor-ai/ws-tts-gateway/pkg/audio"
	"github.com/lokutor-ai/ws-tts-gateway/internal/session"
)

// Emitter cuts chunks per spec.md §4.4: a chunk is cut when chunk_max_bytes
// is reached, when the synthesizing unit advances (with at least one frame
// already accumulated), or when the caller explicitly flushes (engine-flush
// or terminal drain). It never spans tts_end — callers stop feeding it once
// the session enters DRAINING's final flush.
type Emitter struct {
	spec          audio.Spec
	chunkMaxBytes int

	buf            []byte
	unitIndexStart int
	unitIndexEnd   int
	haveData       bool

	chunkSeqSource func() int
	wavHeaderSent  bool
}

// New creates an Emitter for spec, cutting chunks at chunkMaxBytes. A
// chunkMaxBytes of 0 means "use the spec default" — 20ms of audio at the
// session's sample rate, rounded to a frame boundary (audio.DefaultChunkMaxBytes)
// — since that default is derived from the session, not a flat constant.
// nextChunkSeq supplies the session's dense chunk_seq allocator (see
// session.Session.NextChunkSeq) so chunk numbering stays centralized on the
// session.
func New(spec audio.Spec, chunkMaxBytes int, nextChunkSeq func() int) *Emitter {
	if chunkMaxBytes <= 0 {
		chunkMaxBytes = audio.DefaultChunkMaxBytes(spec.SampleRate, spec.Channels)
	}
	return &Emitter{
		spec:           spec,
		chunkMaxBytes:  chunkMaxBytes,
		chunkSeqSource: nextChunkSeq,
	}
}

// Feed appends frame (produced while synthesizing unitIndex) to the pending
// chunk, cutting and returning a chunk if unitIndex has advanced past what's
// already buffered or the byte bound is reached. The returned slice has 0 or
// 1 elements in the common case; it has more than one when a single Feed call
// both closes out the previous unit's chunk and reaches chunk_max_bytes, or
// when frame alone is large enough to fill chunk_max_bytes more than once,
// so the caller should not assume a fixed count.
func (e *Emitter) Feed(unitIndex int, frame []byte) []session.AudioChunk {
	var out []session.AudioChunk

	if e.haveData && unitIndex != e.unitIndexEnd {
		out = append(out, e.cut())
	}

	if !e.haveData {
		e.unitIndexStart = unitIndex
	}
	e.unitIndexEnd = unitIndex
	e.haveData = true
	e.buf = append(e.buf, frame...)

	for len(e.buf) >= e.chunkMaxBytes && e.chunkMaxBytes > 0 {
		out = append(out, e.cutBytes(e.chunkMaxBytes))
	}

	return out
}

// Flush cuts and returns any pending partial chunk. Called on engine-flush
// signals and at terminal drain. Returns a zero-value, false if nothing is
// pending.
func (e *Emitter) Flush() (session.AudioChunk, bool) {
	if !e.haveData {
		return session.AudioChunk{}, false
	}
	return e.cut(), true
}

func (e *Emitter) cut() session.AudioChunk {
	return e.cutBytes(len(e.buf))
}

func (e *Emitter) cutBytes(n int) session.AudioChunk {
	if n > len(e.buf) {
		n = len(e.buf)
	}
	payload := e.buf[:n]
	e.buf = append([]byte(nil), e.buf[n:]...)

	chunk := session.AudioChunk{
		ChunkSeq:       e.chunkSeqSource(),
		UnitIndexStart: e.unitIndexStart,
		UnitIndexEnd:   e.unitIndexEnd,
		Audio:          append([]byte(nil), payload...),
		EmittedAt:      time.Now(),
	}

	if e.spec.Codec == audio.PCM16WAV && !e.wavHeaderSent {
		chunk.WAVHeader = audio.NewStreamingWAVHeader(e.spec.SampleRate, e.spec.Channels)
		e.wavHeaderSent = true
	}

	if len(e.buf) == 0 {
		e.haveData = false
		e.unitIndexStart = e.unitIndexEnd
	} else {
		// Residual bytes from this unit still belong to unitIndexEnd; the
		// next cut's start stays at the same unit until Feed sees an
		// advance.
		e.unitIndexStart = e.unitIndexEnd
	}

	return chunk
}
