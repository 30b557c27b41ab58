package emitter

import (
	"testing"

	"github.com/lokutor-ai/ws-tts-gateway/internal/session"
	"github.com/lokutor-ai/ws-tts-gateway/pkg/audio"
)

func rawSpec() audio.Spec {
	return audio.Spec{SampleRate: 16000, Channels: 1, Codec: audio.PCM16Raw}
}

func seqAllocator() func() int {
	next := 0
	return func() int {
		next++
		return next
	}
}

func TestEmitter_CutsOnByteBound(t *testing.T) {
	e := New(rawSpec(), 10, seqAllocator())

	var chunks []session.AudioChunk
	chunks = append(chunks, e.Feed(0, make([]byte, 6))...)
	chunks = append(chunks, e.Feed(0, make([]byte, 6))...)

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 cut at the 10-byte bound", len(chunks))
	}
	if len(chunks[0].Audio) != 10 {
		t.Fatalf("chunk length = %d, want 10", len(chunks[0].Audio))
	}

	final, ok := e.Flush()
	if !ok {
		t.Fatal("expected a pending 2-byte remainder")
	}
	if len(final.Audio) != 2 {
		t.Fatalf("final chunk length = %d, want 2", len(final.Audio))
	}
}

func TestEmitter_CutsOnUnitAdvance(t *testing.T) {
	e := New(rawSpec(), 1024, seqAllocator())

	out := e.Feed(0, make([]byte, 4))
	if len(out) != 0 {
		t.Fatalf("unexpected cut before unit advance: %v", out)
	}

	out = e.Feed(1, make([]byte, 4))
	if len(out) != 1 {
		t.Fatalf("expected a cut on unit advance, got %d chunks", len(out))
	}
	if out[0].UnitIndexStart != 0 || out[0].UnitIndexEnd != 0 {
		t.Fatalf("cut chunk unit range = [%d,%d], want [0,0]", out[0].UnitIndexStart, out[0].UnitIndexEnd)
	}

	last, ok := e.Flush()
	if !ok {
		t.Fatal("expected pending data for unit 1")
	}
	if last.UnitIndexStart != 1 || last.UnitIndexEnd != 1 {
		t.Fatalf("flushed chunk unit range = [%d,%d], want [1,1]", last.UnitIndexStart, last.UnitIndexEnd)
	}
}

func TestEmitter_NoAdvanceNoCut(t *testing.T) {
	e := New(rawSpec(), 1024, seqAllocator())
	e.Feed(3, make([]byte, 4))
	out := e.Feed(3, make([]byte, 4))
	if len(out) != 0 {
		t.Fatalf("expected no cut while unit index unchanged, got %d", len(out))
	}
	final, ok := e.Flush()
	if !ok {
		t.Fatal("expected pending data")
	}
	if len(final.Audio) != 8 {
		t.Fatalf("flushed length = %d, want 8", len(final.Audio))
	}
}

func TestEmitter_FlushEmptyIsNoop(t *testing.T) {
	e := New(rawSpec(), 1024, seqAllocator())
	if _, ok := e.Flush(); ok {
		t.Fatal("expected Flush on empty emitter to report ok=false")
	}
}

func TestEmitter_WAVHeaderOnlyOnFirstChunk(t *testing.T) {
	spec := audio.Spec{SampleRate: 16000, Channels: 1, Codec: audio.PCM16WAV}
	e := New(spec, 4, seqAllocator())

	first := e.Feed(0, make([]byte, 4))
	if len(first) != 1 || len(first[0].WAVHeader) == 0 {
		t.Fatalf("expected first chunk to carry a wav header")
	}

	second := e.Feed(0, make([]byte, 4))
	if len(second) != 1 || len(second[0].WAVHeader) != 0 {
		t.Fatalf("expected later chunks to omit the wav header")
	}
}

func TestEmitter_DefaultChunkMaxBytesFromSampleRate(t *testing.T) {
	spec := audio.Spec{SampleRate: 16000, Channels: 1, Codec: audio.PCM16Raw}
	e := New(spec, 0, seqAllocator())
	want := audio.DefaultChunkMaxBytes(16000, 1)
	if e.chunkMaxBytes != want {
		t.Fatalf("chunkMaxBytes = %d, want %d derived from sample rate", e.chunkMaxBytes, want)
	}
}

func TestEmitter_ChunkSeqIsDenseAndAscending(t *testing.T) {
	e := New(rawSpec(), 4, seqAllocator())
	var seqs []int
	for i := 0; i < 3; i++ {
		for _, c := range e.Feed(i, make([]byte, 4)) {
			seqs = append(seqs, c.ChunkSeq)
		}
	}
	for i, s := range seqs {
		if s != i+1 {
			t.Fatalf("chunk_seq[%d] = %d, want %d", i, s, i+1)
		}
	}
}
