package session

import (
	"testing"
	"time"
)

func TestRetention_CapacityEviction(t *testing.T) {
	r := NewRetention(3, 0)
	for i := 1; i <= 5; i++ {
		r.Append(AudioChunk{ChunkSeq: i, UnitIndexStart: i - 1, UnitIndexEnd: i - 1, EmittedAt: time.Now()})
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if r.CanResumeFrom(0) {
		t.Fatal("resume cursor behind the capacity-evicted chunks should not be resumable")
	}
	if !r.CanResumeFrom(1) {
		t.Fatal("resume cursor at the eviction boundary should be resumable")
	}
}

func TestRetention_AgeEviction(t *testing.T) {
	r := NewRetention(0, 20*time.Millisecond)
	r.Append(AudioChunk{ChunkSeq: 1, UnitIndexStart: 0, UnitIndexEnd: 0, EmittedAt: time.Now()})
	time.Sleep(30 * time.Millisecond)
	r.Append(AudioChunk{ChunkSeq: 2, UnitIndexStart: 1, UnitIndexEnd: 1, EmittedAt: time.Now()})
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (first chunk should have aged out)", r.Len())
	}
}

func TestRetention_Since(t *testing.T) {
	r := NewRetention(256, 0)
	for i := 0; i < 5; i++ {
		r.Append(AudioChunk{ChunkSeq: i + 1, UnitIndexStart: i, UnitIndexEnd: i, EmittedAt: time.Now()})
	}
	replay := r.Since(2)
	if len(replay) != 2 {
		t.Fatalf("Since(2) returned %d chunks, want 2", len(replay))
	}
	if replay[0].UnitIndexStart != 3 || replay[1].UnitIndexStart != 4 {
		t.Fatalf("unexpected replay chunks: %+v", replay)
	}
}

func TestRetention_CanResumeFrom(t *testing.T) {
	r := NewRetention(256, 30*time.Second)
	if !r.CanResumeFrom(0) {
		t.Fatal("empty retention with nothing ever evicted should be resumable from anywhere")
	}

	for i := 0; i < 5; i++ {
		r.Append(AudioChunk{ChunkSeq: i + 1, UnitIndexStart: i, UnitIndexEnd: i, EmittedAt: time.Now()})
	}
	if !r.CanResumeFrom(2) {
		t.Fatal("nothing evicted yet, any cursor within range should be resumable")
	}
}

func TestRetention_CanResumeFrom_AfterEviction(t *testing.T) {
	r := NewRetention(2, 0)
	for i := 0; i < 5; i++ {
		r.Append(AudioChunk{ChunkSeq: i + 1, UnitIndexStart: i, UnitIndexEnd: i, EmittedAt: time.Now()})
	}
	// cap=2 retains units 3,4; units 0,1,2 were evicted.
	if r.CanResumeFrom(1) {
		t.Fatal("resume cursor behind an evicted chunk should not be resumable")
	}
	if !r.CanResumeFrom(2) {
		t.Fatal("resume cursor at the eviction boundary should be resumable")
	}
}

func TestRetention_CanResumeFrom_EmptiedByAge(t *testing.T) {
	r := NewRetention(0, 20*time.Millisecond)
	r.Append(AudioChunk{ChunkSeq: 1, UnitIndexStart: 0, UnitIndexEnd: 3, EmittedAt: time.Now()})
	time.Sleep(30 * time.Millisecond)
	// Age-based eviction runs on Append, so append a later chunk to trigger
	// it. The first chunk has aged out; CanResumeFrom must treat units
	// through 3 as evicted, even though the only retained chunk starts at
	// unit 10.
	r.Append(AudioChunk{ChunkSeq: 2, UnitIndexStart: 10, UnitIndexEnd: 10, EmittedAt: time.Now()})
	if r.CanResumeFrom(1) {
		t.Fatal("resume cursor behind an age-evicted chunk should not be resumable")
	}
}

func TestRetention_Empty(t *testing.T) {
	r := NewRetention(256, 30*time.Second)
	if got := r.Since(0); got != nil {
		t.Fatalf("Since on empty retention = %v, want nil", got)
	}
	if !r.CanResumeFrom(0) {
		t.Fatal("empty retention with nothing evicted should be resumable from anywhere")
	}
}
