// Package session implements the per-connection state machine, its
// retention ring for resume, and the process-wide session registry.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/ws-tts-gateway/pkg/audio"
)

// State is one of the session lifecycle states.
type State string

const (
	StateIdle       State = "IDLE"
	StateRunning    State = "RUNNING"
	StateDraining   State = "DRAINING"
	StateCancelling State = "CANCELLING"
	StateClosed     State = "CLOSED"
	StateOrphan     State = "ORPHAN"
)

// AudioChunk is one cut of synthesized PCM, the unit the emitter produces
// and the retention ring stores.
type AudioChunk struct {
	ChunkSeq       int
	UnitIndexStart int
	UnitIndexEnd   int
	Audio          []byte
	WAVHeader      []byte // only set on the first chunk of a pcm16_wav session
	EmittedAt      time.Time
}

// Session is the unit of work: one client connection's worth of TTS
// streaming state. The gateway's synthesis task drives most transitions; the
// connection reader sets the cancellation latch and the registry adopts and
// reaps orphans. Fields are guarded by mu or are atomics. The send loop never
// reads the session.
type Session struct {
	mu sync.Mutex

	ID        string
	APIKey    string
	AudioSpec audio.Spec
	state     State

	ChunkSeq  int // next chunk_seq to assign, starts at 1
	UnitIndex int // next unit_index to assign, starts at 0

	retention *Retention

	cancelled atomic.Bool

	// textEndSeen is set once the gateway's synthesis task observes text_end.
	// The front door reads it on resume to pick OnResume's target state
	// (RUNNING if the client disconnected mid-stream, DRAINING if it
	// disconnected after text_end but before the final flush finished).
	textEndSeen atomic.Bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// Instrumentation (spec.md glossary: TTFA, UnitLatency).
	StartAcceptedAt time.Time
	FirstAudioAt    time.Time

	// orphanedAt is set when the session transitions to ORPHAN; the registry
	// reaps it once OrphanGrace has elapsed.
	orphanedAt time.Time
}

// New creates an IDLE session with an empty retention ring of the given
// capacity/age bound.
func New(id, apiKey string, spec audio.Spec, retentionCap int, retentionAge time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		APIKey:    apiKey,
		AudioSpec: spec,
		state:     StateIdle,
		ChunkSeq:  1,
		UnitIndex: 0,
		retention: NewRetention(retentionCap, retentionAge),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Retention exposes the session's retention ring for resume replay.
func (s *Session) Retention() *Retention {
	return s.retention
}

// IsCancelled reports whether the cancellation latch has been set. Safe to
// call from any goroutine without holding mu — the connection reader sets
// the latch while the synthesis task checks it between frames.
func (s *Session) IsCancelled() bool {
	return s.cancelled.Load()
}

// SetCancelled sets the cancellation latch. Idempotent.
func (s *Session) SetCancelled() {
	s.cancelled.Store(true)
}

// MarkTextEndSeen records that text_end has been processed, so a later
// resume (after the transport drops again before DRAINING finishes) targets
// DRAINING instead of RUNNING.
func (s *Session) MarkTextEndSeen() {
	s.textEndSeen.Store(true)
}

// TextEndSeen reports whether MarkTextEndSeen has been called.
func (s *Session) TextEndSeen() bool {
	return s.textEndSeen.Load()
}

// touch updates UpdatedAt; callers must hold mu.
func (s *Session) touch() {
	s.UpdatedAt = time.Now()
}
