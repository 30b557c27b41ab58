package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a caller requests a transition the
// state machine does not permit from the session's current state.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// validTransitions enumerates the edges from spec.md §4.3. It is consulted
// by transition() before any state is mutated.
var validTransitions = map[State]map[State]bool{
	StateIdle: {
		StateRunning:    true, // first text_delta
		StateCancelling: true,
		StateOrphan:     true,
	},
	StateRunning: {
		StateDraining:   true, // text_end
		StateCancelling: true,
		StateOrphan:     true,
	},
	StateDraining: {
		StateClosed:     true,
		StateCancelling: true,
		StateOrphan:     true,
	},
	StateCancelling: {
		StateClosed: true,
	},
	StateOrphan: {
		StateRunning:  true, // resume mid-stream
		StateDraining: true, // resume after text_end but before close
		StateClosed:   true, // grace expiry
	},
}

// transition moves the session to next, rejecting edges not present in
// validTransitions. Callers must hold s.mu.
func (s *Session) transition(next State) error {
	if s.state == next {
		return nil
	}
	allowed := validTransitions[s.state]
	if allowed == nil || !allowed[next] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
	}
	s.state = next
	s.touch()
	return nil
}

// OnFirstTextDelta drives IDLE -> RUNNING on the first text_delta of the
// session.
func (s *Session) OnFirstTextDelta() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return nil
	}
	return s.transition(StateRunning)
}

// OnTextEnd drives RUNNING -> DRAINING.
func (s *Session) OnTextEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(StateDraining)
}

// OnCancel drives any live state -> CANCELLING and sets the cancellation
// latch. Idempotent: calling it twice is a no-op the second time.
func (s *Session) OnCancel() error {
	s.SetCancelled()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateCancelling {
		return nil
	}
	return s.transition(StateCancelling)
}

// OnFatalEngineError is the fatal-error path from spec.md §4.3: "any ->
// CANCELLING ... on cancel message or fatal engine error".
func (s *Session) OnFatalEngineError() error {
	return s.OnCancel()
}

// OnDrained drives DRAINING -> CLOSED once the segmenter queue is empty, the
// engine has flushed, and the last chunk has been sent.
func (s *Session) OnDrained() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(StateClosed)
}

// OnCancelledClosed drives CANCELLING -> CLOSED once the synthesis task has
// observed the cancellation latch and stopped.
func (s *Session) OnCancelledClosed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(StateClosed)
}

// OnTransportGone drives any live state -> ORPHAN and starts the grace
// timer. No-op if already CLOSED.
func (s *Session) OnTransportGone() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	if err := s.transition(StateOrphan); err != nil {
		return err
	}
	s.orphanedAt = time.Now()
	return nil
}

// OnResume drives ORPHAN -> RUNNING or ORPHAN -> DRAINING depending on
// whether text_end had already been seen before the transport dropped.
// resumeToDraining lets the caller (which knows whether DRAINING had
// already been reached) pick the correct target.
func (s *Session) OnResume(resumeToDraining bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOrphan {
		return fmt.Errorf("%w: resume requires ORPHAN, got %s", ErrInvalidTransition, s.state)
	}
	target := StateRunning
	if resumeToDraining {
		target = StateDraining
	}
	s.orphanedAt = time.Time{}
	return s.transition(target)
}

// OrphanExpired reports whether the session has been ORPHAN for longer than
// grace.
func (s *Session) OrphanExpired(grace time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOrphan || s.orphanedAt.IsZero() {
		return false
	}
	return time.Since(s.orphanedAt) > grace
}

// CloseFromOrphan drives ORPHAN -> CLOSED on grace expiry (spec.md §4.3
// "ORPHAN -> CLOSED: on grace expiry").
func (s *Session) CloseFromOrphan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOrphan {
		return nil
	}
	return s.transition(StateClosed)
}

// NextChunkSeq allocates and returns the next dense chunk_seq (spec.md §3
// invariant: "strictly increasing by 1 with no gaps").
func (s *Session) NextChunkSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.ChunkSeq
	s.ChunkSeq++
	return v
}
