// Package engine declares the abstract TTS synthesis contract (spec.md §2
// "TTS Engine contract", §9 "Engine subprocess management") and ships a small
// set of concrete bindings. The core session machinery in internal/ only
// ever talks to the Engine interface; it never knows whether synthesis came
// from a local subprocess, a remote gRPC service, or a deterministic stub.
package engine

import (
	"context"
	"errors"
)

// OnPCM receives one frame of raw little-endian PCM16 audio as it is
// produced. Implementations of Engine must stop calling OnPCM and return
// promptly once the context passed to Synthesize is done — this is the
// "checked between every emitted frame" cancellation contract from spec.md
// §5.
type OnPCM func(frame []byte) error

// Engine is the abstract synthesis collaborator spec.md §1 calls out as
// deliberately out of scope for its own implementation: "the core defines
// the capability contract it must satisfy ... but not its implementation."
type Engine interface {
	// Name identifies the engine kind, surfaced at /healthz.
	Name() string

	// NativeSampleRate is the sample rate this engine actually produces.
	// The gateway never resamples (spec.md §4.1); a session whose requested
	// rate differs from this value must fail with unsupported_sample_rate.
	NativeSampleRate() int

	// Synthesize streams PCM16 audio for text to onPCM, in order, until the
	// text is fully voiced or ctx is cancelled. A cancelled context must
	// cause Synthesize to return ctx.Err() (or a wrapped form of it) promptly
	// rather than continuing to emit frames.
	Synthesize(ctx context.Context, text string, onPCM OnPCM) error
}

// ErrEngineUnavailable is returned by an Engine when it cannot currently
// serve requests (e.g. a subprocess failed to start, a remote connection is
// down). The session layer treats this the same as any other engine error
// for retry purposes (spec.md §7).
var ErrEngineUnavailable = errors.New("engine: unavailable")
