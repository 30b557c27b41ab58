// Package audio declares the wire-level audio format the gateway negotiates
// with clients and the PCM/WAV framing helpers used when emitting chunks.
package audio

import (
	"errors"
	"fmt"
)

// Codec identifies how PCM samples are framed on the wire.
type Codec string

const (
	// PCM16Raw carries bare little-endian PCM16 samples, no container.
	PCM16Raw Codec = "pcm16_raw"

	// PCM16WAV prefixes the first chunk of a session with a streaming WAV
	// header (see NewStreamingWAVHeader); subsequent chunks carry bare PCM.
	PCM16WAV Codec = "pcm16_wav"
)

// allowedSampleRates is the whitelist from spec.md §4.1. The gateway never
// resamples, so every engine's native rate must appear here and match the
// client's request exactly.
var allowedSampleRates = map[int]bool{
	16000: true,
	22050: true,
	24000: true,
	48000: true,
}

var allowedChannels = map[int]bool{
	1: true,
	2: true,
}

// Spec describes one session's negotiated audio format.
type Spec struct {
	SampleRate int
	Channels   int
	Codec      Codec
}

// BytesPerFrame returns the number of bytes one sample-frame (one sample per
// channel) occupies at 16-bit depth.
func (s Spec) BytesPerFrame() int {
	return s.Channels * 2
}

// Validate checks SampleRate, Channels and Codec against the whitelists in
// spec.md §4.1. It does not check engine compatibility — callers must compare
// against the engine's native rate separately (the gateway's handleStart
// compares SampleRate with Engine.NativeSampleRate).
func (s Spec) Validate() error {
	if !allowedSampleRates[s.SampleRate] {
		return fmt.Errorf("%w: sample_rate %d", ErrUnsupportedSpec, s.SampleRate)
	}
	if !allowedChannels[s.Channels] {
		return fmt.Errorf("%w: channels %d", ErrUnsupportedSpec, s.Channels)
	}
	switch s.Codec {
	case PCM16Raw, PCM16WAV:
	default:
		return fmt.Errorf("%w: codec %q", ErrUnsupportedSpec, s.Codec)
	}
	return nil
}

// ErrUnsupportedSpec is wrapped by Validate when a field falls outside the
// whitelist.
var ErrUnsupportedSpec = errors.New("unsupported audio spec")

// DefaultChunkMaxBytes returns the spec's default chunk_max_bytes: 20ms of
// audio at sampleRate, rounded down to a whole sample-frame.
func DefaultChunkMaxBytes(sampleRate, channels int) int {
	const targetMillis = 20
	frames := sampleRate * targetMillis / 1000
	bytesPerFrame := channels * 2
	n := frames * bytesPerFrame
	if n < bytesPerFrame {
		n = bytesPerFrame
	}
	return n
}
