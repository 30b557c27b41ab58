package engine

import (
	"context"
	"math"
)

// DummyEngine is a dependency-free Engine that synthesizes a short tone per
// input character instead of calling out to a real TTS model. It exists so
// the gateway, its tests, and the seed scenarios in spec.md §8 can run
// without any external binary or network service — the same role the
// teacher's RMSVAD plays as a "lightweight, no-dependency default" for voice
// activity detection.
type DummyEngine struct {
	sampleRate int

	// msPerChar is how many milliseconds of tone are generated per input
	// character, giving downstream chunking something non-trivial to cut.
	msPerChar int

	// toneHz is the frequency of the generated sine tone.
	toneHz float64
}

// NewDummyEngine creates a DummyEngine that reports sampleRate as its native
// rate. sampleRate must be one of the whitelisted rates in pkg/audio for a
// session to ever be able to use it without tripping unsupported_sample_rate.
func NewDummyEngine(sampleRate int) *DummyEngine {
	return &DummyEngine{
		sampleRate: sampleRate,
		msPerChar:  20,
		toneHz:     220.0,
	}
}

func (e *DummyEngine) Name() string { return "dummy" }

func (e *DummyEngine) NativeSampleRate() int { return e.sampleRate }

// Synthesize emits msPerChar milliseconds of sine tone for every rune in
// text, split into ~10ms frames so callers can observe cancellation granular
// enough to exercise spec.md §5's "checked between every emitted frame"
// requirement.
func (e *DummyEngine) Synthesize(ctx context.Context, text string, onPCM OnPCM) error {
	runeCount := 0
	for range text {
		runeCount++
	}
	if runeCount == 0 {
		runeCount = 1
	}

	totalMs := runeCount * e.msPerChar
	const frameMs = 10
	samplesPerFrame := e.sampleRate * frameMs / 1000
	frames := totalMs / frameMs
	if frames == 0 {
		frames = 1
	}

	phase := 0.0
	phaseStep := 2 * math.Pi * e.toneHz / float64(e.sampleRate)

	for f := 0; f < frames; f++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame := make([]byte, samplesPerFrame*2)
		for i := 0; i < samplesPerFrame; i++ {
			sample := int16(math.Sin(phase) * 8000)
			frame[2*i] = byte(sample)
			frame[2*i+1] = byte(sample >> 8)
			phase += phaseStep
		}

		if err := onPCM(frame); err != nil {
			return err
		}
	}

	return nil
}
