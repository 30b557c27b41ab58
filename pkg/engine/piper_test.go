package engine

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"testing"
)

// nopReadCloser adapts an io.Reader to io.ReadCloser for tests that don't
// spawn a real subprocess.
type nopReadCloser struct {
	io.Reader
}

func (nopReadCloser) Close() error { return nil }

func TestPiperEngine_Synthesize(t *testing.T) {
	e := NewPiperEngine("/usr/bin/piper", "/models/en_US.onnx", 22050)

	pcm := strings.Repeat("ab", 100) // 200 bytes of fake PCM16
	e.runCommand = func(ctx context.Context, text string) (io.ReadCloser, *exec.Cmd, error) {
		return nopReadCloser{strings.NewReader(pcm)}, nil, nil
	}

	var got []byte
	err := e.Synthesize(context.Background(), "hello", func(frame []byte) error {
		got = append(got, frame...)
		return nil
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(got) != pcm {
		t.Fatalf("got %d bytes, want %d bytes of identical content", len(got), len(pcm))
	}
}

func TestPiperEngine_Synthesize_SerializesCalls(t *testing.T) {
	e := NewPiperEngine("/usr/bin/piper", "/models/en_US.onnx", 22050)

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0

	e.runCommand = func(ctx context.Context, text string) (io.ReadCloser, *exec.Cmd, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()

		return nopReadCloser{strings.NewReader("xx")}, nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Synthesize(context.Background(), "hi", func(frame []byte) error { return nil })
		}()
	}
	wg.Wait()

	if maxInFlight > 1 {
		t.Fatalf("observed %d concurrent synthesis calls, want at most 1", maxInFlight)
	}
}

func TestPiperEngine_Synthesize_EngineUnavailable(t *testing.T) {
	e := NewPiperEngine("/usr/bin/piper", "/models/en_US.onnx", 22050)
	e.runCommand = func(ctx context.Context, text string) (io.ReadCloser, *exec.Cmd, error) {
		return nil, nil, io.ErrUnexpectedEOF
	}

	err := e.Synthesize(context.Background(), "hello", func(frame []byte) error { return nil })
	if err == nil {
		t.Fatal("expected error when subprocess fails to start")
	}
}
