package engine

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
)

func TestNewRivaEngine_RequiresSynthesizeFunc(t *testing.T) {
	_, err := NewRivaEngine(context.Background(), "localhost:50051", 22050, nil)
	if err == nil {
		t.Fatal("expected error when synthesize func is nil")
	}
}

func TestRivaEngine_Synthesize_DelegatesToInjectedFunc(t *testing.T) {
	called := false
	synth := func(ctx context.Context, conn *grpc.ClientConn, text string, onPCM OnPCM) error {
		called = true
		return onPCM([]byte{0x01, 0x02})
	}

	e, err := NewRivaEngine(context.Background(), "localhost:50051", 22050, synth)
	if err != nil {
		t.Fatalf("NewRivaEngine returned error: %v", err)
	}
	defer e.Close()

	var got []byte
	err = e.Synthesize(context.Background(), "hello", func(frame []byte) error {
		got = append(got, frame...)
		return nil
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if !called {
		t.Fatal("expected injected synthesize function to be called")
	}
	if len(got) != 2 {
		t.Fatalf("got %d bytes, want 2", len(got))
	}
}

func TestRivaEngine_Synthesize_PropagatesError(t *testing.T) {
	boom := errors.New("remote synthesis failed")
	synth := func(ctx context.Context, conn *grpc.ClientConn, text string, onPCM OnPCM) error {
		return boom
	}

	e, err := NewRivaEngine(context.Background(), "localhost:50051", 22050, synth)
	if err != nil {
		t.Fatalf("NewRivaEngine returned error: %v", err)
	}
	defer e.Close()

	err = e.Synthesize(context.Background(), "hello", func(frame []byte) error { return nil })
	if err == nil {
		t.Fatal("expected Synthesize to propagate injected function's error")
	}
}

func TestRivaEngine_NativeSampleRate(t *testing.T) {
	e, err := NewRivaEngine(context.Background(), "localhost:50051", 48000, func(ctx context.Context, conn *grpc.ClientConn, text string, onPCM OnPCM) error {
		return nil
	})
	if err != nil {
		t.Fatalf("NewRivaEngine returned error: %v", err)
	}
	defer e.Close()

	if e.NativeSampleRate() != 48000 {
		t.Fatalf("NativeSampleRate() = %d, want 48000", e.NativeSampleRate())
	}
	if e.Name() != "riva" {
		t.Fatalf("Name() = %q, want riva", e.Name())
	}
}
