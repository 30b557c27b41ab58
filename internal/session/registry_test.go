package session

import (
	"testing"
	"time"

	"github.com/lokutor-ai/ws-tts-gateway/pkg/audio"
)

func testSpec() audio.Spec {
	return audio.Spec{SampleRate: 16000, Channels: 1, Codec: audio.PCM16Raw}
}

func TestRegistry_CreateAndLookup(t *testing.T) {
	r := NewRegistry(10, 5)
	s := New("a", "key1", testSpec(), 256, 30*time.Second)
	if err := r.Create(s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := r.Lookup("a"); got != s {
		t.Fatalf("Lookup returned %v, want %v", got, s)
	}
	if r.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", r.ActiveCount())
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry(10, 5)
	s1 := New("dup", "key1", testSpec(), 256, 30*time.Second)
	s2 := New("dup", "key1", testSpec(), 256, 30*time.Second)
	if err := r.Create(s1); err != nil {
		t.Fatalf("Create s1: %v", err)
	}
	if err := r.Create(s2); err != ErrDuplicateSession {
		t.Fatalf("Create s2 error = %v, want ErrDuplicateSession", err)
	}
}

func TestRegistry_GlobalCapExhausted(t *testing.T) {
	r := NewRegistry(2, 10)
	for i, id := range []string{"g1", "g2"} {
		if err := r.Create(New(id, "key1", testSpec(), 256, 30*time.Second)); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if err := r.Create(New("g3", "key1", testSpec(), 256, 30*time.Second)); err != ErrCapacityExhausted {
		t.Fatalf("Create over global cap error = %v, want ErrCapacityExhausted", err)
	}
}

func TestRegistry_PerKeyCapExhausted(t *testing.T) {
	r := NewRegistry(100, 2)
	for i, id := range []string{"p1", "p2"} {
		if err := r.Create(New(id, "tenantA", testSpec(), 256, 30*time.Second)); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if err := r.Create(New("p3", "tenantA", testSpec(), 256, 30*time.Second)); err != ErrCapacityExhausted {
		t.Fatalf("Create over per-key cap error = %v, want ErrCapacityExhausted", err)
	}
	// A different tenant should still be admitted.
	if err := r.Create(New("p4", "tenantB", testSpec(), 256, 30*time.Second)); err != nil {
		t.Fatalf("Create for different tenant should succeed: %v", err)
	}
}

func TestRegistry_AdoptRequiresOrphan(t *testing.T) {
	r := NewRegistry(10, 5)
	s := New("adopt1", "key1", testSpec(), 256, 30*time.Second)
	_ = r.Create(s)

	if _, err := r.Adopt("adopt1", false); err != ErrNotOrphan {
		t.Fatalf("Adopt on non-orphan error = %v, want ErrNotOrphan", err)
	}

	_ = s.OnTransportGone()
	adopted, err := r.Adopt("adopt1", false)
	if err != nil {
		t.Fatalf("Adopt: %v", err)
	}
	if adopted.State() != StateRunning {
		t.Fatalf("adopted state = %s, want RUNNING", adopted.State())
	}
}

func TestRegistry_RemoveDecrementsPerKeyCount(t *testing.T) {
	r := NewRegistry(10, 1)
	s := New("rm1", "keyX", testSpec(), 256, 30*time.Second)
	if err := r.Create(s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	r.Remove("rm1")
	// Per-key slot should be freed, allowing a new session for the same key.
	if err := r.Create(New("rm2", "keyX", testSpec(), 256, 30*time.Second)); err != nil {
		t.Fatalf("Create after Remove: %v", err)
	}
}

func TestRegistry_ReapExpiredOrphans(t *testing.T) {
	r := NewRegistry(10, 5)
	s := New("reap1", "key1", testSpec(), 256, 30*time.Second)
	_ = r.Create(s)
	_ = s.OnTransportGone()

	time.Sleep(20 * time.Millisecond)
	reaped := r.Reap(10 * time.Millisecond)
	if len(reaped) != 1 || reaped[0] != "reap1" {
		t.Fatalf("Reap() = %v, want [reap1]", reaped)
	}
	if r.Lookup("reap1") != nil {
		t.Fatal("expected reaped session to be removed from registry")
	}
}
