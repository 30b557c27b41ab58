package sendloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type fakeConn struct {
	mu       sync.Mutex
	written  []interface{}
	writeErr error
	delay    time.Duration
	closed   bool
}

func (f *fakeConn) WriteJSON(ctx context.Context, v interface{}) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, v)
	return nil
}

func (f *fakeConn) Close(code websocket.StatusCode, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) snapshot() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.written...)
}

func TestSendLoop_FIFOOrder(t *testing.T) {
	conn := &fakeConn{}
	l := New(conn, 8, time.Second, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	for i := 0; i < 5; i++ {
		if err := l.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(conn.snapshot()) == 5 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	got := conn.snapshot()
	if len(got) != 5 {
		t.Fatalf("wrote %d messages, want 5", len(got))
	}
	for i, v := range got {
		if v.(int) != i {
			t.Fatalf("message[%d] = %v, want %d (FIFO order broken)", i, v, i)
		}
	}
}

func TestSendLoop_BackpressureTimeout(t *testing.T) {
	conn := &fakeConn{delay: 50 * time.Millisecond}
	l := New(conn, 1, time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	// Fill the single queue slot, then saturate the in-flight write so the
	// next Enqueue has nowhere to go until the backpressure window elapses.
	if err := l.Enqueue("a"); err != nil {
		t.Fatalf("Enqueue a: %v", err)
	}
	if err := l.Enqueue("b"); err != nil {
		t.Fatalf("Enqueue b: %v", err)
	}

	err := l.Enqueue("c")
	if !errors.Is(err, ErrBackpressure) {
		t.Fatalf("Enqueue c error = %v, want ErrBackpressure", err)
	}
}

func TestSendLoop_WriteTimeoutPropagatesError(t *testing.T) {
	conn := &fakeConn{delay: 50 * time.Millisecond}
	l := New(conn, 4, 10*time.Millisecond, time.Second)

	ctx := context.Background()
	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(ctx) }()

	if err := l.Enqueue("x"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case err := <-runErr:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Run error = %v, want context.DeadlineExceeded", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after write timeout")
	}
}

func TestSendLoop_PurgeDropsResidualQueuedMessages(t *testing.T) {
	conn := &fakeConn{}
	// Never drained: Run isn't started, so Purge has to remove the messages
	// straight out of the channel buffer itself.
	l := New(conn, 8, time.Second, time.Second)

	for i := 0; i < 3; i++ {
		if err := l.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	if got := l.Pending(); got != 3 {
		t.Fatalf("Pending() before Purge = %d, want 3", got)
	}

	l.Purge()
	if got := l.Pending(); got != 0 {
		t.Fatalf("Pending() after Purge = %d, want 0", got)
	}

	if err := l.Enqueue("final"); err != nil {
		t.Fatalf("Enqueue after Purge: %v", err)
	}
	if got := l.Pending(); got != 1 {
		t.Fatalf("Pending() after post-Purge Enqueue = %d, want 1", got)
	}
}

func TestSendLoop_EnqueueAfterStopFails(t *testing.T) {
	conn := &fakeConn{}
	l := New(conn, 4, time.Second, time.Second)
	l.Stop()
	if err := l.Enqueue("x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue after Stop error = %v, want ErrClosed", err)
	}
}
