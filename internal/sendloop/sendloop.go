// Package sendloop runs the single send task each session owns: it drains a
// bounded outbound queue and writes one message at a time to the client
// transport, enforcing the write timeout and backpressure window from
// spec.md §4.5.
package sendloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrBackpressure is returned by Enqueue when the outbound queue stays full
// for longer than the configured backpressure window. The caller (the
// synthesis task) must treat this as fatal: emit error{kind=backpressure},
// move the session to CANCELLING, and close the transport.
var ErrBackpressure = errors.New("sendloop: backpressure window exceeded")

// ErrClosed is returned by Enqueue once the loop has stopped accepting work.
var ErrClosed = errors.New("sendloop: closed")

// Conn is the minimal transport surface the send loop needs. WSConn adapts a
// *websocket.Conn; tests substitute a fake.
type Conn interface {
	WriteJSON(ctx context.Context, v interface{}) error
	Close(code websocket.StatusCode, reason string) error
}

// WSConn adapts *websocket.Conn to Conn using wsjson framing, matching the
// gateway's coder/websocket transport.
type WSConn struct {
	C *websocket.Conn
}

func (w WSConn) WriteJSON(ctx context.Context, v interface{}) error {
	return wsjson.Write(ctx, w.C, v)
}

func (w WSConn) Close(code websocket.StatusCode, reason string) error {
	return w.C.Close(code, reason)
}

// SendLoop owns the bounded outbound queue for one session and the single
// goroutine that drains it. Exactly one SendLoop runs per session alongside
// its synthesis task, matching the two-task-per-session model.
type SendLoop struct {
	conn    Conn
	queue   chan interface{}
	writeTimeout       time.Duration
	backpressureWindow time.Duration

	closeOnce sync.Once
	done      chan struct{}
	errOnce   sync.Once
	loopErr   error
}

// New creates a SendLoop with the given queue capacity (Q), per-write
// timeout (W), and backpressure window (B). Call Run in its own goroutine,
// then Enqueue from the synthesis task.
func New(conn Conn, capacity int, writeTimeout, backpressureWindow time.Duration) *SendLoop {
	return &SendLoop{
		conn:               conn,
		queue:              make(chan interface{}, capacity),
		writeTimeout:       writeTimeout,
		backpressureWindow: backpressureWindow,
		done:               make(chan struct{}),
	}
}

// Enqueue hands msg to the send task, preserving FIFO order. If the queue is
// already full, it waits up to the backpressure window for room before
// giving up with ErrBackpressure. Safe to call only from the synthesis task
// (the one producer per session).
func (l *SendLoop) Enqueue(msg interface{}) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	select {
	case l.queue <- msg:
		return nil
	case <-l.done:
		return ErrClosed
	default:
	}

	timer := time.NewTimer(l.backpressureWindow)
	defer timer.Stop()
	select {
	case l.queue <- msg:
		return nil
	case <-l.done:
		return ErrClosed
	case <-timer.C:
		return ErrBackpressure
	}
}

// Run drains the queue and writes each message with the write timeout
// applied to every individual write, until ctx is cancelled or Stop is
// called. It returns the first write error encountered (after which the
// transport is assumed broken and the caller should tear the session down).
func (l *SendLoop) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-l.queue:
			wctx, cancel := context.WithTimeout(ctx, l.writeTimeout)
			err := l.conn.WriteJSON(wctx, msg)
			cancel()
			if err != nil {
				l.errOnce.Do(func() { l.loopErr = err })
				l.Stop()
				return err
			}
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return l.loopErr
		}
	}
}

// Stop signals the loop to exit and rejects further Enqueue calls. Idempotent.
func (l *SendLoop) Stop() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Purge discards every message currently queued without writing it to the
// transport. Used on cancellation, where spec.md §5 requires dropping
// residual queued messages rather than delivering them ahead of the final
// tts_end{cancelled=true}. Safe to call only from the synthesis task, same
// as Enqueue.
func (l *SendLoop) Purge() {
	for {
		select {
		case <-l.queue:
		default:
			return
		}
	}
}

// Pending returns the number of messages currently queued, for diagnostics.
func (l *SendLoop) Pending() int {
	return len(l.queue)
}
