package engine

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// LokutorEngine binds a remote lokutor.com TTS websocket service to the
// Engine contract. It reconnects lazily on first use and after any
// connection error, the same pattern the teacher's own lokutor TTS provider
// used for its conversational client.
type LokutorEngine struct {
	apiKey     string
	host       string
	sampleRate int

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewLokutorEngine creates a LokutorEngine against the given API key.
// sampleRate must match the rate lokutor.com's synthesis endpoint actually
// produces (the gateway never resamples — spec.md §4.1).
func NewLokutorEngine(apiKey string, sampleRate int) *LokutorEngine {
	return &LokutorEngine{
		apiKey:     apiKey,
		host:       "api.lokutor.com",
		sampleRate: sampleRate,
	}
}

func (e *LokutorEngine) Name() string { return "lokutor" }

func (e *LokutorEngine) NativeSampleRate() int { return e.sampleRate }

func (e *LokutorEngine) getConn(ctx context.Context) (*websocket.Conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn != nil {
		return e.conn, nil
	}

	u := url.URL{Scheme: "wss", Host: e.host, Path: "/ws", RawQuery: "api_key=" + e.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial lokutor: %v", ErrEngineUnavailable, err)
	}

	e.conn = conn
	return conn, nil
}

// Synthesize sends one synthesis request over the managed websocket
// connection and streams binary frames to onPCM until the remote signals end
// of stream. The connection carries one request at a time: Synthesize holds
// e.mu for the whole request, so concurrent calls on one LokutorEngine run
// one after another. cmd/gateway builds a single LokutorEngine that every
// session shares.
func (e *LokutorEngine) Synthesize(ctx context.Context, text string, onPCM OnPCM) error {
	conn, err := e.getConn(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	req := map[string]interface{}{
		"text":        text,
		"sample_rate": e.sampleRate,
		"encoding":    "pcm16",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		e.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("engine: lokutor: send request: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "cancelled")
			e.conn = nil
			return ctx.Err()
		default:
		}

		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			e.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("engine: lokutor: read: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onPCM(payload); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("engine: lokutor: remote error: %s", msg)
			}
		}
	}
}

// Close releases the underlying websocket connection, if one is open.
func (e *LokutorEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		err := e.conn.Close(websocket.StatusNormalClosure, "")
		e.conn = nil
		return err
	}
	return nil
}
