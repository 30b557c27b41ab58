package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// newLokutorTestServer starts a local websocket server that mimics the
// lokutor.com protocol: it reads one JSON synthesis request, writes back two
// binary PCM frames, then a text "EOS" sentinel.
func newLokutorTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		var req map[string]interface{}
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}

		conn.Write(r.Context(), websocket.MessageBinary, []byte{0x01, 0x02})
		conn.Write(r.Context(), websocket.MessageBinary, []byte{0x03, 0x04})
		conn.Write(r.Context(), websocket.MessageText, []byte("EOS"))
	}))
	return srv
}

func TestLokutorEngine_Synthesize(t *testing.T) {
	srv := newLokutorTestServer(t)
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}

	e := NewLokutorEngine("test-key", 22050)
	e.host = u.Host

	var got []byte
	conn, _, err := websocket.Dial(context.Background(), "ws://"+u.Host+"/ws", nil)
	if err != nil {
		t.Fatalf("dial test server: %v", err)
	}
	e.conn = conn

	err = e.Synthesize(context.Background(), "hello", func(frame []byte) error {
		got = append(got, frame...)
		return nil
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(got) != string([]byte{0x01, 0x02, 0x03, 0x04}) {
		t.Fatalf("got %v, want [1 2 3 4]", got)
	}
}

func TestLokutorEngine_Synthesize_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		var req map[string]interface{}
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}
		conn.Write(r.Context(), websocket.MessageText, []byte("ERR: model unavailable"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	e := NewLokutorEngine("test-key", 22050)
	conn, _, err := websocket.Dial(context.Background(), "ws://"+u.Host+"/ws", nil)
	if err != nil {
		t.Fatalf("dial test server: %v", err)
	}
	e.conn = conn

	err = e.Synthesize(context.Background(), "hello", func(frame []byte) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("Synthesize error = %v, want it to mention remote error", err)
	}
}

func TestLokutorEngine_NameAndRate(t *testing.T) {
	e := NewLokutorEngine("key", 22050)
	if e.Name() != "lokutor" {
		t.Fatalf("Name() = %q, want lokutor", e.Name())
	}
	if e.NativeSampleRate() != 22050 {
		t.Fatalf("NativeSampleRate() = %d, want 22050", e.NativeSampleRate())
	}
}
