// Package gateway implements the front door (spec.md §4.1): it accepts
// bidirectional WebSocket connections, authenticates them, dispatches the
// first message to a new session (start) or an orphaned one (resume), and
// wires the resulting session to the segmenter/engine/emitter/sendloop
// pipeline for the lifetime of the connection.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/lokutor-ai/ws-tts-gateway/internal/config"
	"github.com/lokutor-ai/ws-tts-gateway/internal/logging"
	"github.com/lokutor-ai/ws-tts-gateway/internal/protocol"
	"github.com/lokutor-ai/ws-tts-gateway/internal/session"
	"github.com/lokutor-ai/ws-tts-gateway/pkg/engine"
)

// Server is the front door: one instance per process, shared by every
// connection. It holds no per-connection state itself — that lives in the
// runtime values keyed by session ID, held in runtimes.
type Server struct {
	cfg config.Config
	eng engine.Engine
	reg *session.Registry
	log logging.Logger

	metrics   *errorMetrics
	startedAt time.Time

	runtimes *runtimeTable
}

// New creates a Server backed by eng and reg. cfg supplies every timeout,
// queue size, and admission cap named in spec.md §4–§6.
func New(cfg config.Config, eng engine.Engine, reg *session.Registry, log logging.Logger) *Server {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Server{
		cfg:       cfg,
		eng:       eng,
		reg:       reg,
		log:       log,
		metrics:   newErrorMetrics(),
		startedAt: time.Now(),
		runtimes:  newRuntimeTable(),
	}
}

// ActiveSessions reports the registry's current session count, for healthz.
func (s *Server) ActiveSessions() int { return s.reg.ActiveCount() }

// ErrorCounts returns a snapshot of the per-kind error counters, for
// healthz.
func (s *Server) ErrorCounts() map[string]int64 { return s.metrics.Snapshot() }

// Uptime reports how long the server has been running, for healthz.
func (s *Server) Uptime() time.Duration { return time.Since(s.startedAt) }

// Engine exposes the bound engine, for healthz.
func (s *Server) Engine() engine.Engine { return s.eng }

// EngineRequested reports the configured engine selector (spec.md §6's
// healthz "engine" field), which names what was asked for rather than what
// actually bound — see EngineName for the resolved binding's own name.
func (s *Server) EngineRequested() string { return s.cfg.Engine }

// EngineName reports the bound engine's name, for healthz's "engine_resolved".
func (s *Server) EngineName() string { return s.eng.Name() }

// EngineSampleRate reports the bound engine's native sample rate, for healthz.
func (s *Server) EngineSampleRate() int { return s.eng.NativeSampleRate() }

// ReapOrphans sweeps the registry for expired ORPHAN sessions and tears down
// their runtimes. Intended to run on a periodic ticker from cmd/gateway.
func (s *Server) ReapOrphans() {
	for _, id := range s.reg.Reap(s.cfg.OrphanGrace) {
		s.runtimes.delete(id)
	}
}

// ShutdownSessions cancels every active session and waits (bounded by
// timeout) for each to observe the latch and close out, draining the
// registry for a graceful process exit (SPEC_FULL.md §C.4).
func (s *Server) ShutdownSessions(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for _, rt := range s.runtimes.all() {
		rt.requestShutdown()
	}
	for time.Now().Before(deadline) {
		if s.reg.ActiveCount() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// HandleWS is the http.HandlerFunc the front door registers on the
// WebSocket path. It upgrades the connection, authenticates it, reads
// exactly one first message, and dispatches to handleStart or handleResume
// per spec.md §4.1. Any other first message fails with protocol_error.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	apiKey, authed := s.authenticate(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin policy is the deployment's reverse proxy's job, not this package's
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	// A connection handed to handleStart/handleResume outlives this handler:
	// the session's reader, send loop and synthesis task own it from then on
	// and close it when the session ends. Every other path closes it here.
	handedOff := false
	defer func() {
		if !handedOff {
			conn.CloseNow()
		}
	}()

	ctx := r.Context()

	if !authed {
		s.writeFatal(ctx, conn, newSeqCounter(), protocol.ErrKindAuthFailed, "missing or invalid api key")
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, s.cfg.IdleReadTimeout)
	_, raw, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		s.log.Debug("first message read failed", "error", err)
		return
	}

	msg, err := protocol.ParseClient(raw)
	if err != nil {
		s.writeFatal(ctx, conn, newSeqCounter(), protocol.ErrKindProtocolError, err.Error())
		return
	}

	switch m := msg.(type) {
	case *protocol.StartMessage:
		handedOff = true
		s.handleStart(ctx, conn, apiKey, m)
	case *protocol.ResumeMessage:
		handedOff = true
		s.handleResume(ctx, conn, m)
	default:
		s.writeFatal(ctx, conn, newSeqCounter(), protocol.ErrKindProtocolError, "first message must be start or resume")
	}
}

// authenticate checks the Authorization header or the api_key query
// parameter against the configured key set (spec.md §4.1: "browser
// transports cannot set headers, so query-parameter fallback is
// mandatory"). An empty configured key set means auth is disabled and every
// connection is admitted under the empty-string tenant.
func (s *Server) authenticate(r *http.Request) (apiKey string, ok bool) {
	if len(s.cfg.APIKeys) == 0 {
		return "", true
	}

	key := r.URL.Query().Get("api_key")
	if key == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			key = strings.TrimPrefix(h, "Bearer ")
		}
	}
	for _, k := range s.cfg.APIKeys {
		if k == key {
			return key, true
		}
	}
	return key, false
}

// writeFatal sends one error message followed by tts_end{cancelled=true}
// directly on conn and closes it. Used for failures that occur before a
// session (and therefore its send loop) exists — admission rejection,
// auth failure, a malformed first message — so there is no queue to enqueue
// onto yet.
func (s *Server) writeFatal(ctx context.Context, conn *websocket.Conn, seq *seqCounter, kind, message string) {
	s.metrics.record(kind)
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	_ = wsjson.Write(wctx, conn, protocol.ErrorMessage{Type: protocol.TypeError, Seq: seq.next(), Kind: kind, Message: message})
	_ = wsjson.Write(wctx, conn, protocol.TTSEndMessage{Type: protocol.TypeTTSEnd, Seq: seq.next(), Cancelled: true})
	conn.Close(websocket.StatusNormalClosure, kind)
}

// newID allocates a session_id when a start message omits one.
func newID() string {
	return uuid.New().String()
}
