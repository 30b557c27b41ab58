// Package healthz serves the gateway's liveness/diagnostics endpoint:
// engine binding, uptime, active session count, and per-error-kind
// counters, so an operator can see gateway health without a metrics
// backend (SPEC_FULL.md §C.3).
package healthz

import (
	"encoding/json"
	"net/http"
	"time"
)

// Stats is the subset of gateway.Server this package needs, kept as an
// interface so healthz doesn't import gateway (gateway already imports
// everything healthz would need to import back).
type Stats interface {
	ActiveSessions() int
	ErrorCounts() map[string]int64
	Uptime() time.Duration
	EngineRequested() string
	EngineName() string
	EngineSampleRate() int
}

// response is the JSON body served at GET /healthz, matching spec.md §6:
// {status, engine, engine_resolved, model_sample_rate?, uptime_s,
// sessions_active}.
type response struct {
	Status          string           `json:"status"`
	Engine          string           `json:"engine"`
	EngineResolved  string           `json:"engine_resolved"`
	ModelSampleRate int              `json:"model_sample_rate,omitempty"`
	UptimeSeconds   float64          `json:"uptime_s"`
	SessionsActive  int              `json:"sessions_active"`
	Errors          map[string]int64 `json:"errors,omitempty"`
}

// Handler serves /healthz from a Stats source. Unlike the teacher's
// dependency-checker pattern, there is nothing here to probe out-of-process
// (the engine binding is checked once at startup by cmd/gateway) — this
// endpoint reports the process's own live counters instead.
type Handler struct {
	stats Stats
}

// New creates a Handler backed by stats.
func New(stats Stats) *Handler {
	return &Handler{stats: stats}
}

// ServeHTTP writes the current snapshot as JSON with a 200 status; the
// gateway process being able to answer at all is the liveness signal.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	res := response{
		Status:          "ok",
		Engine:          h.stats.EngineRequested(),
		EngineResolved:  h.stats.EngineName(),
		ModelSampleRate: h.stats.EngineSampleRate(),
		UptimeSeconds:   h.stats.Uptime().Seconds(),
		SessionsActive:  h.stats.ActiveSessions(),
		Errors:          h.stats.ErrorCounts(),
	}
	writeJSON(w, http.StatusOK, res)
}

// Register adds the /healthz route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.ServeHTTP)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
