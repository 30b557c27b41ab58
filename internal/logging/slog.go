package logging

import (
	"log/slog"
	"os"
)

// SlogLogger adapts log/slog to the Logger interface. It is the default
// backing implementation this module wires in place of the teacher's
// NoOpLogger default, matching how the rest of the retrieval pack's
// services (MrWong99-glyphoxa, nupi-ai-plugin-vad-local-silero) log.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l. A nil l falls back to slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

// NewJSONLogger builds a Logger that writes JSON-formatted records to
// os.Stderr at the given minimum level. cmd/gateway uses this for production output.
func NewJSONLogger(level slog.Level) *SlogLogger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &SlogLogger{l: slog.New(h)}
}

func (s *SlogLogger) Debug(msg string, args ...interface{}) { s.l.Debug(msg, args...) }
func (s *SlogLogger) Info(msg string, args ...interface{})  { s.l.Info(msg, args...) }
func (s *SlogLogger) Warn(msg string, args ...interface{})  { s.l.Warn(msg, args...) }
func (s *SlogLogger) Error(msg string, args ...interface{}) { s.l.Error(msg, args...) }

var _ Logger = (*SlogLogger)(nil)
