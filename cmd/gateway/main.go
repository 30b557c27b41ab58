// Command gateway runs the real-time TTS streaming WebSocket server:
// load config (env + optional YAML file), bind the configured engine,
// start the HTTP/WebSocket listener, and drain sessions gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lokutor-ai/ws-tts-gateway/internal/config"
	"github.com/lokutor-ai/ws-tts-gateway/internal/gateway"
	"github.com/lokutor-ai/ws-tts-gateway/internal/healthz"
	"github.com/lokutor-ai/ws-tts-gateway/internal/logging"
	"github.com/lokutor-ai/ws-tts-gateway/internal/session"
	"github.com/lokutor-ai/ws-tts-gateway/pkg/engine"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using system environment variables")
	}

	filePath := os.Getenv("WS_TTS_CONFIG_FILE")
	cfg, err := config.Load(filePath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.NewJSONLogger(parseLevel(cfg.LogLevel))

	eng, err := buildEngine(cfg)
	if err != nil {
		log.Fatalf("build engine %q: %v", cfg.Engine, err)
	}

	reg := session.NewRegistry(cfg.GlobalSessionCap, cfg.PerKeySessionCap)
	srv := gateway.New(cfg, eng, reg, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWS)
	healthz.New(srv).Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	reapTicker := time.NewTicker(cfg.OrphanReapAfter)
	defer reapTicker.Stop()
	reapStop := make(chan struct{})
	go func() {
		for {
			select {
			case <-reapTicker.C:
				srv.ReapOrphans()
			case <-reapStop:
				return
			}
		}
	}()

	go func() {
		logger.Info("gateway listening", "addr", addr, "engine", eng.Name())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	close(reapStop)

	srv.ShutdownSessions(cfg.WriteTimeout + 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
}

// buildEngine resolves cfg.Engine into a concrete pkg/engine binding. Riva
// requires a generated protobuf client this module intentionally does not
// vendor (pkg/engine/riva.go's doc comment); running with WS_TTS_ENGINE=riva
// needs a fork that supplies a real engine.RivaSynthesizeFunc here.
func buildEngine(cfg config.Config) (engine.Engine, error) {
	switch cfg.Engine {
	case "dummy":
		return engine.NewDummyEngine(cfg.DummySampleRate), nil
	case "piper":
		return engine.NewPiperEngine(cfg.PiperBinPath, cfg.PiperModelPath, cfg.PiperSampleRate), nil
	case "riva":
		return nil, fmt.Errorf("riva engine requires a build with a real RivaSynthesizeFunc wired in (see pkg/engine/riva.go)")
	case "lokutor":
		return engine.NewLokutorEngine(cfg.LokutorAPIKey, cfg.LokutorSampleRate), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
