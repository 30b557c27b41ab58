// Package config provides the environment-variable configuration surface
// named in spec.md §6, plus an optional YAML file layer that supplements it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the gateway needs: the admission-control caps,
// queue/timeout knobs from spec.md §4.5/§4.6, and the selected engine.
type Config struct {
	// Host/Port is where the gateway's HTTP/WebSocket listener binds.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Engine selects which pkg/engine binding backs synthesis: "dummy",
	// "piper", "riva", or "lokutor".
	Engine string `yaml:"engine"`

	PiperBinPath   string `yaml:"piper_bin_path"`
	PiperModelPath string `yaml:"piper_model_path"`
	PiperSampleRate int   `yaml:"piper_sample_rate"`

	RivaTarget     string `yaml:"riva_target"`
	RivaSampleRate int    `yaml:"riva_sample_rate"`

	LokutorAPIKey     string `yaml:"-"` // secrets never come from the file layer
	LokutorSampleRate int    `yaml:"lokutor_sample_rate"`

	DummySampleRate int `yaml:"dummy_sample_rate"`

	// APIKeys is the set of accepted bearer/query-param API keys. Secrets are
	// env-var only (WS_TTS_API_KEYS, read by envOverlay and Load), never part
	// of the YAML layer.
	APIKeys []string `yaml:"-"`

	// Admission control (spec.md §4.6).
	GlobalSessionCap  int `yaml:"global_session_cap"`
	PerKeySessionCap  int `yaml:"per_key_session_cap"`

	// Outbound queue / backpressure (spec.md §4.5).
	QueueCapacity      int           `yaml:"queue_capacity"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BackpressureWindow time.Duration `yaml:"backpressure_window"`

	// Retention / resume (spec.md §4.4, §4.3 "ORPHAN").
	RetentionChunks int           `yaml:"retention_chunks"`
	RetentionAge    time.Duration `yaml:"retention_age"`
	OrphanGrace     time.Duration `yaml:"orphan_grace"`
	OrphanReapAfter time.Duration `yaml:"orphan_reap_after"`

	// IdleReadTimeout bounds how long a connection may go without a text,
	// text_end, or cancel message before the gateway treats it as a dead
	// peer and closes with protocol_error (spec.md §5 "transport idle-read
	// timeout").
	IdleReadTimeout time.Duration `yaml:"idle_read_timeout"`

	// ChunkMaxBytes bounds how large a single audio_chunk payload may grow
	// before the emitter cuts it (spec.md §4.4). Zero means "use the spec
	// default of 20ms of audio at the session's negotiated sample rate,
	// rounded to a frame boundary" — since that default depends on a
	// per-session sample rate, it can't be a single flat constant here; see
	// audio.DefaultChunkMaxBytes, which the emitter calls when this is 0.
	// A non-zero value here is an operator override applied to every session
	// regardless of sample rate.
	ChunkMaxBytes int `yaml:"chunk_max_bytes"`

	// FlushMinChars is the segmenter's length-bounded flush threshold
	// (spec.md §4.2).
	FlushMinChars int `yaml:"flush_min_chars"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration with every default named in spec.md
// §4–§6: Q=64, W=5s, B=2s, G=30s, R=256, global cap 1000, per-key cap 50.
func Default() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		Engine:            "dummy",
		PiperSampleRate:   22050,
		RivaSampleRate:    22050,
		LokutorSampleRate: 22050,
		DummySampleRate:   24000,
		GlobalSessionCap:  1000,
		PerKeySessionCap:  50,
		QueueCapacity:     64,
		WriteTimeout:      5 * time.Second,
		BackpressureWindow: 2 * time.Second,
		RetentionChunks:   256,
		RetentionAge:      30 * time.Second,
		OrphanGrace:       30 * time.Second,
		OrphanReapAfter:   30 * time.Second,
		IdleReadTimeout:   60 * time.Second,
		ChunkMaxBytes:     0, // derived per-session from sample rate; see audio.DefaultChunkMaxBytes
		FlushMinChars:     12,
		LogLevel:          "info",
	}
}

// LoadEnv reads environment variables over top of Default(), following the
// teacher's cmd/agent/main.go pattern of os.Getenv-with-fallback rather than
// a struct-tag-driven env parser.
func LoadEnv() Config {
	return envOverlay(Default())
}

// envOverrides reads only the environment variables that are actually set,
// leaving every other field at its zero value. Used by Load to compose env
// vars on top of a file-sourced Config without env's own defaults masking
// file values (see envOverlay).
func envOverrides() Config {
	return envOverlay(Config{})
}

// envOverlay applies every recognised environment variable on top of base,
// falling back to base's existing value for anything unset.
func envOverlay(base Config) Config {
	cfg := base

	cfg.Host = getEnvString("WS_TTS_HOST", cfg.Host)
	cfg.Port = getEnvInt("WS_TTS_PORT", cfg.Port)
	cfg.Engine = getEnvString("WS_TTS_ENGINE", cfg.Engine)

	cfg.PiperBinPath = getEnvString("PIPER_BIN_PATH", cfg.PiperBinPath)
	cfg.PiperModelPath = getEnvString("PIPER_MODEL_PATH", cfg.PiperModelPath)
	cfg.PiperSampleRate = getEnvInt("PIPER_SAMPLE_RATE", cfg.PiperSampleRate)

	cfg.RivaTarget = getEnvString("RIVA_TARGET", cfg.RivaTarget)
	cfg.RivaSampleRate = getEnvInt("RIVA_SAMPLE_RATE", cfg.RivaSampleRate)

	cfg.LokutorAPIKey = os.Getenv("LOKUTOR_API_KEY")
	cfg.LokutorSampleRate = getEnvInt("LOKUTOR_SAMPLE_RATE", cfg.LokutorSampleRate)

	cfg.DummySampleRate = getEnvInt("DUMMY_SAMPLE_RATE", cfg.DummySampleRate)

	cfg.GlobalSessionCap = getEnvInt("WS_TTS_GLOBAL_SESSION_CAP", cfg.GlobalSessionCap)
	cfg.PerKeySessionCap = getEnvInt("WS_TTS_PER_KEY_SESSION_CAP", cfg.PerKeySessionCap)

	cfg.QueueCapacity = getEnvInt("WS_TTS_QUEUE_CAPACITY", cfg.QueueCapacity)
	cfg.WriteTimeout = getEnvDuration("WS_TTS_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.BackpressureWindow = getEnvDuration("WS_TTS_BACKPRESSURE_WINDOW", cfg.BackpressureWindow)

	cfg.RetentionChunks = getEnvInt("WS_TTS_RETENTION_CHUNKS", cfg.RetentionChunks)
	cfg.RetentionAge = getEnvDuration("WS_TTS_RETENTION_AGE", cfg.RetentionAge)
	cfg.OrphanGrace = getEnvDuration("WS_TTS_ORPHAN_GRACE", cfg.OrphanGrace)
	cfg.OrphanReapAfter = getEnvDuration("WS_TTS_ORPHAN_REAP_AFTER", cfg.OrphanReapAfter)
	cfg.IdleReadTimeout = getEnvDuration("WS_TTS_IDLE_READ_TIMEOUT", cfg.IdleReadTimeout)

	cfg.ChunkMaxBytes = getEnvInt("WS_TTS_CHUNK_MAX_BYTES", cfg.ChunkMaxBytes)
	cfg.FlushMinChars = getEnvInt("WS_TTS_FLUSH_MIN_CHARS", cfg.FlushMinChars)

	cfg.LogLevel = getEnvString("WS_TTS_LOG_LEVEL", cfg.LogLevel)

	if keys := os.Getenv("WS_TTS_API_KEYS"); keys != "" {
		cfg.APIKeys = splitCSV(keys)
	}

	return cfg
}

// MergeFile layers file-sourced values from LoadFile on top of base,
// skipping zero-valued fields so an env var set explicitly is never
// silently overridden by an absent file field. Env vars always win over the
// file per spec.md §A ("environment variables override file values").
func MergeFile(base Config, file Config) Config {
	out := base
	if file.Host != "" {
		out.Host = file.Host
	}
	if file.Port != 0 {
		out.Port = file.Port
	}
	if file.Engine != "" {
		out.Engine = file.Engine
	}
	if file.PiperBinPath != "" {
		out.PiperBinPath = file.PiperBinPath
	}
	if file.PiperModelPath != "" {
		out.PiperModelPath = file.PiperModelPath
	}
	if file.PiperSampleRate != 0 {
		out.PiperSampleRate = file.PiperSampleRate
	}
	if file.RivaTarget != "" {
		out.RivaTarget = file.RivaTarget
	}
	if file.RivaSampleRate != 0 {
		out.RivaSampleRate = file.RivaSampleRate
	}
	if file.LokutorSampleRate != 0 {
		out.LokutorSampleRate = file.LokutorSampleRate
	}
	if file.DummySampleRate != 0 {
		out.DummySampleRate = file.DummySampleRate
	}
	if file.GlobalSessionCap != 0 {
		out.GlobalSessionCap = file.GlobalSessionCap
	}
	if file.PerKeySessionCap != 0 {
		out.PerKeySessionCap = file.PerKeySessionCap
	}
	if file.QueueCapacity != 0 {
		out.QueueCapacity = file.QueueCapacity
	}
	if file.WriteTimeout != 0 {
		out.WriteTimeout = file.WriteTimeout
	}
	if file.BackpressureWindow != 0 {
		out.BackpressureWindow = file.BackpressureWindow
	}
	if file.RetentionChunks != 0 {
		out.RetentionChunks = file.RetentionChunks
	}
	if file.RetentionAge != 0 {
		out.RetentionAge = file.RetentionAge
	}
	if file.IdleReadTimeout != 0 {
		out.IdleReadTimeout = file.IdleReadTimeout
	}
	if file.OrphanGrace != 0 {
		out.OrphanGrace = file.OrphanGrace
	}
	if file.OrphanReapAfter != 0 {
		out.OrphanReapAfter = file.OrphanReapAfter
	}
	if file.ChunkMaxBytes != 0 {
		out.ChunkMaxBytes = file.ChunkMaxBytes
	}
	if file.FlushMinChars != 0 {
		out.FlushMinChars = file.FlushMinChars
	}
	if file.LogLevel != "" {
		out.LogLevel = file.LogLevel
	}
	return out
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// errUnknownEngine is returned by Validate for an unrecognised Engine value.
func errUnknownEngine(name string) error {
	return fmt.Errorf("config: unknown engine %q: want one of dummy, piper, riva, lokutor", name)
}

// Validate checks that the selected engine has the fields it needs to start.
func (c Config) Validate() error {
	switch c.Engine {
	case "dummy":
	case "piper":
		if c.PiperBinPath == "" || c.PiperModelPath == "" {
			return fmt.Errorf("config: piper engine requires piper_bin_path and piper_model_path")
		}
	case "riva":
		if c.RivaTarget == "" {
			return fmt.Errorf("config: riva engine requires riva_target")
		}
	case "lokutor":
		if c.LokutorAPIKey == "" {
			return fmt.Errorf("config: lokutor engine requires LOKUTOR_API_KEY")
		}
	default:
		return errUnknownEngine(c.Engine)
	}
	return nil
}
