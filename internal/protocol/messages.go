// Package protocol defines the bidirectional JSON wire format the gateway
// speaks with clients: client messages (start, text_delta, text_end, cancel,
// resume) and server messages (start_ack, audio_chunk, tts_end, error).
package protocol

import "encoding/json"

// Client-to-server message types.
const (
	TypeStart     = "start"
	TypeTextDelta = "text_delta"
	TypeTextEnd   = "text_end"
	TypeCancel    = "cancel"
	TypeResume    = "resume"
)

// Server-to-client message types.
const (
	TypeStartAck   = "start_ack"
	TypeAudioChunk = "audio_chunk"
	TypeTTSEnd     = "tts_end"
	TypeError      = "error"
)

// Error kinds.
const (
	ErrKindProtocolError         = "protocol_error"
	ErrKindAuthFailed            = "auth_failed"
	ErrKindCapacityExhausted     = "capacity_exhausted"
	ErrKindUnsupportedSampleRate = "unsupported_sample_rate"
	ErrKindResumeNotAvailable    = "resume_not_available"
	ErrKindBackpressure          = "backpressure"
	ErrKindEngineError           = "engine_error"
	ErrKindInternalError         = "internal_error"
)

// AudioFormat identifies the requested/resolved codec on the wire. It
// mirrors pkg/audio.Codec's values but is declared independently so the
// wire schema doesn't couple callers to the audio package's type.
type AudioFormat string

const (
	AudioFormatPCM16Raw AudioFormat = "pcm16_raw"
	AudioFormatPCM16WAV AudioFormat = "pcm16_wav"
)

// Envelope carries just the discriminator field, used to sniff a message's
// type before unmarshalling its full shape.
type Envelope struct {
	Type string `json:"type"`
}

// StartMessage opens a new session.
type StartMessage struct {
	Type        string      `json:"type"`
	SessionID   string      `json:"session_id,omitempty"`
	AudioFormat AudioFormat `json:"audio_format"`
	SampleRate  int         `json:"sample_rate"`
	Channels    int         `json:"channels"`
}

// TextDeltaMessage appends text to the current unit stream.
type TextDeltaMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	Text      string `json:"text"`
}

// TextEndMessage signals no more text will arrive; the segmenter must flush
// any held partial unit.
type TextEndMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// CancelMessage requests immediate synthesis termination. SessionID may be
// omitted when the session is implicit from the connection.
type CancelMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// ResumeMessage re-attaches to an orphaned session.
type ResumeMessage struct {
	Type                  string `json:"type"`
	SessionID             string `json:"session_id"`
	LastUnitIndexReceived int    `json:"last_unit_index_received"`
}

// StartAckMessage confirms session admission with the resolved AudioSpec.
// Seq is always 0 — it is the first server message of the session.
type StartAckMessage struct {
	Type        string      `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int64       `json:"seq"`
	AudioFormat AudioFormat `json:"audio_format"`
	SampleRate  int         `json:"sample_rate"`
	Channels    int         `json:"channels"`
}

// AudioChunkMessage carries one cut of base64-encoded PCM16 audio.
type AudioChunkMessage struct {
	Type            string `json:"type"`
	Seq             int64  `json:"seq"`
	ChunkSeq        int    `json:"chunk_seq"`
	UnitIndexStart  int    `json:"unit_index_start"`
	UnitIndexEnd    int    `json:"unit_index_end"`
	AudioBase64     string `json:"audio_base64"`
	WAVHeaderBase64 string `json:"wav_header_base64,omitempty"`
}

// TTSEndMessage signals the session has finished emitting all audio.
// Cancelled is true when the session ended via the CANCELLING path rather
// than a clean DRAINING → CLOSED transition.
type TTSEndMessage struct {
	Type      string `json:"type"`
	Seq       int64  `json:"seq"`
	Cancelled bool   `json:"cancelled"`
}

// ErrorMessage reports a terminal or advisory failure.
type ErrorMessage struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SniffType reads only the "type" discriminator from a raw JSON message
// without unmarshalling the rest of its shape, used by the gateway's
// dispatch loop and the strict schema validator below.
func SniffType(raw []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
