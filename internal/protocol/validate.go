package protocol

import (
	"encoding/json"
	"fmt"
)

// ParseClient sniffs raw's type and unmarshals it into the matching client
// message struct, returning it as the empty-interface value it actually is
// (*StartMessage, *TextDeltaMessage, *TextEndMessage, *CancelMessage, or
// *ResumeMessage). An unrecognised type yields ErrUnknownType — the gateway
// maps this to error{kind=protocol_error} and closes, as the spec's "strict
// schema validator at the boundary; unknown types yield protocol_error"
// requires.
func ParseClient(raw []byte) (interface{}, error) {
	typ, err := SniffType(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch typ {
	case TypeStart:
		var m StartMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &m, nil
	case TypeTextDelta:
		var m TextDeltaMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &m, nil
	case TypeTextEnd:
		var m TextEndMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &m, nil
	case TypeCancel:
		var m CancelMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &m, nil
	case TypeResume:
		var m ResumeMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

// ValidateStart checks a StartMessage's audio parameters are structurally
// sane before handing it to pkg/audio.Spec.Validate (which owns the
// whitelist checks). It exists to reject a completely empty/garbled start
// with protocol_error rather than a confusing downstream error.
func ValidateStart(m *StartMessage) error {
	if m.Type != TypeStart {
		return fmt.Errorf("%w: expected type %q, got %q", ErrMalformed, TypeStart, m.Type)
	}
	if m.AudioFormat == "" {
		return fmt.Errorf("%w: audio_format is required", ErrMalformed)
	}
	if m.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be positive", ErrMalformed)
	}
	if m.Channels <= 0 {
		return fmt.Errorf("%w: channels must be positive", ErrMalformed)
	}
	return nil
}

// ValidateResume checks a ResumeMessage's structural shape.
func ValidateResume(m *ResumeMessage) error {
	if m.Type != TypeResume {
		return fmt.Errorf("%w: expected type %q, got %q", ErrMalformed, TypeResume, m.Type)
	}
	if m.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrMalformed)
	}
	if m.LastUnitIndexReceived < 0 {
		return fmt.Errorf("%w: last_unit_index_received must be >= 0", ErrMalformed)
	}
	return nil
}
