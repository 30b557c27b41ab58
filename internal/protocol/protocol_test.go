package protocol

import "testing"

func TestParseClient_Start(t *testing.T) {
	raw := []byte(`{"type":"start","sample_rate":16000,"channels":1,"audio_format":"pcm16_raw"}`)
	msg, err := ParseClient(raw)
	if err != nil {
		t.Fatalf("ParseClient: %v", err)
	}
	start, ok := msg.(*StartMessage)
	if !ok {
		t.Fatalf("got %T, want *StartMessage", msg)
	}
	if start.SampleRate != 16000 || start.Channels != 1 || start.AudioFormat != AudioFormatPCM16Raw {
		t.Errorf("unexpected decoded fields: %+v", start)
	}
	if err := ValidateStart(start); err != nil {
		t.Errorf("ValidateStart: %v", err)
	}
}

func TestParseClient_UnknownType(t *testing.T) {
	raw := []byte(`{"type":"flibbertigibbet"}`)
	_, err := ParseClient(raw)
	if err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestParseClient_Malformed(t *testing.T) {
	raw := []byte(`not json at all`)
	_, err := ParseClient(raw)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestParseClient_Resume(t *testing.T) {
	raw := []byte(`{"type":"resume","session_id":"abc123","last_unit_index_received":3}`)
	msg, err := ParseClient(raw)
	if err != nil {
		t.Fatalf("ParseClient: %v", err)
	}
	resume, ok := msg.(*ResumeMessage)
	if !ok {
		t.Fatalf("got %T, want *ResumeMessage", msg)
	}
	if err := ValidateResume(resume); err != nil {
		t.Errorf("ValidateResume: %v", err)
	}
	if resume.SessionID != "abc123" || resume.LastUnitIndexReceived != 3 {
		t.Errorf("unexpected decoded fields: %+v", resume)
	}
}

func TestValidateStart_MissingFields(t *testing.T) {
	m := &StartMessage{Type: TypeStart}
	if err := ValidateStart(m); err == nil {
		t.Fatal("expected error for missing audio_format/sample_rate/channels")
	}
}

func TestEncodeDecodeAudio_RoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0xFF, 0x00}
	encoded := EncodeAudio(pcm)
	decoded, err := DecodeAudio(encoded)
	if err != nil {
		t.Fatalf("DecodeAudio: %v", err)
	}
	if string(decoded) != string(pcm) {
		t.Errorf("round trip mismatch: got %v, want %v", decoded, pcm)
	}
}
