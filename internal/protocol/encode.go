package protocol

import "encoding/base64"

// EncodeAudio base64-encodes raw PCM16 bytes for the audio_base64 field.
func EncodeAudio(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeAudio reverses EncodeAudio, used by clients and by tests asserting
// on decoded audio content.
func DecodeAudio(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
