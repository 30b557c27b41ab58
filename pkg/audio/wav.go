package audio

import (
	"bytes"
	"encoding/binary"
)

// streamingSentinel is written into the RIFF and data chunk-size fields of a
// streaming WAV header. The true length is unknown when the header is cut
// (spec.md §4.4: "the first chunk carries a wav_header with data-length field
// set to a sentinel ... indicating streaming"). Most players treat this as
// "play until the stream ends" rather than rejecting the file.
const streamingSentinel = 0xFFFFFFFF

// NewStreamingWAVHeader builds a 44-byte canonical RIFF/WAVE header for a
// mono-or-stereo 16-bit PCM stream whose total length is not yet known. It is
// only ever attached to the first audio_chunk of a pcm16_wav session; every
// later chunk omits it (spec.md §4.4).
func NewStreamingWAVHeader(sampleRate, channels int) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(44)

	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(streamingSentinel))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))         // fmt chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))          // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))   // channels
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate)) // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))   // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign)) // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))         // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(streamingSentinel))

	return buf.Bytes()
}

// NewFinalizedWAVHeader builds a RIFF/WAVE header with the true PCM byte
// length filled in. It is not used on the live streaming path (where the
// length isn't known yet) but is available for callers that buffer a whole
// session's audio — e.g. tests comparing against a reference WAV file.
func NewFinalizedWAVHeader(sampleRate, channels int, pcmLen uint32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(44)

	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+pcmLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, pcmLen)

	return buf.Bytes()
}
