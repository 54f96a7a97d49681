package stt

import "bytes"

// float32ToWAV converts mono float32 PCM samples to a 16-bit WAV file.
func float32ToWAV(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	// RIFF header
	buf.WriteString("RIFF")
	writeUint32LE(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	// fmt chunk: PCM, mono, 16-bit
	buf.WriteString("fmt ")
	writeUint32LE(buf, 16)
	writeUint16LE(buf, 1)
	writeUint16LE(buf, 1)
	writeUint32LE(buf, uint32(sampleRate))
	writeUint32LE(buf, uint32(sampleRate*2))
	writeUint16LE(buf, 2)
	writeUint16LE(buf, 16)

	buf.WriteString("data")
	writeUint32LE(buf, uint32(dataSize))

	for _, s := range samples {
		s = max(-1, min(1, s))
		writeUint16LE(buf, uint16(int16(s*32767)))
	}

	return buf.Bytes()
}

func writeUint16LE(w *bytes.Buffer, v uint16) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
}

func writeUint32LE(w *bytes.Buffer, v uint32) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 24))
}
