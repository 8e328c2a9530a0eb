package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// ParseWAV walks the RIFF chunks of a 16-bit PCM WAV and returns its samples.
// Streamed WAVs (espeak-ng --stdout) carry bogus chunk sizes, so a data chunk
// that overruns the buffer is truncated instead of rejected.
func ParseWAV(data []byte) (PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return PCM{}, errNotWAV
	}

	var (
		pcm       PCM
		haveFmt   bool
		bitsPerSm uint16
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		switch id {
		case "fmt ":
			if body+16 > len(data) {
				return PCM{}, fmt.Errorf("wav: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body:])
			pcm.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			pcm.SampleRate = binary.LittleEndian.Uint32(data[body+4:])
			bitsPerSm = binary.LittleEndian.Uint16(data[body+14:])
			if format != 1 || bitsPerSm != 16 {
				return PCM{}, fmt.Errorf("wav: unsupported format %d/%d-bit", format, bitsPerSm)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return PCM{}, fmt.Errorf("wav: data before fmt")
			}
			end := body + size
			if size <= 0 || end > len(data) || end < body {
				end = len(data)
			}
			pcm.Samples = BytesToSamples(data[body:end])
			return pcm, nil
		}
		pos = body + size + size%2
		if size < 0 || pos < body {
			break
		}
	}
	return PCM{}, fmt.Errorf("wav: no data chunk")
}

// BytesToSamples decodes little-endian 16-bit samples. A trailing odd byte is dropped.
func BytesToSamples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// EncodeWAV writes a canonical 44-byte-header WAV.
func EncodeWAV(pcm PCM) []byte {
	dataLen := len(pcm.Samples) * 2
	buf := make([]byte, WAVHeaderSize+dataLen)
	byteRate := pcm.SampleRate * uint32(pcm.Channels) * 2

	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataLen))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], uint16(pcm.Channels))
	binary.LittleEndian.PutUint32(buf[24:], pcm.SampleRate)
	binary.LittleEndian.PutUint32(buf[28:], byteRate)
	binary.LittleEndian.PutUint16(buf[32:], uint16(pcm.Channels*2))
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataLen))
	for i, s := range pcm.Samples {
		binary.LittleEndian.PutUint16(buf[WAVHeaderSize+i*2:], uint16(s))
	}
	return buf
}
