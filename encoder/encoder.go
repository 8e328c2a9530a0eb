package encoder

import "time"

// Clip audio format. Captured answers are stored at this rate regardless of
// the device's native rate.
const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// Duration converts a sample count at SampleRate into wall time.
func Duration(samples uint64) time.Duration {
	return time.Duration(samples) * time.Second / SampleRate
}
