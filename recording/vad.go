package recording

import (
	"encoding/binary"
	"math"
	"sync"

	"escucho/encoder"
)

const (
	vadFrameMs      = 20
	vadFrameSamples = encoder.SampleRate * vadFrameMs / 1000 // 320 samples
	vadDebounce     = 3                                      // consecutive loud frames to confirm voice
	vadThreshold    = 0.02                                   // frame RMS, full scale = 1.0
	speechThreshold = 0.10                                   // share of frames in a tick that must be speech
)

// vadProcessor is an energy gate over 20 ms frames. Children speak close to
// the microphone in a quiet room, so a loudness threshold with debounce is
// enough to tell talking from silence.
type vadProcessor struct {
	mu           sync.Mutex
	buf          []int16
	speechRun    int
	totalFrames  int
	speechFrames int
	tickTotal    int
	tickSpeech   int
	voiceSeen    bool
}

func newVADProcessor() *vadProcessor {
	return &vadProcessor{}
}

// Process consumes little-endian 16-bit mono bytes.
func (p *vadProcessor) Process(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i+1 < len(data); i += 2 {
		p.buf = append(p.buf, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	for len(p.buf) >= vadFrameSamples {
		frame := p.buf[:vadFrameSamples]
		p.totalFrames++
		if rms(frame) >= vadThreshold {
			p.speechRun++
			if p.speechRun >= vadDebounce {
				p.speechFrames++
				p.voiceSeen = true
			}
		} else {
			p.speechRun = 0
		}
		p.buf = p.buf[vadFrameSamples:]
	}
}

// HasSpeechTick reports whether enough frames since the previous call were speech.
func (p *vadProcessor) HasSpeechTick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.totalFrames - p.tickTotal
	s := p.speechFrames - p.tickSpeech
	p.tickTotal, p.tickSpeech = p.totalFrames, p.speechFrames
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= speechThreshold
}

func (p *vadProcessor) VoiceSeen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceSeen
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		n := float64(s) / 32768.0
		sum += n * n
	}
	return math.Sqrt(sum / float64(len(samples)))
}
