package audio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext serves canned PCM to every capture it opens and hands out a
// FakePlayer. Tests set CaptureErr to simulate a refused microphone.
type FakeContext struct {
	pcm      []byte
	realtime bool
	player   *FakePlayer

	mu         sync.Mutex
	CaptureErr error
	opened     int
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return NewFakeContextPCM(data, realtime), nil
}

func NewFakeContextPCM(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime, player: NewFakePlayer(1)}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, cfg CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return nil, ClassifyMicError(f.CaptureErr)
	}
	f.opened++
	return &FakeCapture{pcm: f.pcm, realtime: f.realtime, rate: cfg.SampleRate, audioDone: make(chan struct{})}, nil
}

func (f *FakeContext) NewPlayer() (Player, error) { return f.player, nil }

// Player returns the shared fake player for assertions.
func (f *FakeContext) Player() *FakePlayer { return f.player }

// CapturesOpened counts successful NewCapture calls.
func (f *FakeContext) CapturesOpened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	rate      uint32
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	return end
}

// Start feeds the canned PCM then trails silence until Stop. In immediate
// mode the whole buffer is delivered before Start returns.
func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	rate := f.rate
	if rate == 0 {
		rate = 16000
	}
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(rate)

	pos := 0
	if !f.realtime {
		if cb := f.callback(); cb != nil {
			for pos < len(f.pcm) {
				pos = f.feedChunk(cb, pos, chunkBytes)
			}
		}
		close(f.audioDone)
		interval = time.Millisecond
	}

	go func() {
		defer close(f.feedDone)
		silence := make([]byte, chunkBytes)
		finished := !f.realtime
		for {
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
			cb := f.callback()
			if cb == nil {
				continue
			}
			if pos < len(f.pcm) {
				pos = f.feedChunk(cb, pos, chunkBytes)
				continue
			}
			if !finished {
				finished = true
				close(f.audioDone)
			}
			cb(silence, fakeFrameSize)
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
	f.audioDone = make(chan struct{})
}

func (f *FakeCapture) Close() { f.Stop() }

// FakePlayer "plays" a buffer by sleeping for its duration divided by speedup.
type FakePlayer struct {
	speedup float64

	mu     sync.Mutex
	played []PCM
	Err    error
	active int
	peak   int
}

func NewFakePlayer(speedup float64) *FakePlayer {
	if speedup <= 0 {
		speedup = 1
	}
	return &FakePlayer{speedup: speedup}
}

func (p *FakePlayer) Play(ctx context.Context, pcm PCM) error {
	p.mu.Lock()
	p.played = append(p.played, pcm)
	p.active++
	p.peak = max(p.peak, p.active)
	err := p.Err
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if err != nil {
		return fmt.Errorf("fake playback: %w", err)
	}

	d := time.Duration(float64(pcm.Duration()) / p.speedup)
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *FakePlayer) Close() {}

func (p *FakePlayer) Played() []PCM {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PCM(nil), p.played...)
}

// PeakConcurrent reports the most simultaneous Play calls seen.
func (p *FakePlayer) PeakConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

func (p *FakePlayer) SetErr(err error) {
	p.mu.Lock()
	p.Err = err
	p.mu.Unlock()
}
