// Package beep plays short cue tones around recording: a high tick when the
// microphone opens, a lower one when it closes, and a low double beep when it
// could not be opened.
package beep

import (
	"context"
	"math"
	"sync"
	"time"

	"escucho/audio"
)

const (
	sampleRate = 44100

	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30

	playTimeout = 2 * time.Second
)

var (
	mu       sync.Mutex
	player   audio.Player
	disabled bool

	startSamples []int16
	endSamples   []int16
	errorSamples []int16
	soundOnce    sync.Once
)

func initSound() {
	startSamples = generateTick(sampleRate, startFreq, 0.12, startVolume, startDecay)
	endSamples = generateTick(sampleRate, endFreq, 0.15, endVolume, endDecay)
	errorSamples = generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay)
}

// Init routes cue tones through p. Until it is called cues are silent.
func Init(p audio.Player) {
	soundOnce.Do(initSound)
	mu.Lock()
	player = p
	mu.Unlock()
}

func Disable() {
	mu.Lock()
	disabled = true
	mu.Unlock()
}

func generateTick(sampleRate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(sampleRate int, freq, beepDur, gapDur, volume, decay float64) []int16 {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

func play(samples []int16) {
	mu.Lock()
	p, off := player, disabled
	mu.Unlock()
	if p == nil || off || len(samples) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
		defer cancel()
		_ = p.Play(ctx, audio.PCM{Samples: samples, SampleRate: sampleRate, Channels: 1})
	}()
}

func PlayStart() { play(startSamples) }
func PlayEnd()   { play(endSamples) }
func PlayError() { play(errorSamples) }
