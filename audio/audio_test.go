package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMicError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"permission", errors.New("Access denied by policy"), ErrPermissionDenied},
		{"eacces", errors.New("open /dev/snd: EACCES"), ErrPermissionDenied},
		{"missing", errors.New("no such entity"), ErrDeviceUnavailable},
		{"already classified", ErrPermissionDenied, ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ClassifyMicError(tt.err), tt.want)
		})
	}
	assert.NoError(t, ClassifyMicError(nil))
}

func TestWAVRoundTrip(t *testing.T) {
	in := PCM{Samples: []int16{0, 100, -100, 32767, -32768}, SampleRate: 22050, Channels: 1}
	out, err := ParseWAV(EncodeWAV(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseWAVStreamedSize(t *testing.T) {
	// espeak-ng --stdout writes 0x7ffff000-ish sizes it cannot know up front.
	data := EncodeWAV(PCM{Samples: []int16{1, 2, 3, 4}, SampleRate: 22050, Channels: 1})
	data[40], data[41], data[42], data[43] = 0x00, 0xf0, 0xff, 0x7f

	pcm, err := ParseWAV(data)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4}, pcm.Samples)
}

func TestParseWAVRejectsGarbage(t *testing.T) {
	_, err := ParseWAV([]byte("hello world, not riff"))
	assert.Error(t, err)
}

func TestPCMDuration(t *testing.T) {
	p := PCM{Samples: make([]int16, 32000), SampleRate: 16000, Channels: 2}
	assert.Equal(t, time.Second, p.Duration())
	assert.Zero(t, PCM{}.Duration())
}

func TestIsBluetooth(t *testing.T) {
	assert.True(t, IsBluetooth("AirPods Pro"))
	assert.False(t, IsBluetooth("Built-in Microphone"))
}

func TestFakeCaptureImmediate(t *testing.T) {
	pcm := make([]byte, fakeFrameSize*fakeBytesPerFrame*3)
	ctx := NewFakeContextPCM(pcm, false)

	dev, err := ctx.NewCapture(nil, CaptureConfig{SampleRate: 16000, Channels: 1})
	require.NoError(t, err)

	var got int
	dev.SetCallback(func(data []byte, _ uint32) { got += len(data) })
	require.NoError(t, dev.Start())
	dev.ClearCallback()
	dev.Stop()

	assert.GreaterOrEqual(t, got, len(pcm))
	assert.Equal(t, 1, ctx.CapturesOpened())
}

func TestFakeContextCaptureErr(t *testing.T) {
	ctx := NewFakeContextPCM(nil, false)
	ctx.CaptureErr = errors.New("permission denied")
	_, err := ctx.NewCapture(nil, CaptureConfig{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFakePlayerCancel(t *testing.T) {
	p := NewFakePlayer(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Play(ctx, PCM{Samples: make([]int16, 16000*5), SampleRate: 16000, Channels: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, p.Played(), 1)
}
