package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const WAVHeaderSize = 44

var (
	// ErrPermissionDenied means the OS or sound server refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no usable capture device could be opened.
	ErrDeviceUnavailable = errors.New("microphone unavailable")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var permissionHints = []string{
	"permission", "access denied", "not authorized", "operation not permitted", "eacces",
}

// ClassifyMicError wraps a backend failure into ErrPermissionDenied or
// ErrDeviceUnavailable. Errors already carrying one of them pass through.
func ClassifyMicError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	lower := strings.ToLower(err.Error())
	for _, h := range permissionHints {
		if strings.Contains(lower, h) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// PCM is interleaved signed 16-bit audio.
type PCM struct {
	Samples    []int16
	SampleRate uint32
	Channels   int
}

func (p PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

func (p PCM) Duration() time.Duration {
	if p.SampleRate == 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	NewPlayer() (Player, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// Player plays one buffer at a time. Play blocks until the audio has drained
// or ctx is cancelled, in which case it returns ctx.Err().
type Player interface {
	Play(ctx context.Context, pcm PCM) error
	Close()
}
