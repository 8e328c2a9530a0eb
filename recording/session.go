// Package recording captures one spoken answer per question and plays it back.
//
// A Session is either idle, recording one question, or playing one question's
// clip. Starting a capture while another is active is refused; starting a
// playback stops whatever clip was playing first.
package recording

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"escucho/audio"
	"escucho/encoder"
	"escucho/log"
	"escucho/transcriber"
)

var (
	ErrBusy            = errors.New("a recording is already in progress")
	ErrNotRecording    = errors.New("not recording")
	ErrNoRecording     = errors.New("no recording for question")
	ErrUnknownQuestion = errors.New("unknown question")
	ErrClosed          = errors.New("recording session closed")
)

type StatusKind int

const (
	Idle StatusKind = iota
	Recording
	Playing
)

func (k StatusKind) String() string {
	switch k {
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	default:
		return "idle"
	}
}

// Status is the session's single marker. QuestionID is 0 when Kind is Idle.
type Status struct {
	Kind       StatusKind
	QuestionID int
}

func (s Status) IsRecording(id int) bool { return s.Kind == Recording && s.QuestionID == id }
func (s Status) IsPlaying(id int) bool   { return s.Kind == Playing && s.QuestionID == id }

// Clip is one finalized answer. Data is a FLAC stream; Locator names it for
// logs and the UI.
type Clip struct {
	QuestionID int
	Locator    string
	Data       []byte
	Samples    uint64
	Duration   time.Duration
	VoiceSeen  bool
	Transcript string
}

// RecordingMap maps question ids to their latest clip.
type RecordingMap map[int]Clip

// Has reports whether id has a clip.
func (m RecordingMap) Has(id int) bool {
	_, ok := m[id]
	return ok
}

// IDs returns the recorded question ids in ascending order.
func (m RecordingMap) IDs() []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Events are delivered through WithEvents, outside the session lock.
type (
	LevelEvent struct {
		QuestionID int
		RMS        float64
	}
	TickEvent struct {
		QuestionID int
		Elapsed    time.Duration
	}
	NoVoiceEvent      struct{ QuestionID int }
	VoiceResumedEvent struct{ QuestionID int }
	AutoStoppedEvent  struct{ Clip Clip }
	PlaybackEndedEvent struct {
		QuestionID int
		Err        error
	}
	TranscriptEvent struct {
		QuestionID int
		Text       string
		Err        error
	}
)

type Option func(*Session)

func WithDevice(d *audio.DeviceInfo) Option {
	return func(s *Session) { s.device = d }
}

func WithEvents(fn func(any)) Option {
	return func(s *Session) { s.emit = fn }
}

// WithTranscriber transcribes every finalized clip in the background.
func WithTranscriber(t transcriber.Transcriber) Option {
	return func(s *Session) { s.transcriber = t }
}

// WithSilenceLimits overrides when the no-voice warning fires and when a
// silent capture stops itself.
func WithSilenceLimits(warn, stop time.Duration) Option {
	return func(s *Session) { s.warnAfter, s.stopAfter = warn, stop }
}

// WithRecordings seeds the session with clips from an earlier screen.
func WithRecordings(m RecordingMap) Option {
	return func(s *Session) {
		for id, c := range m {
			s.clips[id] = c
		}
	}
}

type Session struct {
	actx        audio.Context
	player      audio.Player
	device      *audio.DeviceInfo
	transcriber transcriber.Transcriber
	emit        func(any)
	known       map[int]bool
	warnAfter   time.Duration
	stopAfter   time.Duration

	mu     sync.Mutex
	status Status
	clips  RecordingMap
	closed bool

	// active capture
	recGen   uint64
	capture  audio.CaptureDevice
	recDone  chan struct{}
	recStart time.Time
	vad      *vadProcessor
	bufMu    sync.Mutex
	buf      []int16

	// active playback
	playGen    uint64
	playCancel context.CancelFunc
	playDone   chan struct{}

	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

func NewSession(actx audio.Context, player audio.Player, questionIDs []int, opts ...Option) *Session {
	s := &Session{
		actx:      actx,
		player:    player,
		known:     make(map[int]bool, len(questionIDs)),
		clips:     make(RecordingMap),
		warnAfter: silenceWarnEvery,
		stopAfter: silenceAutoCloseDur,
	}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	for _, id := range questionIDs {
		s.known[id] = true
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Recordings returns a copy of every clip recorded so far.
func (s *Session) Recordings() RecordingMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(RecordingMap, len(s.clips))
	for id, c := range s.clips {
		out[id] = c
	}
	return out
}

func (s *Session) HasRecording(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clips[id]
	return ok
}

// AllRecorded reports whether every question has a clip. The UI uses it
// only to relabel its continue action.
func (s *Session) AllRecorded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.known {
		if _, ok := s.clips[id]; !ok {
			return false
		}
	}
	return true
}

func (s *Session) send(ev any) {
	if s.emit != nil {
		s.emit(ev)
	}
}

// StartRecording opens the microphone for questionID. Microphone failures
// come back wrapping audio.ErrPermissionDenied or audio.ErrDeviceUnavailable
// and leave the session idle.
func (s *Session) StartRecording(questionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case !s.known[questionID]:
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, questionID)
	case s.status.Kind == Recording:
		return fmt.Errorf("%w (question %d)", ErrBusy, s.status.QuestionID)
	case s.status.Kind == Playing:
		s.stopPlaybackLocked()
	}

	capture, err := s.actx.NewCapture(s.device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		err = audio.ClassifyMicError(err)
		log.Errorf("microphone open failed for question %d: %v", questionID, err)
		return err
	}

	s.recGen++
	gen := s.recGen
	vad := newVADProcessor()
	s.bufMu.Lock()
	s.buf = s.buf[:0]
	s.bufMu.Unlock()

	capture.SetCallback(func(data []byte, _ uint32) {
		if len(data) < 2 {
			return
		}
		samples := audio.BytesToSamples(data)
		s.bufMu.Lock()
		s.buf = append(s.buf, samples...)
		s.bufMu.Unlock()
		vad.Process(data)
		s.send(LevelEvent{QuestionID: questionID, RMS: levelRMS(data)})
	})

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		err = audio.ClassifyMicError(err)
		log.Errorf("microphone start failed for question %d: %v", questionID, err)
		return err
	}

	done := make(chan struct{})
	s.capture, s.recDone, s.vad, s.recStart = capture, done, vad, time.Now()
	s.status = Status{Kind: Recording, QuestionID: questionID}
	log.Infof("recording started: question %d on %s", questionID, capture.DeviceName())

	s.bg.Add(1)
	go s.monitor(gen, questionID, vad, done)
	return nil
}

func levelRMS(data []byte) float64 {
	var sum float64
	n := len(data) / 2
	for i := 0; i+1 < len(data); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(data[i:]))) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func (s *Session) monitor(gen uint64, questionID int, vad *vadProcessor, done <-chan struct{}) {
	defer s.bg.Done()
	mon := newSilenceMonitor(s.warnAfter, s.stopAfter)
	start := time.Now()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		s.send(TickEvent{QuestionID: questionID, Elapsed: time.Since(start)})
		switch mon.Tick(vad.HasSpeechTick()) {
		case SilenceWarn, SilenceRepeat:
			log.Info("no_voice_warning")
			s.send(NoVoiceEvent{QuestionID: questionID})
		case SilenceWarnClear:
			s.send(VoiceResumedEvent{QuestionID: questionID})
		case SilenceAutoStop:
			log.Info("silence_auto_stop")
			clip, err := s.stopRecording(gen)
			if err == nil {
				s.send(AutoStoppedEvent{Clip: clip})
			}
			return
		}
	}
}

// StopRecording finalizes the active capture into a clip, stores it under
// its question (replacing any earlier take) and releases the microphone.
func (s *Session) StopRecording() (Clip, error) {
	s.mu.Lock()
	gen := s.recGen
	s.mu.Unlock()
	return s.stopRecording(gen)
}

func (s *Session) stopRecording(gen uint64) (Clip, error) {
	s.mu.Lock()
	if s.status.Kind != Recording || gen != s.recGen {
		s.mu.Unlock()
		return Clip{}, ErrNotRecording
	}
	questionID := s.status.QuestionID
	capture, done, vad := s.capture, s.recDone, s.vad
	s.capture, s.recDone, s.vad = nil, nil, nil
	s.status = Status{}
	s.recGen++

	capture.ClearCallback()
	capture.Stop()
	capture.Close()
	close(done)

	s.bufMu.Lock()
	samples := slices.Clone(s.buf)
	s.buf = s.buf[:0]
	s.bufMu.Unlock()

	data, err := encoder.EncodePCM(samples)
	if err != nil {
		s.mu.Unlock()
		log.Errorf("encoding clip for question %d: %v", questionID, err)
		return Clip{}, fmt.Errorf("finalizing recording: %w", err)
	}
	clip := Clip{
		QuestionID: questionID,
		Locator:    "clip://" + uuid.NewString(),
		Data:       data,
		Samples:    uint64(len(samples)),
		Duration:   encoder.Duration(uint64(len(samples))),
		VoiceSeen:  vad.VoiceSeen(),
	}
	s.clips[questionID] = clip
	closed := s.closed
	s.mu.Unlock()

	log.RecordingSaved(questionID, clip.Locator, clip.Duration, float64(len(data))/1024)
	if s.transcriber != nil && !closed {
		s.bg.Add(1)
		go s.transcribe(clip)
	}
	return clip, nil
}

func (s *Session) transcribe(clip Clip) {
	defer s.bg.Done()
	ctx, cancel := context.WithTimeout(s.bgCtx, transcriber.DefaultTimeout)
	defer cancel()

	res, err := s.transcriber.Transcribe(ctx, clip.Data, "flac")
	if err != nil {
		log.Warnf("transcription failed for question %d: %v", clip.QuestionID, err)
		s.send(TranscriptEvent{QuestionID: clip.QuestionID, Err: err})
		return
	}

	s.mu.Lock()
	cur, ok := s.clips[clip.QuestionID]
	current := ok && cur.Locator == clip.Locator
	if current {
		cur.Transcript = res.Text
		s.clips[clip.QuestionID] = cur
	}
	s.mu.Unlock()

	if current {
		s.send(TranscriptEvent{QuestionID: clip.QuestionID, Text: res.Text})
	}
}

// SetTranscript attaches text to the current clip of questionID.
func (s *Session) SetTranscript(questionID int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clips[questionID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoRecording, questionID)
	}
	c.Transcript = text
	s.clips[questionID] = c
	return nil
}

// PlayRecording plays questionID's clip from the start, first stopping any
// other clip. The Playing marker clears when playback ends or fails.
func (s *Session) PlayRecording(questionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	clip, ok := s.clips[questionID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoRecording, questionID)
	}
	if s.status.Kind == Recording {
		return fmt.Errorf("%w (question %d)", ErrBusy, s.status.QuestionID)
	}
	prev := s.playDone
	s.stopPlaybackLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.playGen++
	gen := s.playGen
	s.playCancel, s.playDone = cancel, done
	s.status = Status{Kind: Playing, QuestionID: questionID}

	log.Playback(questionID, "start")
	s.bg.Add(1)
	go s.play(ctx, gen, clip, prev, done)
	return nil
}

func (s *Session) play(ctx context.Context, gen uint64, clip Clip, prev, done chan struct{}) {
	defer s.bg.Done()
	defer close(done)
	if prev != nil {
		<-prev
	}

	var err error
	if ctx.Err() == nil {
		err = s.playClip(ctx, clip)
	}
	cancelled := errors.Is(err, context.Canceled)
	if err != nil && !cancelled {
		log.Errorf("playback error for question %d: %v", clip.QuestionID, err)
	}

	s.mu.Lock()
	current := gen == s.playGen
	if current {
		s.status = Status{}
		s.playCancel = nil
	}
	s.mu.Unlock()

	if !current {
		return
	}
	if cancelled {
		err = nil
	}
	event := "end"
	if err != nil {
		event = "error"
	}
	log.Playback(clip.QuestionID, event)
	s.send(PlaybackEndedEvent{QuestionID: clip.QuestionID, Err: err})
}

func (s *Session) playClip(ctx context.Context, clip Clip) error {
	samples, rate, channels, err := encoder.DecodeFlac(clip.Data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", clip.Locator, err)
	}
	return s.player.Play(ctx, audio.PCM{Samples: samples, SampleRate: rate, Channels: channels})
}

// StopPlayback stops the playing clip, if any.
func (s *Session) StopPlayback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Kind == Playing {
		log.Playback(s.status.QuestionID, "stop")
		s.stopPlaybackLocked()
	}
}

func (s *Session) stopPlaybackLocked() {
	if s.playCancel != nil {
		s.playCancel()
		s.playCancel = nil
	}
	s.playGen++
	if s.status.Kind == Playing {
		s.status = Status{}
	}
}

// Close stops any capture or playback, waits for background work and drops
// every clip.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	gen := s.recGen
	recording := s.status.Kind == Recording
	s.stopPlaybackLocked()
	s.mu.Unlock()

	if recording {
		_, _ = s.stopRecording(gen)
	}
	s.bgCancel()
	s.bg.Wait()

	s.mu.Lock()
	s.clips = make(RecordingMap)
	s.mu.Unlock()
}
