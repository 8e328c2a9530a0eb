// Package narration reads a fixed script aloud one utterance at a time.
//
// A Sequencer owns its script and a PlaybackState. Each Play starts a new
// sequence with its own context and generation number; anything a previous
// sequence tries to write after it was superseded is dropped, so a late
// completion can never schedule another utterance.
package narration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"escucho/log"
	"escucho/speech"
)

const (
	Lang         = "es-ES"
	Rate         = 0.9
	DefaultPause = 300 * time.Millisecond
)

type PlaybackState struct {
	IsPlaying    bool
	CurrentIndex int // -1 when nothing is being spoken
}

var idle = PlaybackState{CurrentIndex: -1}

type Option func(*Sequencer)

// WithPause sets the gap between the end of one utterance and the next request.
func WithPause(d time.Duration) Option {
	return func(s *Sequencer) { s.pause = d }
}

// WithOnChange registers a callback fired after every state change. It runs
// outside the sequencer's lock and may be called from the worker goroutine.
func WithOnChange(fn func(st PlaybackState, hasPlayed bool)) Option {
	return func(s *Sequencer) { s.onChange = fn }
}

// WithName labels log lines from this sequencer.
func WithName(name string) Option {
	return func(s *Sequencer) { s.name = name }
}

type Sequencer struct {
	voice    *speech.Voice
	script   Script
	pause    time.Duration
	onChange func(PlaybackState, bool)
	name     string

	mu        sync.Mutex
	state     PlaybackState
	hasPlayed bool
	gen       uint64
	cancel    context.CancelFunc
	lease     *speech.Lease
	done      chan struct{}
	lastErr   error
	closed    bool
}

func New(voice *speech.Voice, script Script, opts ...Option) *Sequencer {
	s := &Sequencer{
		voice:  voice,
		script: script,
		pause:  DefaultPause,
		name:   "narration",
		state:  idle,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sequencer) Script() Script { return s.script }

func (s *Sequencer) State() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sequencer) HasPlayed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPlayed
}

// Err returns the synthesis error that ended the last sequence, if any.
func (s *Sequencer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Play cancels whatever is playing and starts again from the first utterance.
func (s *Sequencer) Play() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cancelLocked()
	prev := s.done

	ctx, cancel := context.WithCancel(context.Background())
	lease := s.voice.Claim()
	done := make(chan struct{})

	s.gen++
	gen := s.gen
	s.cancel, s.lease, s.done = cancel, lease, done
	s.state = PlaybackState{IsPlaying: true, CurrentIndex: -1}
	s.lastErr = nil
	st, hp := s.state, s.hasPlayed
	s.mu.Unlock()

	log.Narration(s.name+" play", 0, len(s.script))
	s.notify(st, hp)
	go s.run(ctx, lease, gen, prev, done)
}

// Stop silences the current sequence. It is a no-op when idle.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	if !s.state.IsPlaying && s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.cancelLocked()
	s.gen++
	s.state = idle
	st, hp := s.state, s.hasPlayed
	s.mu.Unlock()

	log.Narration(s.name+" stop", -1, len(s.script))
	s.notify(st, hp)
}

// Skip stops playback and counts the script as heard.
func (s *Sequencer) Skip() {
	s.mu.Lock()
	s.cancelLocked()
	s.gen++
	s.state = idle
	s.hasPlayed = true
	st := s.state
	s.mu.Unlock()

	log.Narration(s.name+" skip", -1, len(s.script))
	s.notify(st, true)
}

// Close tears the sequencer down. It always cancels the shared voice, even
// when this sequencer is idle, then waits for the worker to exit.
func (s *Sequencer) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancelLocked()
	s.gen++
	s.state = idle
	done := s.done
	s.mu.Unlock()

	s.voice.CancelAll()
	if done != nil {
		<-done
	}
}

// Wait blocks until the current sequence, if any, has ended.
func (s *Sequencer) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Sequencer) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.lease != nil {
		s.lease.Release()
		s.lease = nil
	}
}

func (s *Sequencer) notify(st PlaybackState, hasPlayed bool) {
	if s.onChange != nil {
		s.onChange(st, hasPlayed)
	}
}

func (s *Sequencer) run(ctx context.Context, lease *speech.Lease, gen uint64, prev, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	for i, u := range s.script {
		if ctx.Err() != nil {
			return
		}
		if u.Empty() {
			continue
		}
		if !s.advance(gen, i) {
			return
		}

		req := speech.Request{
			Text:  strings.TrimSpace(u.Text),
			Lang:  Lang,
			Rate:  Rate,
			Pitch: u.Prosody.Pitch(),
		}
		start := time.Now()
		err := lease.Speak(ctx, req)
		switch {
		case err == nil:
			log.Utterance(s.voice.Engine().Name(), i, req.Pitch, time.Since(start))
		case errors.Is(err, context.Canceled), errors.Is(err, speech.ErrNotOwner):
			// Stopped here or the voice was claimed by someone else.
			s.finish(gen, false, nil)
			return
		default:
			log.Errorf("%s: speech synthesis failed at utterance %d: %v", s.name, i, err)
			s.finish(gen, false, err)
			return
		}

		timer := time.NewTimer(s.pause)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		case <-lease.Done():
			timer.Stop()
			s.finish(gen, false, nil)
			return
		}
	}
	s.finish(gen, true, nil)
}

// advance publishes the index about to be spoken. It reports false when the
// sequence has been superseded.
func (s *Sequencer) advance(gen uint64, index int) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	s.state.CurrentIndex = index
	st, hp := s.state, s.hasPlayed
	s.mu.Unlock()

	s.notify(st, hp)
	return true
}

func (s *Sequencer) finish(gen uint64, completed bool, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = idle
	if completed {
		s.hasPlayed = true
	}
	s.lastErr = err
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.lease != nil {
		s.lease.Release()
		s.lease = nil
	}
	st, hp := s.state, s.hasPlayed
	s.mu.Unlock()

	if completed {
		log.Narration(s.name+" complete", len(s.script), len(s.script))
	}
	s.notify(st, hp)
}
