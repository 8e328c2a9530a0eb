// Package speech drives text-to-speech. A Voice is the one shared handle to
// the synthesizer; components take a Lease on it before speaking, and taking
// a new lease silences whoever held the previous one.
package speech

import (
	"context"
	"errors"
	"sync"
)

// ErrNotOwner is returned when a lease that has been superseded tries to speak.
var ErrNotOwner = errors.New("speech: voice is owned by another lease")

type Request struct {
	Text  string
	Lang  string
	Rate  float64 // 1.0 is the engine's normal speed
	Pitch float64 // 1.0 is the engine's baseline pitch
}

// Engine synthesizes and plays one request. Speak blocks until the audio has
// finished and returns ctx.Err() once ctx is cancelled.
type Engine interface {
	Name() string
	Speak(ctx context.Context, req Request) error
}

type Voice struct {
	engine Engine

	mu     sync.Mutex
	token  uint64
	cancel context.CancelFunc

	// speaking serializes Speak across leases so a superseded utterance has
	// fully stopped before the next one starts.
	speaking sync.Mutex
}

func NewVoice(engine Engine) *Voice {
	return &Voice{engine: engine}
}

func (v *Voice) Engine() Engine { return v.engine }

// Claim cancels the current owner and returns a lease for the caller.
func (v *Voice) Claim() *Lease {
	ctx, cancel := context.WithCancel(context.Background())

	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.token++
	v.cancel = cancel
	token := v.token
	v.mu.Unlock()

	return &Lease{voice: v, token: token, ctx: ctx}
}

// CancelAll silences the voice regardless of who owns it.
func (v *Voice) CancelAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.token++
}

// Owner reports the token of the live lease, or 0 when none holds the voice.
func (v *Voice) Owner() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel == nil {
		return 0
	}
	return v.token
}

func (v *Voice) owns(token uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancel != nil && v.token == token
}

type Lease struct {
	voice *Voice
	token uint64
	ctx   context.Context
}

func (l *Lease) Token() uint64 { return l.token }

// Done is closed when the lease is released or superseded.
func (l *Lease) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lease) Valid() bool { return l.voice.owns(l.token) }

// Speak issues req on the engine. It fails with ErrNotOwner if the lease is no
// longer current, and stops early when either ctx or the lease is cancelled.
func (l *Lease) Speak(ctx context.Context, req Request) error {
	if !l.Valid() {
		return ErrNotOwner
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(l.ctx, cancel)
	defer stop()

	l.voice.speaking.Lock()
	defer l.voice.speaking.Unlock()

	// Re-check after waiting for the previous utterance to drain.
	if !l.Valid() {
		return ErrNotOwner
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.voice.engine.Speak(ctx, req)
}

// Release gives the voice up if this lease still owns it, cancelling any
// utterance in flight.
func (l *Lease) Release() {
	v := l.voice
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.token == l.token && v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}
