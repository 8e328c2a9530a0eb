package speech

import (
	"context"
	"sync"
	"time"
)

// Spoken is one request seen by a Fake, with when it started and ended.
type Spoken struct {
	Request
	Start     time.Time
	End       time.Time
	Cancelled bool
}

// Fake pretends to speak for a fixed duration per request. FailOn makes the
// request with that text fail with Err.
type Fake struct {
	Duration time.Duration
	FailOn   string
	Err      error

	mu       sync.Mutex
	spoken   []Spoken
	inflight int
	overlap  bool
	started  chan Request
}

func NewFake(d time.Duration) *Fake {
	return &Fake{Duration: d, started: make(chan Request, 64)}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Speak(ctx context.Context, req Request) error {
	f.mu.Lock()
	f.inflight++
	if f.inflight > 1 {
		f.overlap = true
	}
	idx := len(f.spoken)
	f.spoken = append(f.spoken, Spoken{Request: req, Start: time.Now()})
	f.mu.Unlock()

	select {
	case f.started <- req:
	default:
	}

	var err error
	if f.FailOn != "" && req.Text == f.FailOn {
		err = f.Err
	} else {
		select {
		case <-time.After(f.Duration):
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	f.mu.Lock()
	f.inflight--
	f.spoken[idx].End = time.Now()
	f.spoken[idx].Cancelled = ctx.Err() != nil
	f.mu.Unlock()
	return err
}

// Started delivers requests as they begin; buffered, drops when full.
func (f *Fake) Started() <-chan Request { return f.started }

func (f *Fake) Spoken() []Spoken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Spoken(nil), f.spoken...)
}

func (f *Fake) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.spoken))
	for i, s := range f.spoken {
		out[i] = s.Text
	}
	return out
}

// Overlapped reports whether two requests were ever in flight at once.
func (f *Fake) Overlapped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}
