// Package flow sequences the four activities of the lesson.
package flow

import (
	"errors"
	"fmt"
	"sync"

	"escucho/log"
	"escucho/quiz"
	"escucho/recording"
)

var ErrInvalidTransition = errors.New("invalid transition")

type Step int

const (
	Narration Step = iota
	Recording
	Review
	Transcription
	Done
)

func (s Step) String() string {
	switch s {
	case Narration:
		return "narration"
	case Recording:
		return "recording"
	case Review:
		return "review"
	case Transcription:
		return "transcription"
	case Done:
		return "done"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Controller owns the current step and the recordings carried from the
// recording activity to the review. Hooks run outside its lock.
type Controller struct {
	mu         sync.Mutex
	step       Step
	recordings recording.RecordingMap
	lastTier   quiz.Tier
	restarts   int
	onEnter    []func(Step)
}

func New() *Controller {
	return &Controller{recordings: recording.RecordingMap{}}
}

// OnEnter registers fn to run after every step change, including restarts.
func (c *Controller) OnEnter(fn func(Step)) {
	c.mu.Lock()
	c.onEnter = append(c.onEnter, fn)
	c.mu.Unlock()
}

func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Recordings returns a copy of the clips carried forward.
func (c *Controller) Recordings() recording.RecordingMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(recording.RecordingMap, len(c.recordings))
	for id, clip := range c.recordings {
		out[id] = clip
	}
	return out
}

// LastTier is the feedback acknowledged on the review step, "" before that.
func (c *Controller) LastTier() quiz.Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTier
}

func (c *Controller) Restarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

func (c *Controller) CompleteNarration() error {
	return c.advance(Narration, Recording, nil)
}

// CompleteRecording moves to the review carrying recs, which may be partial
// or empty.
func (c *Controller) CompleteRecording(recs recording.RecordingMap) error {
	return c.advance(Recording, Review, func() {
		c.recordings = make(recording.RecordingMap, len(recs))
		for id, clip := range recs {
			c.recordings[id] = clip
		}
	})
}

// AcknowledgeFeedback advances past the review whatever the tier.
func (c *Controller) AcknowledgeFeedback(tier quiz.Tier) error {
	return c.advance(Review, Transcription, func() { c.lastTier = tier })
}

func (c *Controller) CompleteTranscription() error {
	return c.advance(Transcription, Done, nil)
}

// Restart drops everything carried so far and returns to the narration.
// It is allowed from any step.
func (c *Controller) Restart() {
	c.mu.Lock()
	from := c.step
	c.step = Narration
	c.recordings = recording.RecordingMap{}
	c.lastTier = ""
	c.restarts++
	hooks := c.onEnter
	c.mu.Unlock()

	log.StepChange(from.String()+" (restart)", Narration.String())
	for _, fn := range hooks {
		fn(Narration)
	}
}

func (c *Controller) advance(from, to Step, apply func()) error {
	c.mu.Lock()
	if c.step != from {
		cur := c.step
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s while on %s", ErrInvalidTransition, from, to, cur)
	}
	if apply != nil {
		apply()
	}
	c.step = to
	hooks := c.onEnter
	c.mu.Unlock()

	log.StepChange(from.String(), to.String())
	for _, fn := range hooks {
		fn(to)
	}
	return nil
}
