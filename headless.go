package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"escucho/audio"
	"escucho/config"
	"escucho/flow"
	"escucho/log"
	"escucho/narration"
	"escucho/quiz"
	"escucho/recording"
	"escucho/speech"
	"escucho/transcriber"
)

var errNotHere = errors.New("not available on this step")

// headless drives the lesson from line commands on stdin and prints one
// line per event. It builds the same per-step workers as the TUI.
type headless struct {
	cfg    *config.Config
	voice  *speech.Voice
	actx   audio.Context
	player audio.Player
	trans  transcriber.Transcriber
	flow   *flow.Controller

	outMu sync.Mutex
	out   io.Writer

	mu       sync.Mutex
	seq      *narration.Sequencer
	session  *recording.Session
	ledger   *quiz.Ledger
	tier     quiz.Tier
	feedback bool
	// closed by the next PlaybackEndedEvent after a PLAYREC
	playEnded chan struct{}
}

func newHeadless(cfg *config.Config, engine speech.Engine, actx audio.Context, player audio.Player, trans transcriber.Transcriber, out io.Writer) *headless {
	h := &headless{
		cfg:    cfg,
		voice:  speech.NewVoice(engine),
		actx:   actx,
		player: player,
		trans:  trans,
		flow:   flow.New(),
		out:    out,
	}
	h.flow.OnEnter(h.enter)
	return h
}

func (h *headless) printf(format string, args ...any) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	fmt.Fprintf(h.out, format+"\n", args...)
}

// run reads commands until QUIT, EOF or ctx is done.
func (h *headless) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	h.enter(flow.Narration)
	defer h.teardown()

	for {
		select {
		case <-ctx.Done():
			h.printf("interrupted")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			quit, err := h.exec(ctx, line)
			if err != nil {
				log.Warnf("headless %q: %v", line, err)
				h.printf("error %s: %v", line, err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (h *headless) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, args := strings.ToUpper(fields[0]), fields[1:]

	switch cmd {
	case "PLAY":
		return false, h.withSequencer((*narration.Sequencer).Play)
	case "STOP":
		return false, h.withSequencer((*narration.Sequencer).Stop)
	case "SKIP":
		return false, h.withSequencer((*narration.Sequencer).Skip)
	case "WAIT_NARRATION":
		return false, h.withSequencer((*narration.Sequencer).Wait)
	case "NEXT":
		return false, h.next()
	case "REC":
		id, err := intArg(args, 0)
		if err != nil {
			return false, err
		}
		return false, h.withSession(func(s *recording.Session) error {
			if err := s.StartRecording(id); err != nil {
				return err
			}
			h.printf("recording id=%d", id)
			return nil
		})
	case "STOPREC":
		return false, h.withSession(func(s *recording.Session) error {
			clip, err := s.StopRecording()
			if err != nil {
				return err
			}
			h.printClip("saved", clip)
			return nil
		})
	case "PLAYREC":
		id, err := intArg(args, 0)
		if err != nil {
			return false, err
		}
		return false, h.withSession(func(s *recording.Session) error {
			ended := make(chan struct{})
			h.mu.Lock()
			h.playEnded = ended
			h.mu.Unlock()
			if err := s.PlayRecording(id); err != nil {
				h.signalPlaybackEnded()
				return err
			}
			h.printf("playing id=%d", id)
			return nil
		})
	case "WAIT_PLAYBACK":
		return false, h.waitPlayback(ctx)
	case "ANSWER":
		return false, h.answer(args)
	case "FEEDBACK":
		return false, h.computeFeedback()
	case "ACK":
		return false, h.acknowledge()
	case "RESTART":
		h.teardown()
		h.flow.Restart()
		return false, nil
	case "SLEEP":
		ms, err := intArg(args, 0)
		if err != nil {
			return false, err
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
		}
		return false, nil
	case "QUIT":
		h.printf("quit restarts=%d", h.flow.Restarts())
		return true, nil
	}
	return false, fmt.Errorf("unknown command %q", cmd)
}

func intArg(args []string, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", args[i], err)
	}
	return n, nil
}

// enter builds the workers for step. Called with the previous step's
// workers already torn down.
func (h *headless) enter(step flow.Step) {
	h.printf("step %s", step)

	h.mu.Lock()
	defer h.mu.Unlock()
	switch step {
	case flow.Narration:
		h.seq = h.sequencer(narration.StoryScript(), "narration")
	case flow.Recording:
		opts := []recording.Option{recording.WithEvents(h.onSessionEvent)}
		if h.trans != nil {
			opts = append(opts, recording.WithTranscriber(h.trans))
		}
		h.session = recording.NewSession(h.actx, h.player, quiz.IDs(quiz.RecordingQuestions()), opts...)
	case flow.Review:
		questions := quiz.ReviewQuestions()
		var lopts []quiz.LedgerOption
		if h.cfg.ShortReview {
			questions = quiz.ReviewPart1()
			lopts = append(lopts, quiz.WithUnsetAsUnsure())
		}
		h.ledger = quiz.NewLedger(quiz.IDs(questions), lopts...)
		h.feedback = false
		recs := h.flow.Recordings()
		h.session = recording.NewSession(h.actx, h.player, quiz.IDs(quiz.RecordingQuestions()),
			recording.WithEvents(h.onSessionEvent), recording.WithRecordings(recs))
		h.printf("review questions=%d recordings=%d", len(questions), len(recs))
	case flow.Transcription:
		h.seq = h.sequencer(narration.StoryScript(), "transcription")
	case flow.Done:
		h.printf("done")
	}
}

func (h *headless) sequencer(script narration.Script, name string) *narration.Sequencer {
	return narration.New(h.voice, script,
		narration.WithPause(h.cfg.Pause),
		narration.WithName(name),
		narration.WithOnChange(func(st narration.PlaybackState, heard bool) {
			h.printf("%s playing=%t index=%d heard=%t", name, st.IsPlaying, st.CurrentIndex, heard)
		}),
	)
}

func (h *headless) teardown() {
	h.mu.Lock()
	seq, session := h.seq, h.session
	h.seq, h.session, h.ledger = nil, nil, nil
	if h.playEnded != nil {
		close(h.playEnded)
		h.playEnded = nil
	}
	h.mu.Unlock()

	if seq != nil {
		seq.Close()
	}
	if session != nil {
		session.Close()
	}
}

func (h *headless) withSequencer(fn func(*narration.Sequencer)) error {
	h.mu.Lock()
	seq := h.seq
	h.mu.Unlock()
	if seq == nil {
		return errNotHere
	}
	fn(seq)
	return nil
}

func (h *headless) withSession(fn func(*recording.Session) error) error {
	h.mu.Lock()
	s := h.session
	h.mu.Unlock()
	if s == nil {
		return errNotHere
	}
	return fn(s)
}

func (h *headless) onSessionEvent(ev any) {
	switch e := ev.(type) {
	case recording.NoVoiceEvent:
		h.printf("novoice id=%d", e.QuestionID)
	case recording.VoiceResumedEvent:
		h.printf("voice id=%d", e.QuestionID)
	case recording.AutoStoppedEvent:
		h.printClip("autostop", e.Clip)
	case recording.PlaybackEndedEvent:
		if e.Err != nil {
			h.printf("playback_error id=%d err=%v", e.QuestionID, e.Err)
			h.signalPlaybackEnded()
			return
		}
		h.printf("playback_end id=%d", e.QuestionID)
		h.signalPlaybackEnded()
	case recording.TranscriptEvent:
		if e.Err != nil {
			h.printf("transcript_error id=%d err=%v", e.QuestionID, e.Err)
			return
		}
		h.printf("transcript id=%d text=%q", e.QuestionID, e.Text)
	}
}

func (h *headless) printClip(event string, c recording.Clip) {
	h.printf("%s id=%d duration=%s voice=%t locator=%s", event, c.QuestionID,
		c.Duration.Round(time.Millisecond), c.VoiceSeen, c.Locator)
}

func (h *headless) next() error {
	switch step := h.flow.Step(); step {
	case flow.Narration:
		_ = h.withSequencer((*narration.Sequencer).Skip)
		h.teardown()
		return h.flow.CompleteNarration()
	case flow.Recording:
		var recs recording.RecordingMap
		err := h.withSession(func(s *recording.Session) error {
			if s.Status().Kind == recording.Recording {
				if clip, err := s.StopRecording(); err == nil {
					h.printClip("saved", clip)
				}
			}
			recs = s.Recordings()
			return nil
		})
		if err != nil {
			return err
		}
		h.teardown()
		return h.flow.CompleteRecording(recs)
	case flow.Transcription:
		h.teardown()
		return h.flow.CompleteTranscription()
	default:
		return fmt.Errorf("%w: NEXT on %s", errNotHere, step)
	}
}

func (h *headless) signalPlaybackEnded() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playEnded != nil {
		close(h.playEnded)
		h.playEnded = nil
	}
}

// waitPlayback blocks until the clip started by the last PLAYREC has ended
// and its event has been printed.
func (h *headless) waitPlayback(ctx context.Context) error {
	h.mu.Lock()
	ended, session := h.playEnded, h.session
	h.mu.Unlock()
	if session == nil {
		return errNotHere
	}
	if ended == nil {
		return nil
	}
	select {
	case <-ended:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *headless) answer(args []string) error {
	id, err := intArg(args, 0)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("missing argument 2")
	}
	choice, err := quiz.ParseChoice(args[1])
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ledger == nil {
		return errNotHere
	}
	if err := h.ledger.SetAnswer(id, choice); err != nil {
		return err
	}
	h.feedback = false
	h.outMu.Lock()
	fmt.Fprintf(h.out, "answer id=%d choice=%s complete=%t\n", id, choice, h.ledger.IsComplete())
	h.outMu.Unlock()
	return nil
}

func (h *headless) computeFeedback() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ledger == nil {
		return errNotHere
	}
	if !h.ledger.IsComplete() {
		h.outMu.Lock()
		fmt.Fprintln(h.out, "incomplete")
		h.outMu.Unlock()
		return nil
	}
	h.tier = h.ledger.ComputeFeedback()
	h.feedback = true
	unsure := h.ledger.UnsureCount()
	log.Feedback(string(h.tier), unsure)

	h.outMu.Lock()
	fmt.Fprintf(h.out, "feedback tier=%s unsure=%d title=%q message=%q\n", h.tier, unsure, h.tier.Title(), h.tier.Message())
	h.outMu.Unlock()
	return nil
}

func (h *headless) acknowledge() error {
	h.mu.Lock()
	if h.ledger == nil || !h.feedback {
		h.mu.Unlock()
		return fmt.Errorf("%w: no feedback to acknowledge", errNotHere)
	}
	tier, answers := h.tier, h.ledger.Answers()
	h.mu.Unlock()

	log.SessionResult(string(tier), answers, h.flow.Recordings().IDs())
	h.teardown()
	return h.flow.AcknowledgeFeedback(tier)
}
