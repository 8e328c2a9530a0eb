// Package doctor runs interactive checks of the speech engine, the
// microphone and playback.
package doctor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"escucho/audio"
	"escucho/recording"
	"escucho/speech"
)

const testSentence = "Hola. Vamos a escuchar el cuento de Mowgli."

type Options struct {
	Audio     audio.Context
	Player    audio.Player
	Engine    speech.Engine
	Device    *audio.DeviceInfo
	RecordFor time.Duration
	In        io.Reader
	Out       io.Writer
}

type checker struct {
	opts   Options
	in     *bufio.Reader
	out    io.Writer
	clip   recording.Clip
	events chan any
}

// Run executes the checks in order and returns an exit code (0=all pass,
// 1=any fail). A failed check skips the ones after it.
func Run(ctx context.Context, opts Options) int {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.RecordFor <= 0 {
		opts.RecordFor = 3 * time.Second
	}
	restore := saveTerminal()
	defer restore()
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			// Prompts block on stdin, so an interrupt has to exit here.
			restore()
			fmt.Fprintln(opts.Out, "\nInterrupted")
			os.Exit(1)
		case <-finished:
		}
	}()

	c := &checker{opts: opts, in: bufio.NewReader(opts.In), out: opts.Out, events: make(chan any, 256)}
	c.printf("escucho doctor - interactive system diagnostics\n")
	c.printf("===============================================\n")

	allPass := c.checkSpeech(ctx) && c.checkMicrophone(ctx) && c.checkPlayback(ctx)

	c.printf("\n")
	if allPass {
		c.printf("All checks passed!\n")
		return 0
	}
	c.printf("Some checks failed. See details above.\n")
	return 1
}

func (c *checker) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *checker) confirm(question string) bool {
	c.printf("%s [y/n]: ", question)
	answer, _ := c.in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes" || answer == "s" || answer == "si" || answer == "sí"
}

func (c *checker) checkSpeech(ctx context.Context) bool {
	c.printf("\n[1/3] Speech engine\n")
	if c.opts.Engine == nil {
		c.printf("  FAIL: no speech engine configured\n")
		return false
	}
	c.printf("  Speaking with %s...\n", c.opts.Engine.Name())

	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := c.opts.Engine.Speak(sctx, speech.Request{Text: testSentence, Lang: "es-ES", Rate: 0.9, Pitch: 1})
	if err != nil {
		c.printf("  FAIL: speech error: %v\n", err)
		return false
	}
	if !c.confirm("Did you hear \"" + testSentence + "\"?") {
		c.printf("  FAIL: speech not confirmed\n")
		return false
	}
	c.printf("  PASS: speech verified by user\n")
	return true
}

func (c *checker) session(extra ...recording.Option) *recording.Session {
	opts := []recording.Option{
		recording.WithDevice(c.opts.Device),
		recording.WithEvents(func(ev any) {
			select {
			case c.events <- ev:
			default:
			}
		}),
	}
	return recording.NewSession(c.opts.Audio, c.opts.Player, []int{1}, append(opts, extra...)...)
}

func (c *checker) checkMicrophone(ctx context.Context) bool {
	c.printf("\n[2/3] Microphone\n")
	if c.opts.Audio == nil {
		c.printf("  FAIL: no audio context\n")
		return false
	}
	c.printf("Press Enter and speak for %.0f seconds...", c.opts.RecordFor.Seconds())
	c.in.ReadString('\n')

	s := c.session()
	defer s.Close()
	if err := s.StartRecording(1); err != nil {
		switch {
		case errors.Is(err, audio.ErrPermissionDenied):
			c.printf("  FAIL: microphone permission denied: %v\n", err)
		default:
			c.printf("  FAIL: cannot open microphone: %v\n", err)
		}
		return false
	}

	c.printf("  Recording")
	peak := 0.0
	deadline := time.NewTimer(c.opts.RecordFor)
	defer deadline.Stop()
	dots := time.NewTicker(500 * time.Millisecond)
	defer dots.Stop()
loop:
	for {
		select {
		case ev := <-c.events:
			if lv, ok := ev.(recording.LevelEvent); ok {
				peak = max(peak, lv.RMS)
			}
		case <-dots.C:
			c.printf(".")
		case <-deadline.C:
			break loop
		case <-ctx.Done():
			c.printf(" interrupted\n")
			return false
		}
	}
	clip, err := s.StopRecording()
	c.printf(" done\n")
	if err != nil {
		c.printf("  FAIL: recording error: %v\n", err)
		return false
	}
	c.clip = clip
	c.printf("  Recorded %.1fs, %.1f KB FLAC, peak level %.3f\n",
		clip.Duration.Seconds(), float64(len(clip.Data))/1024, peak)
	if !clip.VoiceSeen {
		c.printf("  FAIL: no voice detected\n")
		return false
	}
	c.printf("  PASS: voice detected\n")
	return true
}

func (c *checker) checkPlayback(ctx context.Context) bool {
	c.printf("\n[3/3] Playback\n")
	if len(c.clip.Data) == 0 {
		c.printf("  FAIL: no recording to play\n")
		return false
	}
	s := c.session(recording.WithRecordings(recording.RecordingMap{c.clip.QuestionID: c.clip}))
	defer s.Close()
	c.drainEvents()

	c.printf("  Playing your recording...\n")
	if err := s.PlayRecording(c.clip.QuestionID); err != nil {
		c.printf("  FAIL: playback error: %v\n", err)
		return false
	}
	for {
		select {
		case ev := <-c.events:
			end, ok := ev.(recording.PlaybackEndedEvent)
			if !ok {
				continue
			}
			if end.Err != nil {
				c.printf("  FAIL: playback error: %v\n", end.Err)
				return false
			}
			if !c.confirm("Did you hear your recording?") {
				c.printf("  FAIL: playback not confirmed\n")
				return false
			}
			c.printf("  PASS: playback verified by user\n")
			return true
		case <-ctx.Done():
			return false
		}
	}
}

func (c *checker) drainEvents() {
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}
