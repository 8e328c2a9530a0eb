package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"escucho/audio"
	"escucho/beep"
	"escucho/config"
	"escucho/doctor"
	"escucho/log"
	"escucho/speech"
	"escucho/transcriber"
	"escucho/ui"
)

var version = "dev"

// testSpeechDelay is how long the fake engine takes per utterance in --test.
const testSpeechDelay = 50 * time.Millisecond

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "escucho",
		Short:         "Lección 1. Escucho y hablo: listen, answer aloud, review",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLesson(cmd.Context(), cfg)
		},
	}
	cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "doctor",
			Short: "Check the speech engine, microphone and playback",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDoctor(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "escucho %s\n", version)
			},
		},
	)
	return root
}

// setupLogging points the log package and the crash output at the
// resolved log directory. Failures only warn.
func setupLogging(logPath string) error {
	dir, err := log.ResolveDir(logPath)
	if err != nil {
		return fmt.Errorf("failed to resolve log directory: %w", err)
	}
	log.SetDir(dir)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashFile, err := os.OpenFile(filepath.Join(log.Dir(), "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func runLesson(parent context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := setupLogging(cfg.LogPath); err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signalContext(parent)
	defer stop()

	if cfg.Headless() {
		return runTestMode(ctx, cfg)
	}
	if !isTerminal(os.Stdout.Fd()) {
		return errors.New("stdout is not a terminal; use --test <wav> to run headless")
	}

	actx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer actx.Close()

	player, err := actx.NewPlayer()
	if err != nil {
		return fmt.Errorf("audio playback: %w", err)
	}
	defer player.Close()

	device, err := pickDevice(actx, cfg)
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, player)
	if err != nil {
		return err
	}
	trans, err := newTranscriber(cfg)
	if err != nil {
		return err
	}

	if cfg.NoBeep {
		beep.Disable()
	} else {
		beep.Init(player)
	}

	log.SessionStart(cfg.Voice, deviceName(device), cfg.Transcribe)
	restarts, err := ui.Run(ctx, ui.Deps{
		Voice:       speech.NewVoice(engine),
		Audio:       actx,
		Player:      player,
		Device:      device,
		Transcriber: trans,
		Pause:       cfg.Pause,
		ShortReview: cfg.ShortReview,
	})
	log.SessionEnd(restarts)
	return err
}

// runTestMode replaces the microphone with the WAV file and the voice with
// a fake engine, then reads commands from stdin.
func runTestMode(ctx context.Context, cfg *config.Config) error {
	beep.Disable()

	fakeCtx, err := audio.NewFakeContext(cfg.TestWAV, true)
	if err != nil {
		return fmt.Errorf("loading WAV: %w", err)
	}
	trans, err := newTranscriber(cfg)
	if err != nil {
		return err
	}

	log.SessionStart("fake", "fake", cfg.Transcribe)
	h := newHeadless(cfg, speech.NewFake(testSpeechDelay), fakeCtx, fakeCtx.Player(), trans, os.Stdout)
	err = h.run(ctx, os.Stdin)
	log.SessionEnd(h.flow.Restarts())
	return err
}

func runDoctor(parent context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signalContext(parent)
	defer stop()

	actx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer actx.Close()

	player, err := actx.NewPlayer()
	if err != nil {
		return fmt.Errorf("audio playback: %w", err)
	}
	defer player.Close()

	device, err := pickDevice(actx, cfg)
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, player)
	if err != nil {
		return err
	}

	code := doctor.Run(ctx, doctor.Options{
		Audio:  actx,
		Player: player,
		Engine: engine,
		Device: device,
	})
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

func pickDevice(actx audio.Context, cfg *config.Config) (*audio.DeviceInfo, error) {
	switch {
	case cfg.Setup:
		d, err := audio.SelectDevice(actx)
		if err != nil {
			return nil, fmt.Errorf("device selection: %w", err)
		}
		return d, nil
	case cfg.Device != "":
		d, err := audio.FindDevice(actx, cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", cfg.Device, err)
		}
		return d, nil
	}
	return nil, nil
}

func deviceName(d *audio.DeviceInfo) string {
	if d == nil {
		return "default"
	}
	return d.Name
}

func newEngine(cfg *config.Config, player audio.Player) (speech.Engine, error) {
	if cfg.Voice == config.VoiceOpenAI {
		o := speech.NewOpenAI(cfg.OpenAIKey, player)
		go o.Warm()
		return o, nil
	}
	e, err := speech.NewEspeak(player)
	if err != nil {
		return nil, fmt.Errorf("espeak: %w", err)
	}
	return e, nil
}

func newTranscriber(cfg *config.Config) (transcriber.Transcriber, error) {
	if !cfg.Transcribe {
		return nil, nil
	}
	t, err := transcriber.New(cfg.GroqKey, cfg.OpenAIKey)
	if err != nil {
		return nil, fmt.Errorf("transcriber: %w", err)
	}
	return t, nil
}
