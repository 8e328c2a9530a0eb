// Package config gathers settings from a .env file, the environment and the
// command line, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	EnvVoice      = "ESCUCHO_VOICE"
	EnvDevice     = "ESCUCHO_DEVICE"
	EnvTranscribe = "ESCUCHO_TRANSCRIBE"
	EnvPauseMS    = "ESCUCHO_PAUSE_MS"
	EnvLogPath    = "ESCUCHO_LOG_PATH"
	EnvOpenAIKey  = "OPENAI_API_KEY"
	EnvGroqKey    = "GROQ_API_KEY"

	VoiceEspeak = "espeak"
	VoiceOpenAI = "openai"

	DefaultPause = 300 * time.Millisecond
)

type Config struct {
	Voice       string
	Device      string
	Setup       bool
	LogPath     string
	Transcribe  bool
	NoBeep      bool
	ShortReview bool
	Pause       time.Duration
	TestWAV     string

	OpenAIKey string
	GroqKey   string
}

// Load reads envFile (a missing file is not an error) and then the process
// environment. Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	pauseMS := getEnvInt(EnvPauseMS, int(DefaultPause/time.Millisecond))
	return &Config{
		Voice:      strings.ToLower(getEnv(EnvVoice, VoiceEspeak)),
		Device:     getEnv(EnvDevice, ""),
		LogPath:    getEnv(EnvLogPath, ""),
		Transcribe: getEnvBool(EnvTranscribe, false),
		Pause:      time.Duration(pauseMS) * time.Millisecond,
		OpenAIKey:  getEnv(EnvOpenAIKey, ""),
		GroqKey:    getEnv(EnvGroqKey, ""),
	}, nil
}

// BindFlags registers the command-line flags on fs, defaulting to the values
// already loaded.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Voice, "voice", c.Voice, "speech engine: espeak or openai")
	fs.StringVar(&c.Device, "device", c.Device, "microphone name (substring match)")
	fs.BoolVar(&c.Setup, "setup", false, "pick the microphone interactively")
	fs.StringVar(&c.LogPath, "logpath", c.LogPath, "directory for diagnostics and session logs")
	fs.BoolVar(&c.Transcribe, "transcribe", c.Transcribe, "transcribe recorded answers (needs GROQ_API_KEY or OPENAI_API_KEY)")
	fs.BoolVar(&c.NoBeep, "no-beep", false, "disable recording start/stop cues")
	fs.BoolVar(&c.ShortReview, "short-review", false, "review only the first two questions")
	fs.DurationVar(&c.Pause, "pause", c.Pause, "pause between narrated lines")
	fs.StringVar(&c.TestWAV, "test", "", "headless mode: feed the microphone from a WAV file and read commands from stdin")
}

func (c *Config) Validate() error {
	switch c.Voice {
	case VoiceEspeak:
	case VoiceOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("voice %q needs %s", c.Voice, EnvOpenAIKey)
		}
	default:
		return fmt.Errorf("unknown voice %q (want %s or %s)", c.Voice, VoiceEspeak, VoiceOpenAI)
	}
	if c.Pause <= 0 {
		return fmt.Errorf("pause must be > 0, got %s", c.Pause)
	}
	if c.Transcribe && c.GroqKey == "" && c.OpenAIKey == "" {
		return fmt.Errorf("--transcribe needs %s or %s", EnvGroqKey, EnvOpenAIKey)
	}
	return nil
}

// Headless reports whether the run is driven from stdin instead of the TUI.
func (c *Config) Headless() bool { return c.TestWAV != "" }

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
