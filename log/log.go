package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const EnvLogPath = "ESCUCHO_LOG_PATH"

var (
	diagLog     zerolog.Logger
	diagFile    *os.File
	sessionFile *os.File
	logMu       sync.Mutex
	logReady    bool
	pid         int
	dir         string
)

// Metrics describes one network round trip to a speech or transcription API.
type Metrics struct {
	AudioLengthS float64
	PayloadKB    float64
	DNSTimeMs    float64
	TLSTimeMs    float64
	TTFBMs       float64
	TotalTimeMs  float64
	ConnReused   bool
	TLSProto     string
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: ESCUCHO_LOG_PATH environment variable
	if envPath := os.Getenv(EnvLogPath); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, "diagnostics_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	sessionFile, err = os.OpenFile(filepath.Join(dir, "session_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if sessionFile != nil {
		sessionFile.Close()
		sessionFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(voice, device string, transcribe bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("voice", voice).
		Str("device", device).
		Bool("transcribe", transcribe).
		Msg("session_start")
}

func SessionEnd(restarts int) {
	if !logReady {
		return
	}
	diagLog.Info().Int("restarts", restarts).Msg("session_end")
}

func StepChange(from, to string) {
	if !logReady {
		return
	}
	diagLog.Info().Str("from", from).Str("to", to).Msg("step")
}

func Narration(event string, index, total int) {
	if !logReady {
		return
	}
	diagLog.Info().Str("event", event).Int("index", index).Int("total", total).Msg("narration")
}

func Utterance(engine string, index int, pitch float64, d time.Duration) {
	if !logReady {
		return
	}
	diagLog.Debug().
		Str("engine", engine).
		Int("index", index).
		Float64("pitch", pitch).
		Float64("spoken_ms", float64(d.Milliseconds())).
		Msg("utterance")
}

func RecordingSaved(questionID int, locator string, d time.Duration, flacKB float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("question", questionID).
		Str("clip", locator).
		Float64("audio_s", d.Seconds()).
		Float64("flac_kb", flacKB).
		Msg("recording_saved")
}

func Playback(questionID int, event string) {
	if !logReady {
		return
	}
	diagLog.Info().Int("question", questionID).Str("event", event).Msg("playback")
}

func Feedback(tier string, unsure int) {
	if !logReady {
		return
	}
	diagLog.Info().Str("tier", tier).Int("unsure", unsure).Msg("feedback")
}

func APIMetrics(kind, provider string, m Metrics) {
	if !logReady {
		return
	}
	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}
	ev := diagLog.Info().
		Str("kind", kind).
		Str("provider", provider).
		Str("conn", connStatus)
	if m.TLSProto != "" {
		ev = ev.Str("tls_proto", m.TLSProto)
	}
	ev.Float64("audio_s", m.AudioLengthS).
		Float64("payload_kb", m.PayloadKB).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Msg("api")
}

// SessionResult appends one tab-separated line per finished exercise:
// timestamp, pid, feedback tier, answers (q=choice), recorded question ids.
func SessionResult(tier string, answers []string, recorded []int) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	ids := make([]string, len(recorded))
	for i, id := range recorded {
		ids[i] = fmt.Sprint(id)
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\t%s\n",
		time.Now().Format("2006-01-02 15:04:05"), pid, tier,
		strings.Join(answers, ","), strings.Join(ids, ","))
	sessionFile.WriteString(line)
}
