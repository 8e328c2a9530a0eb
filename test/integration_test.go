//go:build integration

package test_test

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var (
	testBinary string
	voiceWAV   string
	silenceWAV string
)

func TestMain(m *testing.M) {
	testBinary = os.Getenv("ESCUCHO_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "ESCUCHO_TEST_BIN not set; build the binary and point ESCUCHO_TEST_BIN at it")
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "escucho-it")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
		os.Exit(1)
	}
	voiceWAV = filepath.Join(dir, "voice.wav")
	silenceWAV = filepath.Join(dir, "silence.wav")
	if err := writeWAV(voiceWAV, 16000, 2.0, 220); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate voice.wav: %v\n", err)
		os.Exit(1)
	}
	if err := writeWAV(silenceWAV, 16000, 1.0, 0); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate silence.wav: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

// writeWAV writes a mono 16-bit file holding a sine at freq, or silence
// when freq is 0.
func writeWAV(path string, sampleRate int, durationS, freq float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := 0; i < numSamples && freq > 0; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(v))
	}
	return os.WriteFile(path, buf, 0644)
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func runEscucho(t *testing.T, stdin, wav string, args ...string) (out, logDir string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append([]string{"--logpath", logDir, "--test", wav, "--pause", "1ms"}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(), "ESCUCHO_TRANSCRIBE=false", "ESCUCHO_VOICE=espeak")

	b, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("escucho exited with error: %v\noutput: %s", err, b)
	}
	return string(b), logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func requireLine(t *testing.T, out, prefix string) {
	t.Helper()
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, prefix) {
			return
		}
	}
	t.Errorf("no line starting with %q in output:\n%s", prefix, out)
}

func TestFullLesson(t *testing.T) {
	out, logDir := runEscucho(t, cmds(
		"PLAY", "WAIT_NARRATION", "NEXT",
		"REC 1", "SLEEP 800", "STOPREC",
		"REC 2", "SLEEP 800", "STOPREC",
		"NEXT",
		"ANSWER 1 1", "ANSWER 2 1", "ANSWER 3 1", "ANSWER 4 1",
		"FEEDBACK", "ACK", "NEXT", "QUIT",
	), voiceWAV)

	requireLine(t, out, "narration playing=false index=-1 heard=true")
	requireLine(t, out, "saved id=1 ")
	requireLine(t, out, "saved id=2 ")
	requireLine(t, out, "review questions=4 recordings=2")
	requireLine(t, out, "feedback tier=success unsure=0")
	requireLine(t, out, "step done")

	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"session_start", "recording_saved", "feedback", "session_end"} {
		if !strings.Contains(diag, want) {
			t.Errorf("expected %s in diagnostics", want)
		}
	}
	session := readLog(t, logDir, "session_log.txt")
	if !strings.Contains(session, "success\toption1,option1,option1,option1\t1,2") {
		t.Errorf("unexpected session log: %q", session)
	}
}

func TestRestartAfterAlert(t *testing.T) {
	out, logDir := runEscucho(t, cmds(
		"NEXT", "NEXT",
		"ANSWER 1 4", "ANSWER 2 4", "ANSWER 3 1", "ANSWER 4 1",
		"FEEDBACK", "RESTART", "QUIT",
	), voiceWAV)

	requireLine(t, out, "feedback tier=alert unsure=2")
	requireLine(t, out, "quit restarts=1")
	if n := strings.Count(out, "step narration"); n != 2 {
		t.Errorf("step narration printed %d times, want 2", n)
	}
	if !strings.Contains(readLog(t, logDir, "diagnostics_log.txt"), "restarts=1") {
		t.Error("expected restarts=1 in session_end")
	}
}

func TestSilentMicrophone(t *testing.T) {
	out, _ := runEscucho(t, cmds("NEXT", "REC 1", "SLEEP 1500", "STOPREC", "QUIT"), silenceWAV)
	requireLine(t, out, "saved id=1 ")
	requireLine(t, out, "saved id=1 duration=")
	if !strings.Contains(out, "voice=false") {
		t.Errorf("silent clip should report voice=false:\n%s", out)
	}
}

func TestReplayOwnClip(t *testing.T) {
	out, _ := runEscucho(t, cmds(
		"NEXT", "REC 3", "SLEEP 500", "STOPREC", "NEXT",
		"PLAYREC 3", "WAIT_PLAYBACK", "QUIT",
	), voiceWAV)
	requireLine(t, out, "playing id=3")
	requireLine(t, out, "playback_end id=3")
}
