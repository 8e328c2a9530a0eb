package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"escucho/audio"
)

const (
	espeakBaseWPM   = 175
	espeakBasePitch = 50
)

// Espeak renders speech with the espeak-ng command line and plays it through
// an audio.Player, so cancelling a request stops the sound mid-word.
type Espeak struct {
	bin    string
	player audio.Player
}

// FindEspeak returns the first of espeak-ng or espeak found on PATH.
func FindEspeak() (string, error) {
	for _, name := range []string{"espeak-ng", "espeak"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", errors.New("espeak-ng not found in PATH (install espeak-ng)")
}

func NewEspeak(player audio.Player) (*Espeak, error) {
	bin, err := FindEspeak()
	if err != nil {
		return nil, err
	}
	return &Espeak{bin: bin, player: player}, nil
}

func (e *Espeak) Name() string { return "espeak" }

func (e *Espeak) Speak(ctx context.Context, req Request) error {
	cmd := exec.CommandContext(ctx, e.bin, EspeakArgs(req)...)
	cmd.Stdin = strings.NewReader(req.Text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("espeak: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pcm, err := audio.ParseWAV(out)
	if err != nil {
		return fmt.Errorf("espeak output: %w", err)
	}
	return e.player.Play(ctx, pcm)
}

// EspeakArgs maps a request onto espeak-ng flags. Rate scales the default
// 175 wpm, pitch scales the 0-99 pitch range around its midpoint. The text
// itself is read from stdin, never from argv.
func EspeakArgs(req Request) []string {
	rate := req.Rate
	if rate <= 0 {
		rate = 1
	}
	pitch := req.Pitch
	if pitch <= 0 {
		pitch = 1
	}
	wpm := int(math.Round(espeakBaseWPM * rate))
	p := min(max(int(math.Round(espeakBasePitch*pitch)), 0), 99)

	return []string{
		"--stdout",
		"-v", espeakVoice(req.Lang),
		"-s", strconv.Itoa(wpm),
		"-p", strconv.Itoa(p),
		"--stdin",
	}
}

// espeakVoice turns a BCP 47 tag into an espeak voice name; es-ES maps to
// "es" (Castilian), Latin American variants keep their region.
func espeakVoice(lang string) string {
	lang = strings.ToLower(strings.ReplaceAll(lang, "_", "-"))
	switch lang {
	case "":
		return "es"
	case "es-es":
		return "es"
	case "es-mx", "es-419", "es-us":
		return "es-419"
	}
	return lang
}
