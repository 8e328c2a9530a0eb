package ui

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escucho/audio"
	"escucho/flow"
	"escucho/narration"
	"escucho/quiz"
	"escucho/recording"
	"escucho/speech"
)

type harness struct {
	t      *testing.T
	m      App
	bridge *Bridge
	engine *speech.Fake
	actx   *audio.FakeContext
}

func toneBytes(seconds float64) []byte {
	n := int(16000 * seconds)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(5000 * math.Sin(2*math.Pi*330*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func newHarness(t *testing.T, ctrl *flow.Controller, short bool) *harness {
	t.Helper()
	engine := speech.NewFake(10 * time.Millisecond)
	actx := audio.NewFakeContextPCM(toneBytes(0.2), false)
	deps := Deps{
		Voice:       speech.NewVoice(engine),
		Audio:       actx,
		Player:      actx.Player(),
		Pause:       time.Millisecond,
		ShortReview: short,
	}
	if ctrl == nil {
		ctrl = flow.New()
	}
	h := &harness{t: t, bridge: NewBridge(), engine: engine, actx: actx}
	h.m = NewApp(deps, ctrl, h.bridge)
	h.send(tea.WindowSizeMsg{Width: 100, Height: 40})
	t.Cleanup(func() { h.m.Close() })
	return h
}

// send applies msg and follows any screen transition it requests.
func (h *harness) send(msg tea.Msg) tea.Cmd {
	model, cmd := h.m.Update(msg)
	h.m = model.(App)
	if cmd == nil {
		return nil
	}
	switch out := cmd().(type) {
	case narrationDoneMsg, recordingDoneMsg, feedbackAckMsg, transcriptionDoneMsg, restartMsg, quitMsg:
		return h.send(out)
	case tea.QuitMsg:
		return cmd
	}
	return nil
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func (h *harness) press(keys ...string) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		cmd = h.send(keyMsg(k))
	}
	return cmd
}

// settle delivers everything workers have posted so far.
func (h *harness) settle() {
	for _, msg := range h.bridge.drain() {
		h.send(msg)
	}
}

func (h *harness) view() string { return h.m.View() }

func (h *harness) waitFor(cond func() bool, msg string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.settle()
		return cond()
	}, 3*time.Second, 5*time.Millisecond, msg)
}

func TestNarrationPlayStop(t *testing.T) {
	h := newHarness(t, nil, false)
	assert.Contains(t, h.view(), "Lección 1. Escucho y hablo")
	assert.Contains(t, h.view(), "Saltar audio")

	h.press("space")
	h.waitFor(func() bool { return strings.Contains(h.view(), "Detener") }, "narration never started")

	h.press("space")
	h.settle()
	assert.Contains(t, h.view(), "Audio")
	assert.Contains(t, h.view(), "Saltar audio")
	assert.Equal(t, flow.Narration, h.m.Step())
}

func TestNarrationCompletes(t *testing.T) {
	h := newHarness(t, nil, false)
	h.press("space")
	h.waitFor(func() bool {
		s := h.m.screen.(*narrationScreen)
		return s.hasPlayed && !s.state.IsPlaying
	}, "narration never finished")

	assert.Len(t, h.engine.Texts(), 10)
	assert.False(t, h.engine.Overlapped())
	assert.Contains(t, h.view(), "Continuar")
}

func TestSkipNarrationStopsVoice(t *testing.T) {
	h := newHarness(t, nil, false)
	h.press("space")
	<-h.engine.Started()

	h.press("enter")
	assert.Equal(t, flow.Recording, h.m.Step())
	spoken := h.engine.Spoken()
	require.NotEmpty(t, spoken)
	assert.False(t, spoken[len(spoken)-1].End.IsZero(), "speech still running after leaving the narration")
	assert.Contains(t, h.view(), "Graba las respuestas a estas preguntas")
}

func atRecording(t *testing.T) *harness {
	ctrl := flow.New()
	require.NoError(t, ctrl.CompleteNarration())
	return newHarness(t, ctrl, false)
}

func TestRecordAndContinue(t *testing.T) {
	h := atRecording(t)
	assert.Contains(t, h.view(), "Saltar actividad")

	h.press("down", "r")
	assert.Contains(t, h.view(), "REC")
	assert.Contains(t, h.view(), "grabando")

	h.press("up", "r")
	s := h.m.screen.(*recordingScreen)
	assert.Equal(t, recording.Recording, s.status.Kind, "only the active question can stop the capture")

	h.press("down", "r")
	assert.Equal(t, recording.Idle, s.status.Kind)
	assert.True(t, s.recs.Has(2))
	assert.Contains(t, h.view(), "✓")

	h.press("enter")
	assert.Equal(t, flow.Review, h.m.Step())
	assert.Equal(t, []int{2}, h.m.flow.Recordings().IDs())
}

func TestContinueWhileRecordingKeepsClip(t *testing.T) {
	h := atRecording(t)
	h.press("r")
	h.press("enter")
	assert.Equal(t, flow.Review, h.m.Step())
	assert.True(t, h.m.flow.Recordings().Has(1))
}

func TestMicrophoneErrorModal(t *testing.T) {
	h := atRecording(t)
	h.actx.CaptureErr = errors.New("permission denied")

	h.press("r")
	assert.Contains(t, h.view(), micErrorText)

	h.press("r")
	assert.Contains(t, h.view(), micErrorText, "modal swallows other keys")

	h.press("enter")
	assert.NotContains(t, h.view(), micErrorText)
	assert.Equal(t, flow.Recording, h.m.Step())
}

func TestInstructionsModal(t *testing.T) {
	h := atRecording(t)
	h.press("i")
	assert.Contains(t, h.view(), "Instrucciones de accesibilidad")
	h.press("esc")
	assert.NotContains(t, h.view(), "Instrucciones de accesibilidad")
}

func TestPlaybackDisabledWhileRecording(t *testing.T) {
	h := atRecording(t)
	h.press("r", "r")
	h.press("down", "r", "up", "p")
	s := h.m.screen.(*recordingScreen)
	assert.True(t, s.status.IsRecording(2))
	h.press("down", "r", "up", "p")
	assert.True(t, s.status.IsPlaying(1))
}

func atReview(t *testing.T, short bool, recs recording.RecordingMap) *harness {
	ctrl := flow.New()
	require.NoError(t, ctrl.CompleteNarration())
	require.NoError(t, ctrl.CompleteRecording(recs))
	return newHarness(t, ctrl, short)
}

func TestReviewFeedbackAlert(t *testing.T) {
	h := atReview(t, false, nil)
	assert.Contains(t, h.view(), "Responde a todas las preguntas")

	h.press("enter")
	assert.Equal(t, flow.Review, h.m.Step())

	h.press("4", "down", "4", "down", "3", "down", "3")
	h.press("enter")
	assert.Contains(t, h.view(), "¡Atención!")
	assert.Contains(t, h.view(), "varias preguntas")

	h.press("enter")
	assert.Equal(t, flow.Transcription, h.m.Step())
	assert.Equal(t, quiz.TierAlert, h.m.flow.LastTier())
}

func TestReviewFeedbackSuccess(t *testing.T) {
	h := atReview(t, false, nil)
	for i := 0; i < 4; i++ {
		h.press("right", "down")
	}
	h.press("enter")
	assert.Contains(t, h.view(), "¡Enhorabuena!")
}

func TestReviewRestart(t *testing.T) {
	h := atReview(t, false, recording.RecordingMap{1: {QuestionID: 1, Locator: "clip://x"}})
	h.press("1", "down", "1", "down", "1", "down", "4", "enter")
	assert.Contains(t, h.view(), "a una pregunta")

	h.press("v")
	assert.Equal(t, flow.Narration, h.m.Step())
	assert.Empty(t, h.m.flow.Recordings())
	assert.Equal(t, 1, h.m.flow.Restarts())
}

func TestShortReview(t *testing.T) {
	t.Run("one unsure continues", func(t *testing.T) {
		h := atReview(t, true, nil)
		h.press("4", "down", "3", "enter")
		assert.Equal(t, flow.Transcription, h.m.Step())
	})
	t.Run("two unsure warns", func(t *testing.T) {
		h := atReview(t, true, nil)
		h.press("4", "down", "4", "enter")
		assert.Contains(t, h.view(), "Continuar de todos modos")
		h.press("enter")
		assert.Equal(t, flow.Transcription, h.m.Step())
	})
}

func TestTranscriptionAndDone(t *testing.T) {
	ctrl := flow.New()
	require.NoError(t, ctrl.CompleteNarration())
	require.NoError(t, ctrl.CompleteRecording(nil))
	require.NoError(t, ctrl.AcknowledgeFeedback(quiz.TierSuccess))
	h := newHarness(t, ctrl, false)

	assert.Contains(t, h.view(), "Transcripción del cuento")
	assert.Contains(t, h.view(), "Mamá Loba pregunta:")

	h.press("space")
	h.waitFor(func() bool { return h.m.screen.(*transcriptionScreen).state.CurrentIndex >= 0 }, "story never started")

	h.press("enter")
	assert.Equal(t, flow.Done, h.m.Step())
	assert.Contains(t, h.view(), "¡Has terminado la lección!")

	cmd := h.press("enter")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRenderStoryHighlightsCurrent(t *testing.T) {
	out := renderStory(narration.StoryScript(), 8, 0)
	lines := strings.Split(out, "\n")
	var current string
	for _, l := range lines {
		if strings.Contains(l, "▸") {
			current = l
		}
	}
	assert.Contains(t, current, "¿Qué traes ahí papá Lobo?")
}

func TestBridgeDeliversInOrder(t *testing.T) {
	b := NewBridge()
	for i := 0; i < 50; i++ {
		b.Post(i)
	}
	got := make(chan tea.Msg, 100)
	b.Attach(func(msg tea.Msg) { got <- msg })
	for i := 50; i < 100; i++ {
		b.Post(i)
	}
	for i := 0; i < 100; i++ {
		select {
		case msg := <-got:
			require.Equal(t, i, msg)
		case <-time.After(time.Second):
			t.Fatalf("message %d never delivered", i)
		}
	}
	b.Close()
	b.Post("late")
	select {
	case msg := <-got:
		t.Fatalf("delivered after close: %v", msg)
	case <-time.After(20 * time.Millisecond):
	}
}
