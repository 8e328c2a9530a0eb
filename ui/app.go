// Package ui is the terminal front end: one bubbletea screen per activity of
// the lesson, switched by a flow.Controller.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"escucho/audio"
	"escucho/flow"
	"escucho/log"
	"escucho/quiz"
	"escucho/recording"
	"escucho/speech"
	"escucho/transcriber"
)

// Deps are the capabilities the screens are built from.
type Deps struct {
	Voice       *speech.Voice
	Audio       audio.Context
	Player      audio.Player
	Device      *audio.DeviceInfo
	Transcriber transcriber.Transcriber
	Pause       time.Duration
	ShortReview bool
}

// screen is one activity. Close must release everything the screen started
// and is called before the next screen is built.
type screen interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (screen, tea.Cmd)
	View(width int) string
	ShortHelp() []key.Binding
	Close()
}

// Transition requests returned by screens as commands.
type (
	narrationDoneMsg     struct{}
	recordingDoneMsg     struct{ recs recording.RecordingMap }
	feedbackAckMsg       struct{ tier quiz.Tier }
	transcriptionDoneMsg struct{}
	restartMsg           struct{}
)

// Worker notifications delivered through the Bridge.
type (
	narrationChangedMsg struct{}
	recordingEventMsg   struct{ ev any }
)

type tickMsg time.Time

const frameInterval = 150 * time.Millisecond

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

type App struct {
	deps   Deps
	flow   *flow.Controller
	bridge *Bridge
	screen screen
	help   help.Model
	width  int
	height int
	err    error
}

func NewApp(deps Deps, ctrl *flow.Controller, bridge *Bridge) App {
	m := App{deps: deps, flow: ctrl, bridge: bridge, help: help.New()}
	m.screen = m.build(ctrl.Step())
	return m
}

func (m App) build(step flow.Step) screen {
	switch step {
	case flow.Narration:
		return newNarrationScreen(m.deps, m.bridge)
	case flow.Recording:
		return newRecordingScreen(m.deps, m.bridge)
	case flow.Review:
		return newReviewScreen(m.deps, m.bridge, m.flow.Recordings())
	case flow.Transcription:
		return newTranscriptionScreen(m.deps, m.bridge)
	default:
		return newDoneScreen()
	}
}

// Step reports the flow step currently on screen.
func (m App) Step() flow.Step { return m.flow.Step() }

func (m App) Init() tea.Cmd {
	return tea.Batch(tick(), m.screen.Init())
}

func (m App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.Close()
			return m, tea.Quit
		}

	case narrationDoneMsg:
		return m.transition(m.flow.CompleteNarration)
	case recordingDoneMsg:
		return m.transition(func() error { return m.flow.CompleteRecording(msg.recs) })
	case feedbackAckMsg:
		return m.transition(func() error { return m.flow.AcknowledgeFeedback(msg.tier) })
	case transcriptionDoneMsg:
		return m.transition(m.flow.CompleteTranscription)
	case restartMsg:
		m.screen.Close()
		m.flow.Restart()
		m.screen = m.build(m.flow.Step())
		return m, m.screen.Init()

	case quitMsg:
		m.Close()
		return m, tea.Quit

	case tickMsg:
		var cmd tea.Cmd
		m.screen, cmd = m.screen.Update(msg)
		return m, tea.Batch(cmd, tick())
	}

	var cmd tea.Cmd
	m.screen, cmd = m.screen.Update(msg)
	return m, cmd
}

type quitMsg struct{}

// transition tears the current screen down before the flow moves, so the
// next screen never overlaps with audio the previous one started.
func (m App) transition(advance func() error) (tea.Model, tea.Cmd) {
	m.screen.Close()
	if err := advance(); err != nil {
		log.Errorf("flow: %v", err)
		m.err = err
	}
	m.screen = m.build(m.flow.Step())
	return m, m.screen.Init()
}

// Close releases the active screen.
func (m App) Close() {
	if m.screen != nil {
		m.screen.Close()
	}
}

func (m App) View() string {
	if m.width == 0 {
		return "Cargando..."
	}
	var b strings.Builder
	b.WriteString(header())
	b.WriteString("\n\n")
	b.WriteString(m.screen.View(m.width))
	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView(m.screen.ShortHelp()))
	if m.err != nil {
		b.WriteString("\n" + warnStyle.Render(m.err.Error()))
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

// Run shows the lesson until it is quit or ctx ends.
func Run(ctx context.Context, deps Deps) (restarts int, err error) {
	ctrl := flow.New()
	bridge := NewBridge()
	app := NewApp(deps, ctrl, bridge)

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(p.Send)

	final, err := p.Run()
	if m, ok := final.(App); ok {
		m.Close()
	} else {
		app.Close()
	}
	bridge.Close()
	if err != nil && ctx.Err() == nil {
		return ctrl.Restarts(), fmt.Errorf("running ui: %w", err)
	}
	return ctrl.Restarts(), nil
}

type doneScreen struct{}

func newDoneScreen() *doneScreen { return &doneScreen{} }

func (s *doneScreen) Init() tea.Cmd { return nil }

func (s *doneScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(km, keys.Restart):
			return s, emit(restartMsg{})
		case key.Matches(km, keys.Quit), key.Matches(km, keys.Continue):
			return s, emit(quitMsg{})
		}
	}
	return s, nil
}

func (s *doneScreen) View(width int) string {
	body := headingStyle.Render("¡Has terminado la lección!") + "\n" +
		"Puedes volver a escuchar el cuento o salir."
	return cardStyle.Width(min(max(width-6, 30), 80)).Render(body)
}

func (s *doneScreen) ShortHelp() []key.Binding {
	return []key.Binding{keys.Restart, withHelp(keys.Continue, "salir")}
}

func (s *doneScreen) Close() {}
