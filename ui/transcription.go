package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"escucho/narration"
)

const storyViewHeight = 20

// transcriptionScreen shows the story text and can read it aloud again,
// highlighting the line being spoken.
type transcriptionScreen struct {
	seq   *narration.Sequencer
	state narration.PlaybackState
	vp    viewport.Model
	width int
	frame int
}

func newTranscriptionScreen(deps Deps, bridge *Bridge) *transcriptionScreen {
	s := &transcriptionScreen{
		state: narration.PlaybackState{CurrentIndex: -1},
		vp:    viewport.New(76, storyViewHeight),
	}
	s.seq = narration.New(deps.Voice, narration.StoryScript(),
		narration.WithPause(deps.Pause),
		narration.WithName("transcription"),
		narration.WithOnChange(func(narration.PlaybackState, bool) {
			bridge.Post(narrationChangedMsg{})
		}),
	)
	s.vp.SetContent(renderStory(s.seq.Script(), -1, 76))
	return s
}

func (s *transcriptionScreen) Init() tea.Cmd { return nil }

// renderStory lays the script out one paragraph per line. Dialogue lines get
// a bold speaker and an italic line; current is highlighted.
func renderStory(script narration.Script, current, width int) string {
	var b strings.Builder
	for i, u := range script {
		if u.Empty() {
			continue
		}
		var line string
		if speaker, text, ok := u.Speaker(); ok {
			line = speakerStyle.Render(speaker+":") + " " + dialogStyle.Render(text)
		} else {
			line = strings.TrimSpace(u.Text)
		}
		if i == current {
			line = currentStyle.Render("▸ ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(lipgloss.NewStyle().Width(width).Render(line))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *transcriptionScreen) refresh() {
	s.state = s.seq.State()
	s.vp.SetContent(renderStory(s.seq.Script(), s.state.CurrentIndex, s.vp.Width))
}

func (s *transcriptionScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.vp.Width = min(max(msg.Width-10, 30), 76)
		s.refresh()
	case narrationChangedMsg:
		s.refresh()
	case tickMsg:
		s.frame++
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Play):
			if s.seq.State().IsPlaying {
				s.seq.Stop()
			} else {
				s.seq.Play()
			}
			s.refresh()
			return s, nil
		case key.Matches(msg, keys.Continue):
			s.seq.Stop()
			return s, emit(transcriptionDoneMsg{})
		case key.Matches(msg, keys.Quit):
			return s, emit(quitMsg{})
		}
		var cmd tea.Cmd
		s.vp, cmd = s.vp.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *transcriptionScreen) playLabel() string {
	if s.state.IsPlaying {
		return "Detener"
	}
	return "Audio"
}

func (s *transcriptionScreen) View(width int) string {
	heading := headingStyle.Render("Transcripción del cuento")
	play := button("espacio", s.playLabel(), primaryButtonStyle)
	if s.state.IsPlaying {
		play = soundWave(s.frame) + " " + button("espacio", s.playLabel(), dangerButtonStyle)
	}
	body := heading + "   " + play + "\n" + s.vp.View() + "\n\n" +
		button("enter", "Continuar", buttonStyle)
	return cardStyle.Width(min(max(width-6, 30), 84)).Render(body)
}

func (s *transcriptionScreen) ShortHelp() []key.Binding {
	return []key.Binding{withHelp(keys.Play, s.playLabel()), keys.Up, keys.Down, keys.Continue, keys.Quit}
}

func (s *transcriptionScreen) Close() { s.seq.Close() }
