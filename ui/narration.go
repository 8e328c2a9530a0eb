package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"escucho/narration"
)

// narrationScreen is the listening activity: the story is read aloud and the
// child moves on once it has been heard or skipped.
type narrationScreen struct {
	seq       *narration.Sequencer
	state     narration.PlaybackState
	hasPlayed bool
	frame     int
}

func newNarrationScreen(deps Deps, bridge *Bridge) *narrationScreen {
	s := &narrationScreen{state: narration.PlaybackState{CurrentIndex: -1}}
	s.seq = narration.New(deps.Voice, narration.StoryScript(),
		narration.WithPause(deps.Pause),
		narration.WithName("narration"),
		narration.WithOnChange(func(narration.PlaybackState, bool) {
			bridge.Post(narrationChangedMsg{})
		}),
	)
	return s
}

func (s *narrationScreen) Init() tea.Cmd { return nil }

func (s *narrationScreen) refresh() {
	s.state = s.seq.State()
	s.hasPlayed = s.seq.HasPlayed()
}

func (s *narrationScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
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
		case key.Matches(msg, keys.Continue):
			s.seq.Skip()
			s.refresh()
			return s, emit(narrationDoneMsg{})
		case key.Matches(msg, keys.Quit):
			return s, emit(quitMsg{})
		}
	}
	return s, nil
}

func (s *narrationScreen) playLabel() string {
	if s.state.IsPlaying {
		return "Detener"
	}
	return "Audio"
}

func (s *narrationScreen) continueLabel() string {
	if s.hasPlayed {
		return "Continuar"
	}
	return "Saltar audio"
}

func (s *narrationScreen) View(width int) string {
	body := "Escucha atentamente la historia de Mowgli.\n" +
		dimStyle.Render("Pulsa espacio para reproducir el audio.") + "\n\n"

	if s.state.IsPlaying {
		body += soundWave(s.frame)
		if total := len(s.seq.Script()); s.state.CurrentIndex >= 0 {
			body += dimStyle.Render("  " + progress(s.state.CurrentIndex+1, total))
		}
	} else {
		body += dimStyle.Render("○")
	}
	body += "\n\n"

	play := button("espacio", s.playLabel(), primaryButtonStyle)
	if s.state.IsPlaying {
		play = button("espacio", s.playLabel(), dangerButtonStyle)
	}
	cont := button("enter", s.continueLabel(), buttonStyle)
	if s.hasPlayed {
		cont = button("enter", s.continueLabel(), primaryButtonStyle)
	}
	body += play + "   " + cont
	return cardStyle.Width(min(max(width-6, 30), 80)).Render(body)
}

func (s *narrationScreen) ShortHelp() []key.Binding {
	return []key.Binding{
		withHelp(keys.Play, s.playLabel()),
		withHelp(keys.Continue, s.continueLabel()),
		keys.Quit,
	}
}

func (s *narrationScreen) Close() { s.seq.Close() }
