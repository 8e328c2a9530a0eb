package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"escucho/log"
	"escucho/quiz"
	"escucho/recording"
)

type reviewModal int

const (
	modalNone reviewModal = iota
	modalFeedback
	modalWarning // two-question variant, shown only for repeated "No lo sé"
)

// reviewScreen is the multiple-choice check. Each question can replay the
// answer recorded for it on the previous screen.
type reviewScreen struct {
	questions []quiz.Question
	ledger    *quiz.Ledger
	session   *recording.Session
	short     bool
	cursor    int

	status recording.Status
	recs   recording.RecordingMap
	modal  reviewModal
	tier   quiz.Tier
	notice string
}

func newReviewScreen(deps Deps, bridge *Bridge, recs recording.RecordingMap) *reviewScreen {
	qs := quiz.ReviewQuestions()
	var lopts []quiz.LedgerOption
	if deps.ShortReview {
		qs = quiz.ReviewPart1()
		lopts = append(lopts, quiz.WithUnsetAsUnsure())
	}
	session := recording.NewSession(deps.Audio, deps.Player, quiz.IDs(quiz.RecordingQuestions()),
		recording.WithRecordings(recs),
		recording.WithEvents(func(ev any) { bridge.Post(recordingEventMsg{ev}) }),
	)
	return &reviewScreen{
		questions: qs,
		ledger:    quiz.NewLedger(quiz.IDs(qs), lopts...),
		session:   session,
		short:     deps.ShortReview,
		recs:      session.Recordings(),
	}
}

func (s *reviewScreen) Init() tea.Cmd { return nil }

func (s *reviewScreen) question() quiz.Question { return s.questions[s.cursor] }

func (s *reviewScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case recordingEventMsg:
		if ev, ok := msg.ev.(recording.PlaybackEndedEvent); ok && ev.Err != nil {
			s.notice = "No se pudo reproducir la grabación."
		}
		s.status = s.session.Status()
	case tea.KeyMsg:
		if s.modal != modalNone {
			return s.handleModalKey(msg)
		}
		return s.handleKey(msg)
	}
	return s, nil
}

func (s *reviewScreen) handleKey(msg tea.KeyMsg) (screen, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		s.cursor = max(s.cursor-1, 0)
	case key.Matches(msg, keys.Down):
		s.cursor = min(s.cursor+1, len(s.questions)-1)
	case key.Matches(msg, keys.Left):
		s.cycle(-1)
	case key.Matches(msg, keys.Right):
		s.cycle(1)
	case key.Matches(msg, keys.Choose):
		n := int(msg.String()[0] - '0')
		opts := s.question().Options
		if n >= 1 && n <= len(opts) {
			s.choose(opts[n-1].Choice)
		}
	case key.Matches(msg, keys.Listen):
		s.notice = ""
		err := s.session.PlayRecording(s.question().ID)
		if err != nil && !errors.Is(err, recording.ErrNoRecording) {
			log.Warnf("review playback: %v", err)
		}
		s.status = s.session.Status()
	case key.Matches(msg, keys.Continue):
		return s.submit()
	case key.Matches(msg, keys.Quit):
		return s, emit(quitMsg{})
	}
	return s, nil
}

func (s *reviewScreen) cycle(dir int) {
	q := s.question()
	cur := s.ledger.Answer(q.ID)
	idx := -1
	for i, o := range q.Options {
		if o.Choice == cur {
			idx = i
		}
	}
	switch {
	case idx < 0 && dir > 0:
		idx = 0
	case idx < 0:
		idx = len(q.Options) - 1
	default:
		idx = (idx + dir + len(q.Options)) % len(q.Options)
	}
	s.choose(q.Options[idx].Choice)
}

func (s *reviewScreen) choose(c quiz.Choice) {
	if err := s.ledger.SetAnswer(s.question().ID, c); err != nil {
		log.Warnf("review answer: %v", err)
	}
	s.notice = ""
}

func (s *reviewScreen) submit() (screen, tea.Cmd) {
	if !s.ledger.IsComplete() {
		s.notice = "Responde a todas las preguntas."
		return s, nil
	}
	s.session.StopPlayback()
	s.status = s.session.Status()
	s.tier = s.ledger.ComputeFeedback()
	log.Feedback(string(s.tier), s.ledger.UnsureCount())

	if s.short {
		if s.ledger.UnsureCount() >= 2 {
			s.modal = modalWarning
			return s, nil
		}
		return s, s.acknowledge()
	}
	s.modal = modalFeedback
	return s, nil
}

func (s *reviewScreen) acknowledge() tea.Cmd {
	log.SessionResult(string(s.tier), s.ledger.Answers(), s.recs.IDs())
	return emit(feedbackAckMsg{tier: s.tier})
}

func (s *reviewScreen) handleModalKey(msg tea.KeyMsg) (screen, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Continue):
		s.modal = modalNone
		return s, s.acknowledge()
	case key.Matches(msg, keys.Restart):
		s.modal = modalNone
		return s, emit(restartMsg{})
	case key.Matches(msg, keys.Quit):
		return s, emit(quitMsg{})
	}
	return s, nil
}

func (s *reviewScreen) continueLabel() string {
	if s.ledger.IsComplete() {
		return "Continuar"
	}
	return "Responde a todas las preguntas"
}

func (s *reviewScreen) View(width int) string {
	switch s.modal {
	case modalFeedback:
		title := warnStyle.Bold(true)
		if s.tier == quiz.TierSuccess {
			title = okStyle.Bold(true)
		}
		return modal(width, title, s.tier.Title(), s.tier.Message(), "",
			button("v", "Volver a escuchar", primaryButtonStyle)+"   "+button("enter", "Continuar", buttonStyle))
	case modalWarning:
		return modal(width, warnStyle.Bold(true), quiz.TierAlert.Title(), quiz.TierAlert.Message(), "",
			button("enter", "Continuar de todos modos", buttonStyle)+"   "+button("v", "Volver a escuchar", primaryButtonStyle))
	}

	var b strings.Builder
	b.WriteString(headingStyle.Render("Comprueba tus respuestas"))
	b.WriteString("\n")
	for i, q := range s.questions {
		b.WriteString(s.renderQuestion(q, i == s.cursor))
		b.WriteString("\n")
	}
	if s.notice != "" {
		b.WriteString(warnStyle.Render(s.notice) + "\n")
	}
	style := buttonStyle
	if s.ledger.IsComplete() {
		style = primaryButtonStyle
	}
	b.WriteString("\n" + button("enter", s.continueLabel(), style))
	return cardStyle.Width(min(max(width-6, 30), 84)).Render(b.String())
}

func (s *reviewScreen) renderQuestion(q quiz.Question, selected bool) string {
	var b strings.Builder
	title := fmt.Sprintf("%d %s", q.ID, q.Text)
	if selected {
		title = selectedStyle.Render(title)
	}
	b.WriteString(title)
	switch {
	case s.status.IsPlaying(q.ID):
		b.WriteString("  " + accentStyle.Render("▶ reproduciendo"))
	case s.recs.Has(q.ID):
		b.WriteString("  " + dimStyle.Render("▶ tu respuesta"))
	}
	b.WriteString("\n")
	if clip, ok := s.recs[q.ID]; ok && clip.Transcript != "" {
		b.WriteString(dimStyle.Render("   Dijiste: «"+clip.Transcript+"»") + "\n")
	}

	answer := s.ledger.Answer(q.ID)
	opts := make([]string, len(q.Options))
	for i, o := range q.Options {
		mark := "( )"
		if o.Choice == answer {
			mark = accentStyle.Render("(•)")
		}
		opts[i] = fmt.Sprintf("%s %d %s", mark, i+1, o.Label)
	}
	b.WriteString("   " + strings.Join(opts, "   ") + "\n")
	return b.String()
}

func (s *reviewScreen) ShortHelp() []key.Binding {
	switch s.modal {
	case modalFeedback:
		return []key.Binding{keys.Restart, withHelp(keys.Continue, "continuar")}
	case modalWarning:
		return []key.Binding{withHelp(keys.Continue, "continuar de todos modos"), keys.Restart}
	}
	bindings := []key.Binding{keys.Up, keys.Down, keys.Left, keys.Right, keys.Choose}
	if s.recs.Has(s.question().ID) {
		bindings = append(bindings, keys.Listen)
	}
	return append(bindings, withHelp(keys.Continue, s.continueLabel()), keys.Quit)
}

func (s *reviewScreen) Close() { s.session.Close() }
