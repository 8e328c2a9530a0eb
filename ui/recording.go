package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"escucho/audio"
	"escucho/beep"
	"escucho/log"
	"escucho/quiz"
	"escucho/recording"
)

const instructionsText = `Cómo grabar tus respuestas
  1. Elige una pregunta con ↑ y ↓ y pulsa r para grabar.
  2. Cuando veas ● REC en rojo, comienza a hablar para grabar tu respuesta.
  3. Pulsa r otra vez cuando hayas terminado.
  4. Si la grabación fue exitosa, verás una marca ✓ junto a la pregunta.

Cómo escuchar tus grabaciones
  Después de grabar una respuesta, pulsa p para escuchar tu grabación.

Permisos del micrófono
  Esta actividad requiere acceso a tu micrófono. Si el sistema solicita
  permiso, debes permitirlo para poder grabar tus respuestas.

Navegación con teclado
  Usa ↑ y ↓ para moverte entre las preguntas.
  Puedes cerrar esta ventana con la tecla Escape.`

// recordingScreen is the speaking activity: one recorded answer per question.
type recordingScreen struct {
	session   *recording.Session
	questions []quiz.Question
	cursor    int

	status   recording.Status
	recs     recording.RecordingMap
	level    float64
	elapsed  time.Duration
	noVoice  bool
	notice   string
	micErr   bool
	showInfo bool
}

func newRecordingScreen(deps Deps, bridge *Bridge) *recordingScreen {
	qs := quiz.RecordingQuestions()
	opts := []recording.Option{
		recording.WithDevice(deps.Device),
		recording.WithEvents(func(ev any) { bridge.Post(recordingEventMsg{ev}) }),
	}
	if deps.Transcriber != nil {
		opts = append(opts, recording.WithTranscriber(deps.Transcriber))
	}
	return &recordingScreen{
		session:   recording.NewSession(deps.Audio, deps.Player, quiz.IDs(qs), opts...),
		questions: qs,
		recs:      recording.RecordingMap{},
	}
}

func (s *recordingScreen) Init() tea.Cmd { return nil }

func (s *recordingScreen) current() int { return s.questions[s.cursor].ID }

func (s *recordingScreen) refresh() {
	s.status = s.session.Status()
	s.recs = s.session.Recordings()
}

func (s *recordingScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case recordingEventMsg:
		s.handleEvent(msg.ev)
	case tea.KeyMsg:
		return s.handleKey(msg)
	}
	return s, nil
}

func (s *recordingScreen) handleEvent(ev any) {
	switch ev := ev.(type) {
	case recording.LevelEvent:
		s.level = s.level*0.6 + ev.RMS*0.4
	case recording.TickEvent:
		s.elapsed = ev.Elapsed
	case recording.NoVoiceEvent:
		s.noVoice = true
	case recording.VoiceResumedEvent:
		s.noVoice = false
	case recording.AutoStoppedEvent:
		beep.PlayEnd()
		s.noVoice = false
		s.notice = fmt.Sprintf("La grabación %d se detuvo porque no se oía ninguna voz.", ev.Clip.QuestionID)
	case recording.PlaybackEndedEvent:
		if ev.Err != nil {
			s.notice = "No se pudo reproducir la grabación."
		}
	}
	s.refresh()
}

func (s *recordingScreen) handleKey(msg tea.KeyMsg) (screen, tea.Cmd) {
	if s.micErr {
		if key.Matches(msg, keys.Continue, keys.Close) {
			s.micErr = false
		}
		return s, nil
	}
	if s.showInfo {
		if key.Matches(msg, keys.Close, keys.Continue, keys.Info) {
			s.showInfo = false
		}
		return s, nil
	}

	switch {
	case key.Matches(msg, keys.Up):
		s.cursor = max(s.cursor-1, 0)
	case key.Matches(msg, keys.Down):
		s.cursor = min(s.cursor+1, len(s.questions)-1)
	case key.Matches(msg, keys.Info):
		s.showInfo = true
	case key.Matches(msg, keys.Record):
		s.toggleRecord()
	case key.Matches(msg, keys.Listen):
		s.listen()
	case key.Matches(msg, keys.Continue):
		if s.session.Status().Kind == recording.Recording {
			s.stop()
		}
		return s, emit(recordingDoneMsg{recs: s.session.Recordings()})
	case key.Matches(msg, keys.Quit):
		return s, emit(quitMsg{})
	}
	return s, nil
}

func (s *recordingScreen) toggleRecord() {
	st := s.session.Status()
	if st.Kind == recording.Recording {
		// Only the question being recorded can be stopped.
		if st.QuestionID == s.current() {
			s.stop()
		}
		return
	}

	s.notice = ""
	err := s.session.StartRecording(s.current())
	switch {
	case err == nil:
		beep.PlayStart()
		s.level, s.elapsed, s.noVoice = 0, 0, false
	case errors.Is(err, audio.ErrPermissionDenied), errors.Is(err, audio.ErrDeviceUnavailable):
		beep.PlayError()
		s.micErr = true
	default:
		log.Warnf("start recording: %v", err)
	}
	s.refresh()
}

func (s *recordingScreen) stop() {
	if _, err := s.session.StopRecording(); err != nil {
		log.Errorf("stop recording: %v", err)
		s.notice = "No se pudo guardar la grabación."
	} else {
		beep.PlayEnd()
	}
	s.noVoice = false
	s.refresh()
}

func (s *recordingScreen) listen() {
	if s.session.Status().Kind == recording.Recording {
		return
	}
	if err := s.session.PlayRecording(s.current()); err != nil && !errors.Is(err, recording.ErrNoRecording) {
		log.Warnf("play recording: %v", err)
	}
	s.refresh()
}

func (s *recordingScreen) continueLabel() string {
	if s.session.AllRecorded() {
		return "Continuar"
	}
	return "Saltar actividad"
}

func (s *recordingScreen) View(width int) string {
	if s.micErr {
		return modal(width, recStyle, "Micrófono", micErrorText, "", button("enter", "Aceptar", primaryButtonStyle))
	}
	if s.showInfo {
		return modal(width, titleStyle, "Instrucciones de accesibilidad", instructionsText, "",
			button("esc", "Entendido", primaryButtonStyle))
	}

	var b strings.Builder
	b.WriteString(headingStyle.Render("Graba las respuestas a estas preguntas"))
	b.WriteString("\n")
	for i, q := range s.questions {
		line := fmt.Sprintf("%d. %s", q.ID, q.Text)
		if i == s.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "  " + s.marker(q.ID) + "\n")
	}
	b.WriteString("\n")

	if s.status.Kind == recording.Recording {
		b.WriteString(recStyle.Render(fmt.Sprintf("● REC %.1fs", s.elapsed.Seconds())))
		b.WriteString("  " + levelMeter(s.level, 20) + "\n")
		if s.noVoice {
			b.WriteString(warnStyle.Render("⚠ No se oye ninguna voz. Habla más cerca del micrófono.") + "\n")
		}
	} else if s.notice != "" {
		b.WriteString(warnStyle.Render(s.notice) + "\n")
	}
	b.WriteString("\n" + button("enter", s.continueLabel(), buttonStyle))
	return cardStyle.Width(min(max(width-6, 30), 80)).Render(b.String())
}

func (s *recordingScreen) marker(id int) string {
	switch {
	case s.status.IsRecording(id):
		return recStyle.Render("■ grabando")
	case s.status.IsPlaying(id):
		return accentStyle.Render("▶ reproduciendo")
	case s.recs.Has(id):
		return okStyle.Render("✓")
	default:
		return dimStyle.Render("🎤")
	}
}

func (s *recordingScreen) ShortHelp() []key.Binding {
	if s.micErr || s.showInfo {
		return []key.Binding{keys.Close}
	}
	record := withHelp(keys.Record, "grabar")
	if s.status.IsRecording(s.current()) {
		record = withHelp(keys.Record, "detener")
	} else if s.recs.Has(s.current()) {
		record = withHelp(keys.Record, "volver a grabar")
	}
	bindings := []key.Binding{keys.Up, keys.Down, record}
	if s.recs.Has(s.current()) && s.status.Kind != recording.Recording {
		bindings = append(bindings, keys.Listen)
	}
	return append(bindings, keys.Info, withHelp(keys.Continue, s.continueLabel()), keys.Quit)
}

func (s *recordingScreen) Close() { s.session.Close() }
