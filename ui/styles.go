package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	lessonTitle    = "Lección 1. Escucho y hablo"
	lessonSubtitle = "El libro de la selva: Capítulo 1"
	micErrorText   = "No se pudo acceder al micrófono. Por favor, verifica los permisos."
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headingStyle  = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	accentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("25"))
	speakerStyle  = lipgloss.NewStyle().Bold(true)
	dialogStyle   = lipgloss.NewStyle().Italic(true)
	currentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(1, 3)

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("240")).
			Padding(0, 2)

	primaryButtonStyle = buttonStyle.Background(lipgloss.Color("25"))
	dangerButtonStyle  = buttonStyle.Background(lipgloss.Color("160"))
)

func header() string {
	return titleStyle.Render(lessonTitle) + "\n" + subtitleStyle.Render(lessonSubtitle)
}

// button renders a labeled action with its key hint.
func button(keyHint, label string, style lipgloss.Style) string {
	return style.Render(label) + dimStyle.Render(" ["+keyHint+"]")
}

func modal(width int, title lipgloss.Style, heading string, body ...string) string {
	w := min(max(width-8, 30), 72)
	content := title.Render(heading) + "\n\n" + strings.Join(body, "\n")
	return modalStyle.Width(w).Render(content)
}

// soundWave draws the animated playback indicator.
func soundWave(frame int) string {
	bars := []string{"▁", "▃", "▅", "▇", "▅", "▃"}
	var b strings.Builder
	for i := 0; i < 4; i++ {
		b.WriteString(accentStyle.Render(bars[(frame+i*2)%len(bars)]))
	}
	return b.String()
}

// levelMeter renders rms (0..1) as a bar of width cells.
func levelMeter(rms float64, width int) string {
	n := int(rms * 10 * float64(width))
	n = min(max(n, 0), width)
	return recStyle.Render(strings.Repeat("█", n)) + dimStyle.Render(strings.Repeat("░", width-n))
}

func progress(n, total int) string {
	return strings.Repeat("●", n) + strings.Repeat("·", max(total-n, 0))
}
