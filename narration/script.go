package narration

import "strings"

type Prosody int

const (
	ProsodyNarration Prosody = iota
	ProsodyQuestion
	ProsodyAnswer
)

func (p Prosody) String() string {
	switch p {
	case ProsodyQuestion:
		return "question"
	case ProsodyAnswer:
		return "answer"
	default:
		return "narration"
	}
}

// Pitch is the synthesis pitch multiplier for the tag.
func (p Prosody) Pitch() float64 {
	switch p {
	case ProsodyQuestion:
		return 1.2
	case ProsodyAnswer:
		return 1.1
	default:
		return 1.0
	}
}

type Utterance struct {
	Text    string
	Prosody Prosody
}

// Speaker splits a dialogue line at its first colon. ok is false for plain
// narration.
func (u Utterance) Speaker() (speaker, line string, ok bool) {
	if u.Prosody == ProsodyNarration {
		return "", u.Text, false
	}
	speaker, line, ok = strings.Cut(u.Text, ":")
	if !ok {
		return "", u.Text, false
	}
	return strings.TrimSpace(speaker), strings.TrimSpace(line), true
}

func (u Utterance) Empty() bool { return strings.TrimSpace(u.Text) == "" }

type Script []Utterance

// ProsodyFor tags a line by its dialogue verb: "pregunta:" marks a question,
// "contesta:" an answer.
func ProsodyFor(line string) Prosody {
	switch {
	case strings.Contains(line, "pregunta:"):
		return ProsodyQuestion
	case strings.Contains(line, "contesta:"):
		return ProsodyAnswer
	default:
		return ProsodyNarration
	}
}

func ParseScript(lines []string) Script {
	s := make(Script, len(lines))
	for i, l := range lines {
		s[i] = Utterance{Text: l, Prosody: ProsodyFor(l)}
	}
	return s
}

// Spoken counts utterances that will produce audio.
func (s Script) Spoken() int {
	n := 0
	for _, u := range s {
		if !u.Empty() {
			n++
		}
	}
	return n
}

var storyLines = []string{
	"Mowgli era un niño pequeño que vivía en una selva verde, con árboles muy altos.",
	"Mowgli no era un niño común.",
	"Una familia de lobos cuidó de Mowgli desde que era un bebé.",
	"Todo comenzó cuando Papá Lobo encontró al pequeño Mowgli cerca de un río.",
	"Mowgli estaba solo.",
	"El bebé sonrió al ver al lobo.",
	"Papá Lobo decidió llevarlo a su cueva.",
	"Allí Mamá Loba cuidaba de sus propios cachorros.",
	"Mamá Loba pregunta: ¿Qué traes ahí papá Lobo?",
	"Papá Lobo contesta: Es un cachorro humano. Estaba solo y desprotegido.",
}

// StoryScript is chapter one of El libro de la selva.
func StoryScript() Script {
	return ParseScript(storyLines)
}
