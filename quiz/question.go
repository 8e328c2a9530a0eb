// Package quiz holds the question banks and the answer ledger of the review
// activity.
package quiz

import (
	"fmt"
	"strconv"
	"strings"
)

// Choice is one of the four options of a review question. The zero value
// means no answer yet.
type Choice string

const (
	Unset   Choice = ""
	Option1 Choice = "option1"
	Option2 Choice = "option2"
	Option3 Choice = "option3"
	Option4 Choice = "option4"

	// Unsure is the "No lo sé" option.
	Unsure = Option4
)

const UnsureLabel = "No lo sé"

func (c Choice) Valid() bool {
	switch c {
	case Option1, Option2, Option3, Option4:
		return true
	}
	return false
}

func (c Choice) String() string {
	if c == Unset {
		return "-"
	}
	return string(c)
}

// ParseChoice accepts "option1".."option4" or the bare digits "1".."4".
func ParseChoice(s string) (Choice, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		s = "option" + strconv.Itoa(n)
	}
	c := Choice(s)
	if !c.Valid() {
		return Unset, fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
	return c, nil
}

type Option struct {
	Choice Choice
	Label  string
}

type Question struct {
	ID      int
	Text    string
	Options []Option
}

// Label returns the display text of c, or "" if the question has no such
// option.
func (q Question) Label(c Choice) string {
	for _, o := range q.Options {
		if o.Choice == c {
			return o.Label
		}
	}
	return ""
}

// IDs returns the ids of qs in order.
func IDs(qs []Question) []int {
	ids := make([]int, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

var recordingTexts = []string{
	"¿Dónde ocurre el cuento?",
	"¿Cómo se llama el niño del cuento?",
	"¿Dónde encontró Papá Lobo a Mowgli?",
	"¿Dónde estaba Mamá Loba?",
}

// RecordingQuestions are the open questions answered aloud.
func RecordingQuestions() []Question {
	qs := make([]Question, len(recordingTexts))
	for i, text := range recordingTexts {
		qs[i] = Question{ID: i + 1, Text: text}
	}
	return qs
}

// options lists labels for option1, option3 and option2, the order they are
// shown in. "No lo sé" is appended last.
func options(first, third, second string) []Option {
	return []Option{
		{Option1, first},
		{Option3, third},
		{Option2, second},
		{Option4, UnsureLabel},
	}
}

// ReviewQuestions are the multiple-choice questions of the review screen.
func ReviewQuestions() []Question {
	return []Question{
		{ID: 1, Text: recordingTexts[0], Options: options("En el campo", "En el río", "En la selva")},
		{ID: 2, Text: recordingTexts[1], Options: options("Monti", "Moni", "Mowgli")},
		{ID: 3, Text: recordingTexts[2], Options: options("En la selva", "Al lado del río", "En el río")},
		{ID: 4, Text: recordingTexts[3], Options: options("Con sus cachorros", "En la cueva con sus cachorros", "En la cueva")},
	}
}

// ReviewPart1 is the two-question variant of the review screen.
func ReviewPart1() []Question {
	return ReviewQuestions()[:2]
}
