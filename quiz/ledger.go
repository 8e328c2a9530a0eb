package quiz

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownQuestion = errors.New("unknown question")
	ErrInvalidChoice   = errors.New("invalid choice")
)

type Tier string

const (
	TierSuccess Tier = "success"
	TierWarning Tier = "warning"
	TierAlert   Tier = "alert"
)

func (t Tier) Title() string {
	if t == TierSuccess {
		return "¡Enhorabuena!"
	}
	return "¡Atención!"
}

func (t Tier) Message() string {
	switch t {
	case TierSuccess:
		return "Has respondido bien a todo. ¡Enhorabuena! Si quieres puedes volver a escuchar el cuento."
	case TierWarning:
		return `Has respondido "No lo sé" a una pregunta. Si quieres puedes volver a escuchar el cuento.`
	default:
		return `Has respondido "No lo sé" a varias preguntas. Te recomendamos volver a escuchar el cuento para comprender mejor la historia.`
	}
}

// TierFor maps an unsure count to its feedback tier.
func TierFor(unsure int) Tier {
	switch {
	case unsure <= 0:
		return TierSuccess
	case unsure == 1:
		return TierWarning
	default:
		return TierAlert
	}
}

type LedgerOption func(*Ledger)

// WithUnsetAsUnsure counts unanswered questions as "No lo sé" when computing
// feedback.
func WithUnsetAsUnsure() LedgerOption {
	return func(l *Ledger) { l.unsetIsUnsure = true }
}

// Ledger records one choice per question. It is not safe for concurrent use.
type Ledger struct {
	ids           []int
	answers       map[int]Choice
	unsetIsUnsure bool
}

func NewLedger(ids []int, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		ids:     append([]int(nil), ids...),
		answers: make(map[int]Choice, len(ids)),
	}
	for _, id := range ids {
		l.answers[id] = Unset
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) IDs() []int { return append([]int(nil), l.ids...) }

// SetAnswer records choice for id, replacing any earlier one.
func (l *Ledger) SetAnswer(id int, choice Choice) error {
	if _, ok := l.answers[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, id)
	}
	if !choice.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChoice, string(choice))
	}
	l.answers[id] = choice
	return nil
}

func (l *Ledger) Answer(id int) Choice { return l.answers[id] }

// IsComplete reports whether every question has a choice.
func (l *Ledger) IsComplete() bool {
	for _, c := range l.answers {
		if c == Unset {
			return false
		}
	}
	return true
}

func (l *Ledger) UnsureCount() int {
	n := 0
	for _, c := range l.answers {
		if c == Unsure || (l.unsetIsUnsure && c == Unset) {
			n++
		}
	}
	return n
}

// ComputeFeedback derives the tier from the current answers on every call.
func (l *Ledger) ComputeFeedback() Tier {
	return TierFor(l.UnsureCount())
}

// Answers lists the choices in question order.
func (l *Ledger) Answers() []string {
	out := make([]string, len(l.ids))
	for i, id := range l.ids {
		out[i] = l.answers[id].String()
	}
	return out
}

func (l *Ledger) Reset() {
	for id := range l.answers {
		l.answers[id] = Unset
	}
}
