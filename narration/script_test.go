package narration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProsodyFor(t *testing.T) {
	tests := []struct {
		line string
		want Prosody
	}{
		{"Mamá Loba pregunta: ¿Qué traes ahí papá Lobo?", ProsodyQuestion},
		{"Papá Lobo contesta: Es un cachorro humano.", ProsodyAnswer},
		{"Mowgli estaba solo.", ProsodyNarration},
		{"pregunta sin dos puntos", ProsodyNarration},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ProsodyFor(tt.line))
		})
	}
}

func TestPitch(t *testing.T) {
	assert.Equal(t, 1.0, ProsodyNarration.Pitch())
	assert.Equal(t, 1.2, ProsodyQuestion.Pitch())
	assert.Equal(t, 1.1, ProsodyAnswer.Pitch())
}

func TestStoryScript(t *testing.T) {
	s := StoryScript()
	assert.Len(t, s, 10)
	assert.Equal(t, 10, s.Spoken())
	assert.Equal(t, ProsodyQuestion, s[8].Prosody)
	assert.Equal(t, ProsodyAnswer, s[9].Prosody)
}

func TestSpeaker(t *testing.T) {
	speaker, line, ok := StoryScript()[8].Speaker()
	assert.True(t, ok)
	assert.Equal(t, "Mamá Loba pregunta", speaker)
	assert.Equal(t, "¿Qué traes ahí papá Lobo?", line)

	_, line, ok = StoryScript()[0].Speaker()
	assert.False(t, ok)
	assert.Contains(t, line, "Mowgli")
}
