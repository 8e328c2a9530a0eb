package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escucho/quiz"
	"escucho/recording"
)

func TestHappyPath(t *testing.T) {
	c := New()
	var entered []Step
	c.OnEnter(func(s Step) { entered = append(entered, s) })

	assert.Equal(t, Narration, c.Step())
	require.NoError(t, c.CompleteNarration())
	require.NoError(t, c.CompleteRecording(recording.RecordingMap{
		1: {QuestionID: 1, Locator: "clip://a"},
		3: {QuestionID: 3, Locator: "clip://c"},
	}))
	assert.Equal(t, []int{1, 3}, c.Recordings().IDs())

	require.NoError(t, c.AcknowledgeFeedback(quiz.TierAlert))
	assert.Equal(t, quiz.TierAlert, c.LastTier())
	require.NoError(t, c.CompleteTranscription())

	assert.Equal(t, Done, c.Step())
	assert.Equal(t, []Step{Recording, Review, Transcription, Done}, entered)
}

func TestSkipRecordingCarriesEmptyMap(t *testing.T) {
	c := New()
	require.NoError(t, c.CompleteNarration())
	require.NoError(t, c.CompleteRecording(nil))
	assert.Equal(t, Review, c.Step())
	assert.Empty(t, c.Recordings())
}

func TestInvalidTransitions(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.CompleteRecording(nil), ErrInvalidTransition)
	assert.ErrorIs(t, c.AcknowledgeFeedback(quiz.TierSuccess), ErrInvalidTransition)
	assert.ErrorIs(t, c.CompleteTranscription(), ErrInvalidTransition)
	assert.Equal(t, Narration, c.Step())

	require.NoError(t, c.CompleteNarration())
	assert.ErrorIs(t, c.CompleteNarration(), ErrInvalidTransition)
	assert.Equal(t, Recording, c.Step())
}

func TestRestartResetsEverything(t *testing.T) {
	c := New()
	require.NoError(t, c.CompleteNarration())
	require.NoError(t, c.CompleteRecording(recording.RecordingMap{2: {QuestionID: 2}}))

	var entered []Step
	c.OnEnter(func(s Step) { entered = append(entered, s) })
	c.Restart()

	assert.Equal(t, Narration, c.Step())
	assert.Empty(t, c.Recordings())
	assert.Equal(t, quiz.Tier(""), c.LastTier())
	assert.Equal(t, 1, c.Restarts())
	assert.Equal(t, []Step{Narration}, entered)

	require.NoError(t, c.CompleteNarration())
}

func TestRecordingsAreCopied(t *testing.T) {
	c := New()
	require.NoError(t, c.CompleteNarration())
	recs := recording.RecordingMap{1: {QuestionID: 1}}
	require.NoError(t, c.CompleteRecording(recs))

	delete(recs, 1)
	got := c.Recordings()
	assert.True(t, got.Has(1))
	delete(got, 1)
	assert.True(t, c.Recordings().Has(1))
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "transcription", Transcription.String())
	assert.Equal(t, "step(9)", Step(9).String())
}
