package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewQuestionsDisplayOrder(t *testing.T) {
	qs := ReviewQuestions()
	require.Len(t, qs, 4)
	for _, q := range qs {
		require.Len(t, q.Options, 4)
		got := []Choice{q.Options[0].Choice, q.Options[1].Choice, q.Options[2].Choice, q.Options[3].Choice}
		assert.Equal(t, []Choice{Option1, Option3, Option2, Option4}, got, "question %d", q.ID)
		assert.Equal(t, UnsureLabel, q.Label(Unsure))
	}
	assert.Equal(t, "Mowgli", qs[1].Label(Option2))
	assert.Equal(t, "Al lado del río", qs[2].Label(Option3))
	assert.Empty(t, qs[0].Label(Unset))
}

func TestBanksShareQuestionText(t *testing.T) {
	rec := RecordingQuestions()
	rev := ReviewQuestions()
	require.Len(t, rec, len(rev))
	for i := range rec {
		assert.Equal(t, rev[i].ID, rec[i].ID)
		assert.Equal(t, rev[i].Text, rec[i].Text)
		assert.Empty(t, rec[i].Options)
	}
	assert.Equal(t, []int{1, 2}, IDs(ReviewPart1()))
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		in      string
		want    Choice
		wantErr bool
	}{
		{"option1", Option1, false},
		{"4", Unsure, false},
		{" OPTION3 ", Option3, false},
		{"0", Unset, true},
		{"5", Unset, true},
		{"", Unset, true},
		{"maybe", Unset, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChoice(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChoice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
