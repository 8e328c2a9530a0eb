package narration

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escucho/speech"
)

func waitIdle(t *testing.T, s *Sequencer) {
	t.Helper()
	done := make(chan struct{})
	go func() { s.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sequence did not finish")
	}
}

func TestPlaySkipsEmptyAndPauses(t *testing.T) {
	f := speech.NewFake(20 * time.Millisecond)
	s := New(speech.NewVoice(f), ParseScript([]string{"Hello.", "", "World."}))

	s.Play()
	waitIdle(t, s)

	spoken := f.Spoken()
	require.Len(t, spoken, 2)
	assert.Equal(t, "Hello.", spoken[0].Text)
	assert.Equal(t, "World.", spoken[1].Text)
	assert.GreaterOrEqual(t, spoken[1].Start.Sub(spoken[0].End), DefaultPause)

	assert.False(t, s.State().IsPlaying)
	assert.Equal(t, -1, s.State().CurrentIndex)
	assert.True(t, s.HasPlayed())
}

func TestPlayRequestParameters(t *testing.T) {
	f := speech.NewFake(time.Millisecond)
	s := New(speech.NewVoice(f), StoryScript(), WithPause(time.Millisecond))

	s.Play()
	waitIdle(t, s)

	spoken := f.Spoken()
	require.Len(t, spoken, 10)
	for i, sp := range spoken {
		assert.Equal(t, Lang, sp.Lang)
		assert.Equal(t, Rate, sp.Rate)
		want := 1.0
		switch i {
		case 8:
			want = 1.2
		case 9:
			want = 1.1
		}
		assert.Equal(t, want, sp.Pitch, "utterance %d", i)
	}
	for i := 1; i < len(spoken); i++ {
		assert.False(t, spoken[i].Start.Before(spoken[i-1].End), "utterance %d overlapped", i)
	}
}

func TestWhitespaceOnlyIsSkipped(t *testing.T) {
	f := speech.NewFake(time.Millisecond)
	s := New(speech.NewVoice(f), ParseScript([]string{"  ", "\t", "Uno."}), WithPause(time.Millisecond))

	s.Play()
	waitIdle(t, s)
	assert.Equal(t, []string{"Uno."}, f.Texts())
}

func TestStopIssuesNoFurtherRequests(t *testing.T) {
	f := speech.NewFake(time.Second)
	s := New(speech.NewVoice(f), StoryScript())

	s.Play()
	<-f.Started()
	s.Stop()

	assert.False(t, s.State().IsPlaying)
	waitIdle(t, s)
	time.Sleep(50 * time.Millisecond)

	spoken := f.Spoken()
	require.Len(t, spoken, 1)
	assert.True(t, spoken[0].Cancelled)
	assert.False(t, s.HasPlayed())
}

func TestStopDuringPause(t *testing.T) {
	f := speech.NewFake(time.Millisecond)
	s := New(speech.NewVoice(f), StoryScript(), WithPause(time.Second))

	s.Play()
	<-f.Started()
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	waitIdle(t, s)

	assert.Len(t, f.Spoken(), 1)
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	var calls int
	s := New(speech.NewVoice(speech.NewFake(time.Millisecond)), StoryScript(),
		WithOnChange(func(PlaybackState, bool) { calls++ }))

	s.Stop()
	s.Stop()
	assert.Zero(t, calls)
	assert.False(t, s.State().IsPlaying)
}

func TestPlayWhilePlayingRestarts(t *testing.T) {
	f := speech.NewFake(200 * time.Millisecond)
	s := New(speech.NewVoice(f), ParseScript([]string{"uno", "dos"}), WithPause(time.Millisecond))

	s.Play()
	<-f.Started()
	s.Play()
	waitIdle(t, s)

	assert.Equal(t, []string{"uno", "uno", "dos"}, f.Texts())
	assert.False(t, f.Overlapped())
	spoken := f.Spoken()
	assert.True(t, spoken[0].Cancelled)
	assert.False(t, spoken[1].Start.Before(spoken[0].End))
	assert.True(t, s.HasPlayed())
}

func TestRapidPlayLastCallerWins(t *testing.T) {
	f := speech.NewFake(5 * time.Millisecond)
	s := New(speech.NewVoice(f), ParseScript([]string{"a", "b", "c"}), WithPause(time.Millisecond))

	for i := 0; i < 10; i++ {
		s.Play()
	}
	waitIdle(t, s)

	texts := f.Texts()
	require.GreaterOrEqual(t, len(texts), 3)
	assert.Equal(t, []string{"a", "b", "c"}, texts[len(texts)-3:])
	assert.False(t, f.Overlapped())
}

func TestSynthesisErrorEndsSequence(t *testing.T) {
	boom := errors.New("audio-busy")
	f := speech.NewFake(time.Millisecond)
	f.FailOn, f.Err = "dos", boom
	s := New(speech.NewVoice(f), ParseScript([]string{"uno", "dos", "tres"}), WithPause(time.Millisecond))

	s.Play()
	waitIdle(t, s)

	assert.Equal(t, []string{"uno", "dos"}, f.Texts())
	assert.False(t, s.State().IsPlaying)
	assert.False(t, s.HasPlayed())
	assert.ErrorIs(t, s.Err(), boom)
}

func TestSkipMarksPlayed(t *testing.T) {
	f := speech.NewFake(time.Second)
	s := New(speech.NewVoice(f), StoryScript())

	s.Play()
	<-f.Started()
	s.Skip()

	assert.True(t, s.HasPlayed())
	assert.False(t, s.State().IsPlaying)
	waitIdle(t, s)
	assert.Len(t, f.Spoken(), 1)
}

func TestHasPlayedIsSticky(t *testing.T) {
	f := speech.NewFake(time.Millisecond)
	s := New(speech.NewVoice(f), ParseScript([]string{"uno"}), WithPause(time.Millisecond))

	s.Play()
	waitIdle(t, s)
	require.True(t, s.HasPlayed())

	s.Play()
	s.Stop()
	assert.True(t, s.HasPlayed())
}

func TestCloseCancelsSharedVoice(t *testing.T) {
	f := speech.NewFake(time.Second)
	v := speech.NewVoice(f)

	// Another owner is speaking; closing an idle sequencer still silences it.
	other := v.Claim()
	errc := make(chan error, 1)
	go func() { errc <- other.Speak(t.Context(), speech.Request{Text: "otro"}) }()
	<-f.Started()

	s := New(v, StoryScript())
	s.Close()

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not cancel shared voice")
	}

	s.Play()
	assert.False(t, s.State().IsPlaying, "Play after Close must be ignored")
}

func TestAnotherOwnerStopsSequence(t *testing.T) {
	f := speech.NewFake(time.Second)
	v := speech.NewVoice(f)
	a := New(v, StoryScript(), WithName("a"))
	b := New(v, ParseScript([]string{"b"}), WithPause(time.Millisecond), WithName("b"))

	a.Play()
	<-f.Started()
	b.Play()

	waitIdle(t, a)
	assert.False(t, a.State().IsPlaying)
	waitIdle(t, b)
	assert.True(t, b.HasPlayed())
	assert.False(t, f.Overlapped())
}

func TestOnChangeReportsIndexes(t *testing.T) {
	var (
		mu      sync.Mutex
		indexes []int
	)
	f := speech.NewFake(time.Millisecond)
	s := New(speech.NewVoice(f), ParseScript([]string{"a", "", "c"}), WithPause(time.Millisecond),
		WithOnChange(func(st PlaybackState, _ bool) {
			mu.Lock()
			indexes = append(indexes, st.CurrentIndex)
			mu.Unlock()
		}))

	s.Play()
	waitIdle(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{-1, 0, 2, -1}, indexes)
}
