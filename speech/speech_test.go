package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escucho/apiclient"
	"escucho/audio"
)

func TestClaimSupersedesPreviousLease(t *testing.T) {
	f := NewFake(time.Second)
	v := NewVoice(f)

	first := v.Claim()
	errc := make(chan error, 1)
	go func() { errc <- first.Speak(context.Background(), Request{Text: "uno"}) }()
	<-f.Started()

	second := v.Claim()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("superseded utterance kept playing")
	}

	assert.ErrorIs(t, first.Speak(context.Background(), Request{Text: "dos"}), ErrNotOwner)
	assert.True(t, second.Valid())
	assert.Equal(t, second.Token(), v.Owner())
	assert.False(t, f.Overlapped())
}

func TestCancelAllSilencesOwner(t *testing.T) {
	f := NewFake(time.Second)
	v := NewVoice(f)
	l := v.Claim()

	errc := make(chan error, 1)
	go func() { errc <- l.Speak(context.Background(), Request{Text: "hola"}) }()
	<-f.Started()
	v.CancelAll()

	require.ErrorIs(t, <-errc, context.Canceled)
	assert.Zero(t, v.Owner())
	assert.ErrorIs(t, l.Speak(context.Background(), Request{Text: "otra"}), ErrNotOwner)
	select {
	case <-l.Done():
	default:
		t.Error("lease context not done after CancelAll")
	}
}

func TestReleaseOnlyAffectsOwner(t *testing.T) {
	v := NewVoice(NewFake(time.Millisecond))
	old := v.Claim()
	cur := v.Claim()

	old.Release()
	assert.True(t, cur.Valid())

	cur.Release()
	assert.False(t, cur.Valid())
	assert.Zero(t, v.Owner())
}

func TestSpeakNeverOverlapsAcrossLeases(t *testing.T) {
	f := NewFake(20 * time.Millisecond)
	v := NewVoice(f)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := v.Claim()
			_ = l.Speak(context.Background(), Request{Text: "x"})
		}()
	}
	wg.Wait()
	assert.False(t, f.Overlapped())
}

func TestFakeFailOn(t *testing.T) {
	boom := errors.New("boom")
	f := NewFake(time.Millisecond)
	f.FailOn, f.Err = "mal", boom
	l := NewVoice(f).Claim()

	assert.NoError(t, l.Speak(context.Background(), Request{Text: "bien"}))
	assert.ErrorIs(t, l.Speak(context.Background(), Request{Text: "mal"}), boom)
}

func TestEspeakArgs(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{"narration", Request{Text: "Hola.", Lang: "es-ES", Rate: 0.9, Pitch: 1.0},
			[]string{"--stdout", "-v", "es", "-s", "158", "-p", "50", "--stdin"}},
		{"question", Request{Text: "¿Qué?", Lang: "es-ES", Rate: 0.9, Pitch: 1.2},
			[]string{"--stdout", "-v", "es", "-s", "158", "-p", "60", "--stdin"}},
		{"answer", Request{Text: "Sí.", Lang: "es-MX", Rate: 1, Pitch: 1.1},
			[]string{"--stdout", "-v", "es-419", "-s", "175", "-p", "55", "--stdin"}},
		{"defaults", Request{Text: "a"},
			[]string{"--stdout", "-v", "es", "-s", "175", "-p", "50", "--stdin"}},
		{"clamped", Request{Text: "a", Pitch: 3},
			[]string{"--stdout", "-v", "es", "-s", "175", "-p", "99", "--stdin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EspeakArgs(tt.req))
		})
	}
}

func TestEspeakArgsKeepTextOffCommandLine(t *testing.T) {
	for _, text := range []string{"-q", "--version", "-w /tmp/x.wav", "Hola."} {
		args := EspeakArgs(Request{Text: text, Lang: "es-ES"})
		assert.NotContains(t, args, text)
		assert.Equal(t, "--stdin", args[len(args)-1])
	}
}

func TestInstructionsPitch(t *testing.T) {
	assert.Contains(t, Instructions(Request{Lang: "es-ES", Pitch: 1.2, Rate: 0.9}), "pregunta")
	assert.Contains(t, Instructions(Request{Lang: "es-ES", Pitch: 1.1}), "ligeramente")
	assert.NotContains(t, Instructions(Request{Lang: "es-ES", Pitch: 1.0}), "agudo")
}

func TestOpenAISpeakCachesRender(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write(make([]byte, 480)) // 240 samples = 10ms at 24 kHz
	}))
	defer srv.Close()

	player := audio.NewFakePlayer(1)
	o := NewOpenAI("sk-test", player)
	o.apiURL = srv.URL

	req := Request{Text: "Hola", Lang: "es-ES", Rate: 0.9, Pitch: 1}
	require.NoError(t, o.Speak(context.Background(), req))
	require.NoError(t, o.Speak(context.Background(), req))

	assert.Equal(t, int32(1), calls.Load())
	played := player.Played()
	require.Len(t, played, 2)
	assert.Equal(t, uint32(openAISpeechRate), played[0].SampleRate)
	assert.Len(t, played[0].Samples, 240)
}

func TestOpenAISpeakStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	o := NewOpenAI("sk-bad", audio.NewFakePlayer(1))
	o.apiURL = srv.URL

	err := o.Speak(context.Background(), Request{Text: "Hola"})
	var se *apiclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}
