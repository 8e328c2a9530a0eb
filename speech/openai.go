package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"escucho/apiclient"
	"escucho/audio"
)

const (
	openAISpeechURL  = "https://api.openai.com/v1/audio/speech"
	openAISpeechRate = 24000 // response_format=pcm is 24 kHz mono s16le
	openAIModel      = "gpt-4o-mini-tts"
	openAIVoice      = "coral"
)

// OpenAI synthesizes with the hosted TTS endpoint. Rendered audio is cached
// per request because the same story is replayed whenever the child asks.
type OpenAI struct {
	apiKey string
	apiURL string
	client *apiclient.TracedClient
	player audio.Player

	mu    sync.Mutex
	cache map[Request]audio.PCM
}

func NewOpenAI(apiKey string, player audio.Player) *OpenAI {
	return &OpenAI{
		apiKey: apiKey,
		apiURL: openAISpeechURL,
		client: apiclient.NewTracedClient(),
		player: player,
		cache:  make(map[Request]audio.PCM),
	}
}

func (o *OpenAI) Name() string { return "openai" }

// Warm pre-opens the API connection.
func (o *OpenAI) Warm() { o.client.Warm(o.apiURL) }

func (o *OpenAI) Speak(ctx context.Context, req Request) error {
	pcm, err := o.render(ctx, req)
	if err != nil {
		return err
	}
	return o.player.Play(ctx, pcm)
}

func (o *OpenAI) render(ctx context.Context, req Request) (audio.PCM, error) {
	o.mu.Lock()
	pcm, ok := o.cache[req]
	o.mu.Unlock()
	if ok {
		return pcm, nil
	}

	speed := req.Rate
	if speed <= 0 {
		speed = 1
	}
	body, err := json.Marshal(map[string]any{
		"model":           openAIModel,
		"voice":           openAIVoice,
		"input":           req.Text,
		"instructions":    Instructions(req),
		"response_format": "pcm",
		"speed":           speed,
	})
	if err != nil {
		return audio.PCM{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiURL, bytes.NewReader(body))
	if err != nil {
		return audio.PCM{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return audio.PCM{}, ctxErr
		}
		return audio.PCM{}, fmt.Errorf("openai speech: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return audio.PCM{}, &apiclient.StatusError{Provider: "openai", StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	pcm = audio.PCM{
		Samples:    audio.BytesToSamples(resp.Body),
		SampleRate: openAISpeechRate,
		Channels:   1,
	}
	resp.Metrics.Log("speech", o.Name(), pcm.Duration().Seconds(), float64(len(body))/1024)

	o.mu.Lock()
	o.cache[req] = pcm
	o.mu.Unlock()
	return pcm, nil
}

// Instructions expresses language and pitch as a speaking direction, since
// the hosted model has no numeric pitch control.
func Instructions(req Request) string {
	var b strings.Builder
	b.WriteString("Habla en español")
	if strings.EqualFold(req.Lang, "es-ES") || req.Lang == "" {
		b.WriteString(" de España")
	}
	b.WriteString(", con voz cálida y clara, como quien lee un cuento a niños pequeños.")
	switch {
	case req.Pitch >= 1.15:
		b.WriteString(" Usa un tono más agudo y entonación de pregunta.")
	case req.Pitch > 1.0:
		b.WriteString(" Usa un tono ligeramente más agudo.")
	}
	if req.Rate > 0 && req.Rate < 1 {
		b.WriteString(" Habla despacio.")
	}
	return b.String()
}
