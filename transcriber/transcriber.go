// Package transcriber turns a recorded answer into text so the review screen
// can show the child what they said next to the multiple-choice options.
package transcriber

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"escucho/apiclient"
)

// ErrNoProvider is returned by New when no API key is configured.
var ErrNoProvider = errors.New("no transcription provider configured (set GROQ_API_KEY or OPENAI_API_KEY)")

type Segment struct {
	Text         string
	NoSpeechProb float64
	AvgLogProb   float64
	Start        float64
	End          float64
}

type Result struct {
	Text         string
	Metrics      *apiclient.NetworkMetrics
	RateLimit    string
	NoSpeechProb float64
	AvgLogProb   float64
	Duration     float64
	Segments     []Segment
}

type Transcriber interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string
	// Transcribe sends one encoded clip. format is the file extension the
	// API should assume, e.g. "flac".
	Transcribe(ctx context.Context, audio []byte, format string) (*Result, error)
}

type baseTranscriber struct {
	client *apiclient.TracedClient
	apiURL string
	apiKey string
	lang   string
}

func (b *baseTranscriber) SetLanguage(lang string) { b.lang = lang }

func (b *baseTranscriber) GetLanguage() string { return b.lang }

// post uploads audio as a multipart form with the given extra fields.
func (b *baseTranscriber) post(ctx context.Context, provider string, audio []byte, format string, fields map[string]string) (*apiclient.TracedResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if b.lang != "" {
		writer.WriteField("language", b.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiclient.StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	resp.Metrics.Log("transcription", provider, 0, float64(len(audio))/1024)
	return resp, nil
}

// New picks a provider from the configured keys, preferring Groq.
func New(groqKey, openAIKey string) (Transcriber, error) {
	switch {
	case groqKey != "":
		return NewGroq(groqKey), nil
	case openAIKey != "":
		return NewOpenAI(openAIKey), nil
	}
	return nil, ErrNoProvider
}

// DefaultTimeout bounds one clip upload.
const DefaultTimeout = 30 * time.Second
