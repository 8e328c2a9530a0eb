package transcriber

import (
	"context"
	"encoding/json"
	"fmt"

	"escucho/apiclient"
)

type Groq struct {
	baseTranscriber
}

func NewGroq(apiKey string) *Groq {
	return &Groq{baseTranscriber{
		client: apiclient.NewTracedClient(),
		apiURL: "https://api.groq.com/openai/v1/audio/transcriptions",
		apiKey: apiKey,
	}}
}

func (g *Groq) Name() string { return "groq" }

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text         string  `json:"text"`
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		NoSpeechProb float64 `json:"no_speech_prob"`
		AvgLogProb   float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (g *Groq) Transcribe(ctx context.Context, audio []byte, format string) (*Result, error) {
	resp, err := g.post(ctx, g.Name(), audio, format, map[string]string{
		"model":           "whisper-large-v3-turbo",
		"response_format": "verbose_json",
	})
	if err != nil {
		return nil, err
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fmt.Errorf("groq response parse error: %w", err)
	}

	var noSpeechProb, logProbSum float64
	segments := make([]Segment, 0, len(gResp.Segments))
	for _, seg := range gResp.Segments {
		noSpeechProb = max(noSpeechProb, seg.NoSpeechProb)
		logProbSum += seg.AvgLogProb
		segments = append(segments, Segment{
			Text:         seg.Text,
			NoSpeechProb: seg.NoSpeechProb,
			AvgLogProb:   seg.AvgLogProb,
			Start:        seg.Start,
			End:          seg.End,
		})
	}
	var avgLogProb float64
	if len(segments) > 0 {
		avgLogProb = logProbSum / float64(len(segments))
	}

	remaining := apiclient.FirstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := apiclient.FirstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:         gResp.Text,
		Metrics:      resp.Metrics,
		RateLimit:    remaining + "/" + limit,
		NoSpeechProb: noSpeechProb,
		AvgLogProb:   avgLogProb,
		Duration:     gResp.Duration,
		Segments:     segments,
	}, nil
}
