package transcriber

import (
	"context"
	"encoding/json"
	"fmt"

	"escucho/apiclient"
)

type OpenAI struct {
	baseTranscriber
}

func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{baseTranscriber{
		client: apiclient.NewTracedClient(),
		apiURL: "https://api.openai.com/v1/audio/transcriptions",
		apiKey: apiKey,
	}}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, format string) (*Result, error) {
	resp, err := o.post(ctx, o.Name(), audio, format, map[string]string{
		"model":           "gpt-4o-transcribe",
		"response_format": "json",
	})
	if err != nil {
		return nil, err
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return nil, fmt.Errorf("openai response parse error: %w", err)
	}

	remaining := apiclient.FirstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := apiclient.FirstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:      oResp.Text,
		Metrics:   resp.Metrics,
		RateLimit: remaining + "/" + limit,
	}, nil
}
