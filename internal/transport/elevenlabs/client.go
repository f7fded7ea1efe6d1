// Package elevenlabs is a streaming text-to-speech client for the ElevenLabs API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/metrics"
)

const provider = "elevenlabs"

// Config holds ElevenLabs credentials and voice settings.
type Config struct {
	APIKey       string
	BaseURL      string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Stability    float64
	Similarity   float64
	Timeout      time.Duration
}

// Client synthesizes speech through the streaming endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates an ElevenLabs client. Timeout 0 means no client-side limit;
// the request context still bounds every call.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize streams MP3 audio of text. The caller closes the stream.
// Rejected input maps to domain.ErrSynthesis; throttling and 5xx map to *domain.UpstreamError.
func (c *Client) Synthesize(ctx context.Context, text string) (domain.AudioStream, error) {
	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: c.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       c.cfg.Stability,
			SimilarityBoost: c.cfg.Similarity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", c.cfg.BaseURL, url.PathEscape(c.cfg.VoiceID))
	if c.cfg.OutputFormat != "" {
		endpoint += "?output_format=" + url.QueryEscape(c.cfg.OutputFormat)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s tts: %w", provider, ctxErr)
		}
		err = &domain.UpstreamError{Provider: provider, Op: "tts", Err: err}
		metrics.ObserveUpstream(provider, "tts", duration, err)
		return nil, err
	}

	if resp.StatusCode/100 == 2 {
		metrics.ObserveUpstream(provider, "tts", duration, nil)
		return resp.Body, nil
	}

	defer resp.Body.Close()
	msg := readErrorMessage(resp.Body)
	upErr := &domain.UpstreamError{
		Provider:   provider,
		Op:         "tts",
		StatusCode: resp.StatusCode,
		Err:        errors.New(msg),
	}
	metrics.ObserveUpstream(provider, "tts", duration, upErr)

	if upErr.Retryable() {
		return nil, upErr
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrSynthesis, upErr)
}

// readErrorMessage extracts the message from an ElevenLabs error body.
// The API answers with {"detail":{"status":...,"message":...}} or {"detail":"..."}.
func readErrorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))

	var structured struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	if json.Unmarshal(data, &structured) == nil && structured.Detail.Message != "" {
		return structured.Detail.Message
	}

	var plain struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &plain) == nil && plain.Detail != "" {
		return plain.Detail
	}

	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return "empty response"
}
