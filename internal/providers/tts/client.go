// Package tts synthesizes narration audio over a text-to-speech HTTP API.
// The service is optional: callers treat synthesis failures as a degraded
// output (video without narration), never as a pipeline failure.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"promoforge/internal/infra"
)

const defaultLanguage = "en-US"

// Options controls client construction.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client calls the speech-synthesis endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

// SynthesizeRequest describes one narration synthesis.
type SynthesizeRequest struct {
	Text     string
	Language string
	Voice    string
}

// NewClient constructs a Client. An empty base URL yields a client whose
// Available method reports false; compositing then simply skips narration.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Available reports whether the client is configured to reach a service.
func (c *Client) Available() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

type synthesizePayload struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize converts text into MP3 audio bytes. The language tag is
// normalized through x/text; unparseable tags fall back to en-US.
func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) ([]byte, error) {
	if !c.Available() {
		return nil, fmt.Errorf("tts: service not configured")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("tts: text is required")
	}

	var payload synthesizePayload
	payload.Input.Text = text
	payload.Voice.LanguageCode = NormalizeLanguage(req.Language)
	payload.Voice.Name = strings.TrimSpace(req.Voice)
	payload.AudioConfig.AudioEncoding = "MP3"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tts: encode payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/text:synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("tts: read body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts: service returned %d", httpResp.StatusCode)
	}

	var resp synthesizeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("tts: decode response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("tts: decode audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts: empty audio content")
	}
	c.logger.Debug().
		Int("audio_bytes", len(audio)).
		Str("language", payload.Voice.LanguageCode).
		Msg("tts: narration synthesized")
	return audio, nil
}

// NormalizeLanguage canonicalizes a BCP-47 tag, falling back to en-US for
// empty or unparseable input.
func NormalizeLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return defaultLanguage
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return defaultLanguage
	}
	return parsed.String()
}
