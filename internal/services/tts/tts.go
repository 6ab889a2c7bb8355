// Package tts wraps the speech-synthesis HTTP API that narrates script
// sections.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"factreel/internal/fileutil"
	"factreel/internal/services"
)

const defaultHTTPTimeout = 120 * time.Second

// Config carries speech API settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Voice          string
	TimeoutSeconds int
}

// Client calls an OpenAI-compatible /audio/speech endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a speech client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Voice:          strings.TrimSpace(cfg.Voice),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type speechRequest struct {
	Model        string `json:"model"`
	Input        string `json:"input"`
	Voice        string `json:"voice"`
	Instructions string `json:"instructions,omitempty"`
	Format       string `json:"response_format"`
}

// Synthesize renders narration text to an mp3 at dest. The tone hint, when
// present, steers delivery via the instructions field.
func (c *Client) Synthesize(ctx context.Context, text, tone, dest string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return services.Wrap(services.ErrInput, "tts", "synthesize", "narration text required", nil)
	}
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "tts", "synthesize", "api key required", nil)
	}
	if c.cfg.BaseURL == "" {
		return services.Wrap(services.ErrConfiguration, "tts", "synthesize", "base url required", nil)
	}

	payload := speechRequest{
		Model:  c.cfg.Model,
		Input:  text,
		Voice:  c.cfg.Voice,
		Format: "mp3",
	}
	if tone = strings.TrimSpace(tone); tone != "" {
		payload.Instructions = "Speak in a " + tone + " tone."
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tts request: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("tts request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, "tts", "synthesize", "request cancelled", err)
		}
		return services.Wrap(services.ErrTransient, "tts", "synthesize", "http error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return services.Wrap(services.ErrRateLimited, "tts", "synthesize", msg, nil)
		case resp.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "tts", "synthesize", msg, nil)
		default:
			return services.Wrap(services.ErrExternalTool, "tts", "synthesize", msg, nil)
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "tts", "synthesize", "read audio stream", err)
	}
	if len(audio) == 0 {
		return services.Wrap(services.ErrExternalTool, "tts", "synthesize", "empty audio response", nil)
	}
	if err := fileutil.WriteAtomic(dest, audio); err != nil {
		return services.Wrap(services.ErrConfiguration, "tts", "synthesize", "persist audio", err)
	}
	return nil
}
