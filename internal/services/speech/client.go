// Package speech wraps the speech-synthesis API that narrates enhanced
// stories. The service enforces a per-call character limit, so callers chunk
// long narratives at MaxChunkChars and concatenate the returned audio.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"spectral/internal/services/retryhttp"
)

const (
	defaultHTTPTimeout = 15 * time.Second

	// maxChunkChars is the service's per-call input limit.
	maxChunkChars = 2800
)

// Config captures the runtime settings required to talk to the speech service.
type Config struct {
	APIKey         string
	BaseURL        string
	Voice          string
	TimeoutSeconds int
}

// Client wraps the speech synthesis API.
type Client struct {
	cfg       Config
	transport *retryhttp.Client
}

// NewClient constructs a speech-synthesis client.
func NewClient(cfg Config, opts ...retryhttp.Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Voice:          strings.TrimSpace(cfg.Voice),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		transport: retryhttp.New(timeout, opts...),
	}
}

// MaxChunkChars returns the per-call input character limit.
func (c *Client) MaxChunkChars() int {
	return maxChunkChars
}

// Voice returns the configured default voice.
func (c *Client) Voice() string {
	return c.cfg.Voice
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Synthesize converts text to audio bytes using the given voice (the
// configured default when empty). Text longer than MaxChunkChars is rejected;
// chunking is the caller's job because chunk boundaries are a narrative
// concern, not a transport one.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("speech synthesize: text required")
	}
	if len([]rune(text)) > maxChunkChars {
		return nil, fmt.Errorf("speech synthesize: text exceeds %d characters", maxChunkChars)
	}
	if c.cfg.APIKey == "" {
		return nil, errors.New("speech synthesize: api key required")
	}
	if voice == "" {
		voice = c.cfg.Voice
	}

	payload := synthesizeRequest{
		Text:  escapeMarkup(text),
		Voice: voice,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("speech synthesize: encode body: %w", err)
	}

	audio, err := c.transport.Do(ctx, "speech", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/speech", bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("speech synthesize: empty audio payload")
	}
	return audio, nil
}

// escapeMarkup escapes characters the synthesis markup would otherwise
// interpret.
func escapeMarkup(text string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(text)
}
