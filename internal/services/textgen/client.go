// Package textgen wraps the chat-completion API used to rewrite encounter
// stories into polished narratives.
package textgen

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

const defaultHTTPTimeout = 60 * time.Second

// Config captures the runtime settings required to talk to the text service.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client wraps the chat completion API.
type Client struct {
	cfg       Config
	transport *retryhttp.Client
}

// NewClient constructs a text-generation client.
func NewClient(cfg Config, opts ...retryhttp.Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		transport: retryhttp.New(timeout, opts...),
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete issues a chat completion with the supplied prompts and returns the
// generated text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" {
		return "", errors.New("textgen complete: system prompt required")
	}
	if userPrompt == "" {
		return "", errors.New("textgen complete: user prompt required")
	}
	if c.cfg.APIKey == "" {
		return "", errors.New("textgen complete: api key required")
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.7,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("textgen complete: encode body: %w", err)
	}

	body, err := c.transport.DoChecked(ctx, "textgen", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, checkCompletionContent)
	if err != nil {
		return "", err
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("textgen complete: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("textgen complete: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if content := strings.TrimSpace(choice.Text); content != "" {
			return content, nil
		}
	}
	return "", errors.New("textgen complete: empty content")
}

// checkCompletionContent rejects a well-formed completion with no usable
// content so the transport retries it. Malformed bodies and explicit API
// errors pass through; they are definitive and surfaced by Complete.
func checkCompletionContent(body []byte) error {
	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil
	}
	if completion.Error != nil {
		return nil
	}
	for _, choice := range completion.Choices {
		if strings.TrimSpace(choice.Message.Content) != "" || strings.TrimSpace(choice.Text) != "" {
			return nil
		}
	}
	return errors.New("empty content")
}

// HealthCheck verifies the API key and model are usable with a minimal prompt.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("textgen health: api key required")
	}
	content, err := c.Complete(ctx, "Respond with the single word OK.", "ping")
	if err != nil {
		return err
	}
	if content == "" {
		return errors.New("textgen health: unexpected response")
	}
	return nil
}
