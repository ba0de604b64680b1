// Package imagegen wraps the image-generation API that produces encounter
// illustrations. One request yields one image; the orchestrator issues one
// request per illustration with a deterministic per-index seed.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"spectral/internal/services/retryhttp"
)

const defaultHTTPTimeout = 40 * time.Second

// Config captures the runtime settings required to talk to the image service.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Size           string
	Quality        string
	TimeoutSeconds int
}

// ImageRequest describes one generation call.
type ImageRequest struct {
	Prompt  string
	Seed    int64
	Size    string
	Quality string
}

// Client wraps the image generation API.
type Client struct {
	cfg       Config
	transport *retryhttp.Client
}

// NewClient constructs an image-generation client.
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
			Size:           strings.TrimSpace(cfg.Size),
			Quality:        strings.TrimSpace(cfg.Quality),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		transport: retryhttp.New(timeout, opts...),
	}
}

type imageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Seed           int64  `json:"seed,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type imageGenerationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate requests one image and returns the decoded bytes.
func (c *Client) Generate(ctx context.Context, request ImageRequest) ([]byte, error) {
	prompt := strings.TrimSpace(request.Prompt)
	if prompt == "" {
		return nil, errors.New("imagegen generate: prompt required")
	}
	if c.cfg.APIKey == "" {
		return nil, errors.New("imagegen generate: api key required")
	}

	size := request.Size
	if size == "" {
		size = c.cfg.Size
	}
	quality := request.Quality
	if quality == "" {
		quality = c.cfg.Quality
	}
	payload := imageGenerationRequest{
		Model:          c.cfg.Model,
		Prompt:         prompt,
		Seed:           request.Seed,
		Size:           size,
		Quality:        quality,
		N:              1,
		ResponseFormat: "b64_json",
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("imagegen generate: encode body: %w", err)
	}

	body, err := c.transport.Do(ctx, "imagegen", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/images/generations", bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var response imageGenerationResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("imagegen generate: decode response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("imagegen generate: api error: %s", strings.TrimSpace(response.Error.Message))
	}
	if len(response.Data) == 0 || strings.TrimSpace(response.Data[0].B64JSON) == "" {
		return nil, errors.New("imagegen generate: empty image payload")
	}
	image, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("imagegen generate: decode image: %w", err)
	}
	return image, nil
}
