// Package imagegen calls a hosted inference endpoint that turns a text prompt
// into a binary image payload.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const maxImageBytes = 20 << 20 // refuse to buffer more than 20 MiB

type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(endpoint, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type generateRequest struct {
	Inputs string `json:"inputs"`
}

// Generate posts the prompt to the inference endpoint and returns the raw
// image bytes with their content type. Non-2xx responses come back as an
// UpstreamError carrying a user-visible retry hint.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, string, error) {
	body, err := json.Marshal(generateRequest{Inputs: prompt})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().Int("status", resp.StatusCode).Str("detail", string(detail)).Msg("image endpoint rejected the request")
		return nil, "", &UpstreamError{Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image payload: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// UpstreamError reports a non-2xx answer from the inference endpoint.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("image endpoint returned status %d", e.Status)
}

// UserMessage is the retry hint shown to the user. Cold models answer 503
// while they load.
func (e *UpstreamError) UserMessage() string {
	if e.Status == http.StatusServiceUnavailable {
		return "The image model is still loading. Please wait about 30 seconds and try again."
	}
	return "Image generation failed. Please try again."
}
