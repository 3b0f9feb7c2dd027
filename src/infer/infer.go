// Package infer abstracts the text-understanding capability used for
// failure classification and fix generation. The engine only depends on the
// Client interface; the HTTP implementation targets a Gemini-style
// generateContent endpoint.
package infer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrTransport wraps network and server-side failures.
	ErrTransport = errors.New("infer: transport error")

	// ErrTimeout means the call exceeded its deadline.
	ErrTimeout = errors.New("infer: timeout")
)

// Client sends a prompt to the underlying model and returns its raw text
// response. Implementations must honor context cancellation.
type Client interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// HTTPClient calls a hosted inference endpoint.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the given endpoint and model.
func NewHTTPClient(endpoint, apiKey, model string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type inferRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type inferResponse struct {
	Text string `json:"text"`
}

// Infer sends the prompt and returns the model's text response.
func (c *HTTPClient) Infer(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(inferRequest{
		Model:       c.model,
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, string(body))
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrTransport, err)
	}
	return out.Text, nil
}
