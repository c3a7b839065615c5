package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ProviderType identifies an LLM API.
type ProviderType string

const (
	// ProviderClaude represents Anthropic's Messages API.
	ProviderClaude ProviderType = "claude"

	// ProviderOpenAI represents OpenAI's chat completions API.
	ProviderOpenAI ProviderType = "openai"
)

const (
	claudeURL = "https://api.anthropic.com/v1/messages"
	openAIURL = "https://api.openai.com/v1/chat/completions"
)

// truncateForError truncates response bodies in error messages so provider
// responses echoing credentials do not end up in logs.
func truncateForError(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		return s[:200] + "... (truncated)"
	}
	return s
}

// ProviderConfig configures one LLM provider.
type ProviderConfig struct {
	// Type is the provider type (claude, openai).
	Type ProviderType

	// Model is the model identifier sent with each request.
	Model string

	// APIKey authenticates requests.
	APIKey string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the number of times a failed request is retried.
	MaxRetries int

	// Backoff is the delay before the first retry; it doubles on each retry
	// (default: 1s)
	Backoff time.Duration

	// MaxTokens caps the response length (default: 4096)
	MaxTokens int
}

// Validate checks that a provider configuration is usable.
func (p ProviderConfig) Validate() error {
	if p.Type != ProviderClaude && p.Type != ProviderOpenAI {
		return fmt.Errorf("invalid provider type: %q", p.Type)
	}
	if p.Model == "" {
		return errors.New("model must be specified")
	}
	if p.APIKey == "" {
		return errors.New("API key must be provided")
	}
	if p.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if p.MaxRetries < 0 {
		return errors.New("max retries must be non-negative")
	}
	return nil
}

// String returns a human-readable identifier for the provider.
func (p ProviderConfig) String() string {
	return fmt.Sprintf("%s:%s", p.Type, p.Model)
}

// Client sends a prompt to an LLM and returns the text response.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Provider() ProviderConfig
}

// NewClient creates a client for the configured provider.
func NewClient(cfg ProviderConfig, logger *zap.Logger) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := httpClient{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("provider", cfg.String())),
	}
	switch cfg.Type {
	case ProviderClaude:
		if base.config.BaseURL == "" {
			base.config.BaseURL = claudeURL
		}
		return &claudeClient{base}, nil
	default:
		if base.config.BaseURL == "" {
			base.config.BaseURL = openAIURL
		}
		return &openAIClient{base}, nil
	}
}

// httpClient holds what both providers share: the retry loop and the raw
// JSON request.
type httpClient struct {
	config ProviderConfig
	http   *http.Client
	logger *zap.Logger
}

func (c *httpClient) Provider() ProviderConfig {
	return c.config
}

// withRetry calls do until it succeeds, the retry budget is spent or ctx is
// done, sleeping Backoff, 2*Backoff, 4*Backoff... between calls.
func (c *httpClient) withRetry(ctx context.Context, do func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.Backoff * time.Duration(1<<uint(attempt-1))
			c.logger.Debug("retrying request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		response, err := do()
		if err == nil {
			return response, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *httpClient) post(ctx context.Context, body any, headers map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncateForError(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeClient calls Anthropic's Messages API.
type claudeClient struct {
	httpClient
}

type claudeRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *claudeClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := claudeRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	}

	return c.withRetry(ctx, func() (string, error) {
		var resp claudeResponse
		if err := c.post(ctx, req, headers, &resp); err != nil {
			return "", err
		}
		if len(resp.Content) == 0 {
			return "", errors.New("no content in response")
		}
		return resp.Content[0].Text, nil
	})
}

// openAIClient calls OpenAI's chat completions API.
type openAIClient struct {
	httpClient
}

type openAIRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

func (c *openAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	var msgs []message
	if system != "" {
		msgs = append(msgs, message{Role: "system", Content: system})
	}
	msgs = append(msgs, message{Role: "user", Content: prompt})

	req := openAIRequest{
		Model:     c.config.Model,
		Messages:  msgs,
		MaxTokens: c.config.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.config.APIKey}

	return c.withRetry(ctx, func() (string, error) {
		var resp openAIResponse
		if err := c.post(ctx, req, headers, &resp); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("no choices in response")
		}
		return resp.Choices[0].Message.Content, nil
	})
}
