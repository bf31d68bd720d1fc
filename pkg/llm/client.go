// Package llm drives chat-completion calls against an OpenAI-compatible
// HTTP endpoint — spec.md §4.D. One Client is shared across stages; it
// owns retry/backoff policy and usage accounting, and returns raw JSON
// response bodies for the caller (pkg/validator) to validate.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// StatusError wraps a non-2xx HTTP response from the completion
// endpoint. ClassifyError inspects StatusCode to decide retryability.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

// BadResponseError indicates the completion endpoint returned 200 but
// the response body could not be parsed as the expected chat-completion
// envelope. Excerpt is truncated to aid debugging without flooding logs.
type BadResponseError struct {
	Excerpt string
	Cause   error
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("llm: malformed response (excerpt %q): %v", e.Excerpt, e.Cause)
}

func (e *BadResponseError) Unwrap() error { return e.Cause }

const excerptLen = 200

func truncate(s string) string {
	if len(s) <= excerptLen {
		return s
	}
	return s[:excerptLen] + "..."
}

// Usage is the token accounting returned alongside a completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// UsageFunc is invoked once per successful completion call, letting
// callers accumulate cost/usage totals (pkg/tokenbudget.EstimateCost)
// without the driver itself tracking cross-call state.
type UsageFunc func(stage string, u Usage)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	OnUsage    UsageFunc
	Logger     *slog.Logger
}

// Client drives chat-completion requests over HTTP against an
// OpenAI-compatible /chat/completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	onUsage    UsageFunc
	logger     *slog.Logger
}

// New constructs a Client. A zero Timeout defaults to 60s; a zero
// MaxRetries defaults to the package's MaxRetries constant.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = MaxRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: maxRetries,
		onUsage:    cfg.OnUsage,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ProcessWithAI sends systemPrompt/userPrompt as a two-message chat
// completion for the named stage (used for usage attribution and
// logging only) and returns the model's raw text content. Retries
// transient failures per ClassifyError with exponential backoff,
// capped at MaxRetries total attempts.
func (c *Client) ProcessWithAI(ctx context.Context, stage, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		content, err := c.doCompletion(ctx, stage, systemPrompt, userPrompt)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if ClassifyError(err) != Retry || attempt == c.maxRetries {
			return "", err
		}

		delay := backoffDelay(attempt)
		c.logger.Warn("llm call failed, retrying", "stage", stage, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

func (c *Client) doCompletion(ctx context.Context, stage, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: %s: %w", stage, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: %s: read response body: %w", stage, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &BadResponseError{Excerpt: truncate(string(body)), Cause: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &BadResponseError{Excerpt: truncate(string(body)), Cause: fmt.Errorf("no choices in response")}
	}

	if c.onUsage != nil {
		c.onUsage(stage, Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		})
	}

	return parsed.Choices[0].Message.Content, nil
}
