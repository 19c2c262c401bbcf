// Package agent implements the patient-flow collaborators: triage, resource
// planning and advisory chat. LLM-backed agents talk to an OpenAI-compatible
// chat completions endpoint; rule-based agents give deterministic answers
// when no API key is configured.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultURL is the chat completions endpoint used when none is configured.
const DefaultURL = "https://api.openai.com/v1/chat/completions"

// DefaultModel is the model requested when none is configured.
const DefaultModel = "gpt-4o-mini"

// Config configures the LLM client.
type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
	RPS     float64
}

// Client is a minimal chat completions client. Calls are throttled to
// Config.RPS and bounded by Config.Timeout.
type Client struct {
	URL        string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a Client from cfg, filling defaults for empty fields.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &Client{
		URL:    cfg.URL,
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// call options for one completion.
type call struct {
	temperature float64
	maxTokens   int
	jsonMode    bool
}

// complete sends msgs and returns the first choice's content.
func (c *Client) complete(ctx context.Context, msgs []message, opts call) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	reqBody := completionRequest{
		Model:       c.Model,
		Messages:    msgs,
		Temperature: opts.temperature,
		MaxTokens:   opts.maxTokens,
	}
	if opts.jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llm api error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("llm api error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("llm api returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// completeJSON runs a JSON-mode completion and decodes it into out.
func (c *Client) completeJSON(ctx context.Context, msgs []message, opts call, out any) error {
	opts.jsonMode = true
	text, err := c.complete(ctx, msgs, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
		return fmt.Errorf("decode llm json: %w", err)
	}
	return nil
}

// stripFences removes a markdown code fence wrapped around a JSON reply.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return strings.TrimSpace(s)
	}
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
