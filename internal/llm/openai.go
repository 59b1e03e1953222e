package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	beaconerrors "beacon/internal/errors"
	"beacon/internal/logging"
)

// ClientConfig configures an HTTP provider client.
type ClientConfig struct {
	Name    string // provider name used in logs and attempt records
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// openaiClient speaks the OpenAI-compatible chat completions dialect. Most
// tier providers (OpenAI itself, OpenRouter, self-hosted gateways) expose it.
type openaiClient struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIClient builds a Generator for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg ClientConfig, logger logging.Logger) Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &openaiClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrNop(logger),
	}
}

func (c *openaiClient) Name() string {
	return c.cfg.Name
}

func (c *openaiClient) Generate(ctx context.Context, req GenerateRequest) (string, TokenUsage, error) {
	messages := make([]map[string]string, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	payload := map[string]any{
		"model":    c.cfg.Model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", TokenUsage{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", TokenUsage{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", TokenUsage{}, beaconerrors.NewTransientError(fmt.Errorf("%s: %w", c.cfg.Name, err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", TokenUsage{}, beaconerrors.NewTransientError(fmt.Errorf("%s: read response: %w", c.cfg.Name, err))
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("%s: api error status %d: %s", c.cfg.Name, resp.StatusCode, truncateBody(raw))
		return "", TokenUsage{}, beaconerrors.FromHTTPStatus(resp.StatusCode, apiErr)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", TokenUsage{}, beaconerrors.NewTransientError(fmt.Errorf("%s: decode response: %w", c.cfg.Name, err))
	}
	if len(parsed.Choices) == 0 {
		return "", TokenUsage{}, beaconerrors.NewTransientError(fmt.Errorf("%s: empty choices", c.cfg.Name))
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	usage := TokenUsage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}
	c.logger.Debug("%s: generated %d tokens (model=%s)", c.cfg.Name, usage.CompletionTokens, c.cfg.Model)
	return content, usage, nil
}

func truncateBody(raw []byte) string {
	const maxLen = 300
	s := string(raw)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
