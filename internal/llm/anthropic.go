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

const anthropicVersion = "2023-06-01"

// anthropicClient speaks the Anthropic messages API. It backs the emergency
// model, which deliberately lives on a different provider family than the
// tier ladder.
type anthropicClient struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewAnthropicClient builds a Generator for the Anthropic messages API.
func NewAnthropicClient(cfg ClientConfig, logger logging.Logger) Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &anthropicClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrNop(logger),
	}
}

func (c *anthropicClient) Name() string {
	return c.cfg.Name
}

func (c *anthropicClient) Generate(ctx context.Context, req GenerateRequest) (string, TokenUsage, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	payload := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.System != "" {
		payload["system"] = req.System
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", TokenUsage{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", TokenUsage{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

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
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", TokenUsage{}, beaconerrors.NewTransientError(fmt.Errorf("%s: decode response: %w", c.cfg.Name, err))
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", TokenUsage{}, beaconerrors.NewTransientError(fmt.Errorf("%s: empty content", c.cfg.Name))
	}

	usage := TokenUsage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
	}
	c.logger.Debug("%s: generated %d tokens (model=%s)", c.cfg.Name, usage.CompletionTokens, c.cfg.Model)
	return content, usage, nil
}
