package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	beaconerrors "beacon/internal/errors"
)

func TestOpenAIClientGenerate(t *testing.T) {
	var gotAuth, gotPath string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  Good morning!  "}},
			},
			"usage": map[string]any{"prompt_tokens": 42, "completion_tokens": 7},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(ClientConfig{
		Name:    "tier1",
		BaseURL: srv.URL,
		APIKey:  "sk-test",
		Model:   "gpt-test",
	}, nil)

	content, usage, err := client.Generate(context.Background(), GenerateRequest{
		System:    "You are a reminder assistant.",
		Prompt:    "Say good morning.",
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "Good morning!", content)
	assert.Equal(t, TokenUsage{PromptTokens: 42, CompletionTokens: 7}, usage)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "gpt-test", gotPayload["model"])
	assert.Len(t, gotPayload["messages"], 2)
	assert.Equal(t, float64(100), gotPayload["max_tokens"])
}

func TestOpenAIClientErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantRetry bool
	}{
		{"server error retryable", http.StatusInternalServerError, true},
		{"rate limited retryable", http.StatusTooManyRequests, true},
		{"bad request permanent", http.StatusBadRequest, false},
		{"unauthorized permanent", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			client := NewOpenAIClient(ClientConfig{Name: "tier1", BaseURL: srv.URL, Model: "m"}, nil)
			_, _, err := client.Generate(context.Background(), GenerateRequest{Prompt: "q"})
			require.Error(t, err)
			assert.Equal(t, tt.wantRetry, beaconerrors.IsTransient(err))
			assert.Equal(t, !tt.wantRetry, beaconerrors.IsPermanent(err))
		})
	}
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := NewOpenAIClient(ClientConfig{Name: "tier1", BaseURL: srv.URL, Model: "m"}, nil)
	_, _, err := client.Generate(context.Background(), GenerateRequest{Prompt: "q"})
	require.Error(t, err)
	assert.True(t, beaconerrors.IsTransient(err))
}

func TestOpenAIClientConnectionRefused(t *testing.T) {
	client := NewOpenAIClient(ClientConfig{Name: "tier1", BaseURL: "http://127.0.0.1:1", Model: "m"}, nil)
	_, _, err := client.Generate(context.Background(), GenerateRequest{Prompt: "q"})
	require.Error(t, err)
	assert.True(t, beaconerrors.IsTransient(err))
}

func TestAnthropicClientGenerate(t *testing.T) {
	var gotKey, gotVersion, gotPath string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "Time for "},
				{"type": "text", "text": "your walk."},
			},
			"usage": map[string]any{"input_tokens": 30, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	client := NewAnthropicClient(ClientConfig{
		Name:    "emergency",
		BaseURL: srv.URL,
		APIKey:  "ak-test",
		Model:   "claude-test",
	}, nil)

	content, usage, err := client.Generate(context.Background(), GenerateRequest{
		System: "Be brief.",
		Prompt: "Remind me to walk.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Time for your walk.", content)
	assert.Equal(t, TokenUsage{PromptTokens: 30, CompletionTokens: 5}, usage)
	assert.Equal(t, "ak-test", gotKey)
	assert.Equal(t, anthropicVersion, gotVersion)
	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "Be brief.", gotPayload["system"])
	// max_tokens falls back to a default when unset on the request.
	assert.Equal(t, float64(1024), gotPayload["max_tokens"])
}

func TestAnthropicClientOverloaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"overloaded_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewAnthropicClient(ClientConfig{Name: "emergency", BaseURL: srv.URL, Model: "m"}, nil)
	_, _, err := client.Generate(context.Background(), GenerateRequest{Prompt: "q"})
	require.Error(t, err)
	assert.True(t, beaconerrors.IsTransient(err))
}
