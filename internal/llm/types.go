// Package llm routes AI generation requests across cost-tiered providers
// with cascading fallback.
package llm

import "context"

// TaskCategory names a class of generation work with its own tier ladder.
type TaskCategory string

const (
	// CategoryConversational covers proactive messages spoken or texted to
	// a user.
	CategoryConversational TaskCategory = "conversational"
	// CategorySummary covers short internal summaries and templated fills.
	CategorySummary TaskCategory = "summary"
)

// GenerateRequest describes one generation task.
type GenerateRequest struct {
	Category  TaskCategory
	System    string
	Prompt    string
	Language  string
	MaxTokens int
}

// TokenUsage reports the tokens consumed by one provider call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Generation is a successful generation result.
type Generation struct {
	Content  string
	Provider string
	Model    string
	Tier     int // 0 for the emergency model
	Usage    TokenUsage
	CostUSD  float64
}

// Attempt records one provider call, failed or not, for cost analytics.
type Attempt struct {
	Tier       int // 0 for the emergency model
	Provider   string
	Model      string
	Succeeded  bool
	Err        string
	Usage      TokenUsage
	CostUSD    float64
	DurationMS int64
}

// Generator is the capability interface one provider implementation fulfils.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (string, TokenUsage, error)
}

// AttemptSink receives every attempt the router makes. Implementations must
// tolerate being called for failed attempts with zero usage.
type AttemptSink interface {
	RecordAttempt(category TaskCategory, attempt Attempt)
}

// NopSink discards attempts.
type NopSink struct{}

func (NopSink) RecordAttempt(TaskCategory, Attempt) {}
