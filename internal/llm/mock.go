package llm

import (
	"context"
	"sync"
)

// MockGenerator is a scripted Generator for tests and local development.
// Responses are consumed in order; once the script is exhausted the last
// entry repeats.
type MockGenerator struct {
	name string

	mu        sync.Mutex
	responses []MockResponse
	calls     int
}

// MockResponse is one scripted reply.
type MockResponse struct {
	Content string
	Usage   TokenUsage
	Err     error
}

// NewMockGenerator creates a scripted generator. With an empty script every
// call returns a canned greeting.
func NewMockGenerator(name string, responses ...MockResponse) *MockGenerator {
	if len(responses) == 0 {
		responses = []MockResponse{{
			Content: "Hello! This is a mock response.",
			Usage:   TokenUsage{PromptTokens: 10, CompletionTokens: 8},
		}}
	}
	return &MockGenerator{name: name, responses: responses}
}

func (m *MockGenerator) Name() string { return m.name }

// Calls reports how many times Generate has been invoked.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (string, TokenUsage, error) {
	if err := ctx.Err(); err != nil {
		return "", TokenUsage{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	resp := m.responses[idx]
	if resp.Err != nil {
		return "", TokenUsage{}, resp.Err
	}
	return resp.Content, resp.Usage, nil
}
