package channel

import (
	"context"
	"sync"
)

// MockCaller records calls for tests and dry runs.
type MockCaller struct {
	mu    sync.Mutex
	Err   error
	Calls []CallRequest
}

func (m *MockCaller) Name() string { return "mock-voice" }

func (m *MockCaller) Call(_ context.Context, req CallRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Calls = append(m.Calls, req)
	return "mock-call-1", nil
}

// MockMessenger records messages for tests and dry runs.
type MockMessenger struct {
	mu   sync.Mutex
	Err  error
	Sent []SMSRequest
}

func (m *MockMessenger) Name() string { return "mock-sms" }

func (m *MockMessenger) Send(_ context.Context, req SMSRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Sent = append(m.Sent, req)
	return "mock-sms-1", nil
}
