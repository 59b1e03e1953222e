// Package channel delivers proactive messages over voice calls or SMS.
package channel

import (
	"context"

	"beacon/internal/domain"
)

// CallRequest describes one outbound voice call. AudioURL, when set, points
// at pre-synthesized speech; otherwise the provider reads Text aloud.
type CallRequest struct {
	To       string
	Text     string
	AudioURL string
}

// SMSRequest describes one outbound text message.
type SMSRequest struct {
	To   string
	Body string
}

// VoiceCaller places outbound calls and returns the provider's call ID.
type VoiceCaller interface {
	Name() string
	Call(ctx context.Context, req CallRequest) (string, error)
}

// Messenger sends text messages and returns the provider's message ID.
type Messenger interface {
	Name() string
	Send(ctx context.Context, req SMSRequest) (string, error)
}

// AudioStore publishes synthesized audio and returns a URL a voice provider
// can fetch it from.
type AudioStore interface {
	Publish(ctx context.Context, audio []byte, contentType string) (string, error)
}

// DispatchResult is the normalized outcome of one delivery attempt.
type DispatchResult struct {
	Success        bool
	Channel        domain.Channel
	ProviderCallID string
	Content        string
	Err            error
}
