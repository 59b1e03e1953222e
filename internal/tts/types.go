// Package tts converts text to speech through an ordered provider fallback
// chain.
package tts

import (
	"context"
	"time"
)

// Request describes one synthesis task. Provider, when set, forces a single
// named provider instead of walking the chain.
type Request struct {
	Text     string
	Voice    string
	Language string
	Provider string
}

// Result is a successful synthesis.
type Result struct {
	Audio       []byte
	ContentType string
	Provider    string
	Duration    time.Duration
}

// Synthesizer is the capability interface one TTS provider fulfils.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (*Result, error)
}
