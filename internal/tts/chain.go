package tts

import (
	"context"
	"fmt"

	"beacon/internal/logging"
)

// Chain walks an ordered list of providers until one returns audio. The
// chain encodes preference: quality first, reliability second, a free
// always-succeeds fallback last.
type Chain struct {
	providers []Synthesizer
	maxRunes  int
	logger    logging.Logger
}

// NewChain creates a fallback chain. maxRunes <= 0 applies the default text
// cap.
func NewChain(providers []Synthesizer, maxRunes int, logger logging.Logger) *Chain {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxTextLength
	}
	return &Chain{
		providers: providers,
		maxRunes:  maxRunes,
		logger:    logging.OrNop(logger),
	}
}

// Providers lists the configured provider names in chain order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Synthesize sanitizes and truncates the text once, then tries each provider
// in order. With req.Provider set only that provider is tried and its failure
// is final. Chain exhaustion is a hard error carrying the last failure.
func (c *Chain) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("no tts providers configured")
	}

	req.Text = Sanitize(req.Text, c.maxRunes)
	if req.Text == "" {
		return nil, fmt.Errorf("no speakable text after sanitization")
	}

	if req.Provider != "" {
		p := c.find(req.Provider)
		if p == nil {
			return nil, fmt.Errorf("unknown tts provider %q", req.Provider)
		}
		res, err := p.Synthesize(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("tts provider %s: %w", p.Name(), err)
		}
		res.Provider = p.Name()
		return res, nil
	}

	var lastErr error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.Synthesize(ctx, req)
		if err != nil {
			lastErr = err
			c.logger.Warn("tts provider %s failed, trying next: %v", p.Name(), err)
			continue
		}
		if len(res.Audio) == 0 {
			lastErr = fmt.Errorf("provider %s returned empty audio", p.Name())
			c.logger.Warn("%v, trying next", lastErr)
			continue
		}
		res.Provider = p.Name()
		return res, nil
	}
	return nil, fmt.Errorf("all tts providers failed: %w", lastErr)
}

func (c *Chain) find(name string) Synthesizer {
	for _, p := range c.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}
