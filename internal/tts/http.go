package tts

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

// maxAudioBytes bounds a synthesized clip; anything larger is a provider bug.
const maxAudioBytes = 16 << 20

// HTTPConfig configures an HTTP synthesis provider.
type HTTPConfig struct {
	Name         string
	Endpoint     string // full URL of the synthesis endpoint
	APIKey       string
	DefaultVoice string
	Timeout      time.Duration
}

// httpProvider posts text to a bearer-auth JSON endpoint and expects binary
// audio back. Both the quality and reliability tiers speak this shape.
type httpProvider struct {
	cfg        HTTPConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewHTTPProvider builds a Synthesizer for a JSON-in, audio-out endpoint.
func NewHTTPProvider(cfg HTTPConfig, logger logging.Logger) Synthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &httpProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrNop(logger),
	}
}

func (p *httpProvider) Name() string {
	return p.cfg.Name
}

func (p *httpProvider) Synthesize(ctx context.Context, req Request) (*Result, error) {
	voice := req.Voice
	if voice == "" {
		voice = p.cfg.DefaultVoice
	}
	payload := map[string]string{
		"text":  req.Text,
		"voice": voice,
	}
	if req.Language != "" {
		payload["language"] = req.Language
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, beaconerrors.NewTransientError(fmt.Errorf("%s: %w", p.cfg.Name, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := fmt.Errorf("%s: api error status %d: %s", p.cfg.Name, resp.StatusCode, strings.TrimSpace(string(raw)))
		return nil, beaconerrors.FromHTTPStatus(resp.StatusCode, apiErr)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, beaconerrors.NewTransientError(fmt.Errorf("%s: read audio: %w", p.cfg.Name, err))
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%s: empty audio response", p.cfg.Name)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	p.logger.Debug("%s: synthesized %d bytes in %s", p.cfg.Name, len(audio), time.Since(start))

	return &Result{
		Audio:       audio,
		ContentType: contentType,
	}, nil
}
